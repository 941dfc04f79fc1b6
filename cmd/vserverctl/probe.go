package main

import (
	"fmt"

	"github.com/fgeck/vserverctl/internal/models"
	"github.com/fgeck/vserverctl/internal/services/qbittorrent"
	"github.com/fgeck/vserverctl/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe <nickname>",
	Short: "Check that a server and its download client are reachable",
	Long: `Check reachability of a server after a reboot:
  - SSH login and uptime (if ssh is configured)
  - qBittorrent login and version`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	record, err := a.lookup(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := false

	fmt.Fprintf(out, "Server: %s (%s), IPv4 %s\n", record.Name(), record.Identifier, record.AddressString())

	if a.cfg.SSH != nil {
		result, err := ssh.New(log.Logger).Probe(cmd.Context(), *a.cfg.SSH, record)
		switch {
		case err != nil:
			failed = true
			fmt.Fprintf(out, "  SSH:         error: %v\n", err)
		case result.Error != nil:
			failed = true
			fmt.Fprintf(out, "  SSH:         error: %v\n", result.Error)
		default:
			fmt.Fprintf(out, "  SSH:         ok (%s)\n", result.Output)
		}
	} else {
		fmt.Fprintln(out, "  SSH:         not configured")
	}

	version, err := downloadClientVersion(cmd, a, record)
	if err != nil {
		failed = true
		fmt.Fprintf(out, "  qBittorrent: error: %v\n", err)
	} else {
		fmt.Fprintf(out, "  qBittorrent: ok (%s)\n", version)
	}

	if failed {
		return fmt.Errorf("server %s is not fully reachable", record.Name())
	}
	return nil
}

func downloadClientVersion(cmd *cobra.Command, a *app, record models.ServerRecord) (string, error) {
	baseURL, err := qbittorrent.TargetURL(a.cfg.QBittorrent, record)
	if err != nil {
		return "", err
	}
	session, err := a.downloads.Login(cmd.Context(), baseURL)
	if err != nil {
		return "", err
	}
	return a.downloads.Version(cmd.Context(), session)
}
