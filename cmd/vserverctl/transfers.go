package main

import (
	"github.com/fgeck/vserverctl/internal/services/qbittorrent"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var transfersCmd = &cobra.Command{
	Use:   "transfers",
	Short: "Pause or resume all qBittorrent transfers on a server",
}

var transfersPauseCmd = &cobra.Command{
	Use:   "pause <nickname>",
	Short: "Pause all transfers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfers(cmd, args[0], true)
	},
}

var transfersResumeCmd = &cobra.Command{
	Use:   "resume <nickname>",
	Short: "Resume all transfers",
	Long:  `Resume all transfers. Use this after a failed reboot left transfers paused.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfers(cmd, args[0], false)
	},
}

func init() {
	transfersCmd.AddCommand(transfersPauseCmd)
	transfersCmd.AddCommand(transfersResumeCmd)
}

func runTransfers(cmd *cobra.Command, nickname string, pause bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	record, err := a.lookup(cmd.Context(), nickname)
	if err != nil {
		return err
	}

	baseURL, err := qbittorrent.TargetURL(a.cfg.QBittorrent, record)
	if err != nil {
		log.Error().Err(err).Str("server", record.Name()).Msg("cannot locate download client")
		return err
	}

	session, err := a.downloads.Login(cmd.Context(), baseURL)
	if err != nil {
		log.Error().Err(err).Str("url", baseURL).Msg("download client login failed")
		return err
	}

	action := "resumed"
	if pause {
		action = "paused"
		err = a.downloads.PauseAll(cmd.Context(), session)
	} else {
		err = a.downloads.ResumeAll(cmd.Context(), session)
	}
	if err != nil {
		log.Error().Err(err).Str("server", record.Name()).Msg("transfer control failed")
		return err
	}

	log.Info().Str("server", record.Name()).Str("url", baseURL).Msgf("all transfers %s", action)
	return nil
}
