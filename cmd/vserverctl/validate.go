package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fgeck/vserverctl/internal/config"
	"github.com/fgeck/vserverctl/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without contacting any server.`,
	Args:  cobra.NoArgs,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return errConfigRequired
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to parse config")
		return err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	writeSummary(cmd.OutOrStdout(), cfg)
	return nil
}

func writeSummary(w io.Writer, cfg *models.Config) {
	fmt.Fprintln(w, "Configuration is valid!")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Control Panel:")
	fmt.Fprintf(w, "  Login: %s\n", cfg.Netcup.LoginName)
	fmt.Fprintf(w, "  Endpoint: %s\n", cfg.Netcup.Endpoint)
	fmt.Fprintf(w, "  Timeout: %s\n", cfg.Netcup.Timeout)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "qBittorrent:")
	fmt.Fprintf(w, "  Default URL: %s://<server address>:%d\n", cfg.QBittorrent.Scheme, cfg.QBittorrent.Port)
	if cfg.QBittorrent.Username == "" {
		fmt.Fprintln(w, "  Login: (skipped)")
	} else {
		fmt.Fprintf(w, "  Username: %s\n", cfg.QBittorrent.Username)
	}

	hosts := make([]string, 0, len(cfg.QBittorrent.Hosts))
	for name := range cfg.QBittorrent.Hosts {
		hosts = append(hosts, name)
	}
	sort.Strings(hosts)
	for _, name := range hosts {
		fmt.Fprintf(w, "  Host %s: %s\n", name, cfg.QBittorrent.Hosts[name])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Reboot:")
	fmt.Fprintf(w, "  Pause cooldown: %s\n", cfg.Reboot.PauseCooldown)
	fmt.Fprintf(w, "  Boot cooldown: %s\n", cfg.Reboot.BootCooldown)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Optional Features:")
	fmt.Fprintf(w, "  SSH Probe: %v\n", cfg.SSH != nil)
	fmt.Fprintf(w, "  Telegram: %v\n", cfg.Telegram != nil)
	fmt.Fprintf(w, "  Metrics: %v\n", cfg.Metrics != nil)
	fmt.Fprintf(w, "  Events: %v\n", cfg.Events != nil)

	if cfg.SSH != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "SSH Configuration:")
		fmt.Fprintf(w, "  Port: %d\n", cfg.SSH.Port)
		fmt.Fprintf(w, "  Username: %s\n", cfg.SSH.Username)
		fmt.Fprintf(w, "  Key: %s\n", cfg.SSH.KeyPath)
	}

	if cfg.Telegram != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Telegram Configuration:")
		fmt.Fprintf(w, "  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Fprintf(w, "  Bot Token: (configured)\n")
	}

	if cfg.Metrics != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Metrics Configuration:")
		fmt.Fprintf(w, "  Textfile: %s\n", cfg.Metrics.TextfilePath)
	}

	if cfg.Events != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Events Configuration:")
		fmt.Fprintf(w, "  NATS URL: %s\n", cfg.Events.NATSURL)
		fmt.Fprintf(w, "  Subject: %s\n", cfg.Events.Subject)
	}
}
