package main

import (
	"os"
	"strings"

	"github.com/fgeck/vserverctl/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile string
	verbose    bool
	quiet      bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "vserverctl",
	Short: "Control netcup vServers and reboot them without corrupting downloads",
	Long: `vserverctl manages netcup vServers through the server control panel webservice:
  - List servers by nickname, show details, state and traffic
  - Start, stop, hard reset and rename servers
  - Coordinated reboot: pause qBittorrent, hard reset, resume qBittorrent
  - Reset every server in one sweep
  - Telegram notification and metrics for reboot runs

Servers are addressed by their nickname, or by their identifier when they have none.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (required)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(newPowerCmd("start", "Start a server", models.PowerStart))
	rootCmd.AddCommand(newPowerCmd("stop", "Stop a server", models.PowerStop))
	rootCmd.AddCommand(newPowerCmd("reset", "Hard reset a server (no coordination with qBittorrent)", models.PowerHardReset))
	rootCmd.AddCommand(trafficCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(passwordCmd)
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(resetAllCmd)
	rootCmd.AddCommand(transfersCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(newSelfUpdateCmd())
}

func setupLogging() {
	// Logs go to stderr so command output on stdout stays parseable.
	if jsonOutput {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set log level
	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
