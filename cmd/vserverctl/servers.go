package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fgeck/vserverctl/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

var (
	listOutput  string
	trafficDate string
	trafficMon  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List servers with nickname, identifier and IPv4 address",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var infoCmd = &cobra.Command{
	Use:   "info <nickname>",
	Short: "Show server details",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var stateCmd = &cobra.Command{
	Use:   "state <nickname>",
	Short: "Show the power state of a server",
	Args:  cobra.ExactArgs(1),
	RunE:  runState,
}

var trafficCmd = &cobra.Command{
	Use:   "traffic <nickname>",
	Short: "Show traffic usage of a day or month",
	Long: `Show incoming, outgoing and total traffic in MiB.

By default the traffic of the given day (today unless --date is set) is shown;
--month shows the whole month containing that day.`,
	Args: cobra.ExactArgs(1),
	RunE: runTraffic,
}

var renameCmd = &cobra.Command{
	Use:   "rename <nickname> <new-nickname>",
	Short: "Change the nickname of a server",
	Args:  cobra.ExactArgs(2),
	RunE:  runRename,
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Change the control panel account password",
	Long:  `Change the control panel account password. The new password is read from the first line of stdin.`,
	Args:  cobra.NoArgs,
	RunE:  runPassword,
}

func init() {
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "output format: table, json or yaml")
	trafficCmd.Flags().StringVar(&trafficDate, "date", "", "day to query (YYYY-MM-DD, default today)")
	trafficCmd.Flags().BoolVar(&trafficMon, "month", false, "show the whole month")
}

// serverView is the printable form of a ServerRecord.
type serverView struct {
	Name       string `json:"name" yaml:"name"`
	Nickname   string `json:"nickname,omitempty" yaml:"nickname,omitempty"`
	Identifier string `json:"identifier" yaml:"identifier"`
	IPv4       string `json:"ipv4" yaml:"ipv4"`
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	m, err := a.identities(cmd.Context())
	if err != nil {
		return err
	}

	return writeServers(cmd.OutOrStdout(), m.Sorted(), listOutput)
}

func writeServers(w io.Writer, records []models.ServerRecord, format string) error {
	views := make([]serverView, 0, len(records))
	for _, r := range records {
		v := serverView{Name: r.Name(), Identifier: r.Identifier, IPv4: r.AddressString()}
		if r.HasNickname {
			v.Nickname = r.Nickname
		}
		views = append(views, v)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tIDENTIFIER\tIPV4")
		for _, v := range views {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Name, v.Identifier, v.IPv4)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	record, err := a.lookup(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	details, err := a.control.GetServerInfo(cmd.Context(), record.Identifier)
	if err != nil {
		log.Error().Err(err).Str("server", record.Name()).Msg("failed to get server information")
		return err
	}

	writeDetails(cmd.OutOrStdout(), details)
	return nil
}

func writeDetails(w io.Writer, d *models.ServerDetails) {
	nickname := d.Nickname
	if nickname == "" {
		nickname = "(none)"
	}
	ipv4 := "unknown"
	if len(d.IPv4) > 0 {
		ipv4 = strings.Join(d.IPv4, ", ")
	}

	fmt.Fprintf(w, "Identifier: %s\n", d.Identifier)
	fmt.Fprintf(w, "Nickname:   %s\n", nickname)
	fmt.Fprintf(w, "Status:     %s\n", d.Status)
	fmt.Fprintf(w, "Uptime:     %s\n", d.Uptime)
	fmt.Fprintf(w, "IPv4:       %s\n", ipv4)
}

func runState(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	record, err := a.lookup(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	state, err := a.control.GetState(cmd.Context(), record.Identifier)
	if err != nil {
		log.Error().Err(err).Str("server", record.Name()).Msg("failed to get server state")
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", record.Name(), state)
	return nil
}

func newPowerCmd(use, short string, action models.PowerAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <nickname>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			record, err := a.lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if err := a.control.SetPowerState(cmd.Context(), record.Identifier, action); err != nil {
				log.Error().Err(err).Str("server", record.Name()).Str("action", string(action)).Msg("power action failed")
				return err
			}

			log.Info().
				Str("server", record.Name()).
				Str("identifier", record.Identifier).
				Str("action", string(action)).
				Msg("power action accepted")
			return nil
		},
	}
}

func runTraffic(cmd *cobra.Command, args []string) error {
	date := time.Now()
	if trafficDate != "" {
		var err error
		date, err = time.Parse(dateLayout, trafficDate)
		if err != nil {
			return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD: %w", trafficDate, err)
		}
	}

	period := models.TrafficDay
	if trafficMon {
		period = models.TrafficMonth
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	record, err := a.lookup(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	stats, err := a.control.GetTraffic(cmd.Context(), record.Identifier, period, date)
	if err != nil {
		log.Error().Err(err).Str("server", record.Name()).Msg("failed to get traffic")
		return err
	}

	writeTraffic(cmd.OutOrStdout(), record, period, date, stats)
	return nil
}

func writeTraffic(w io.Writer, record models.ServerRecord, period models.TrafficPeriod, date time.Time, stats *models.TrafficStats) {
	label := date.Format(dateLayout)
	if period == models.TrafficMonth {
		label = date.Format("2006-01")
	}

	fmt.Fprintf(w, "Traffic of %s on %s\n", record.Name(), label)
	fmt.Fprintf(w, "  In:    %d MiB\n", stats.In)
	fmt.Fprintf(w, "  Out:   %d MiB\n", stats.Out)
	fmt.Fprintf(w, "  Total: %d MiB\n", stats.Total)
}

func runRename(cmd *cobra.Command, args []string) error {
	newName := strings.TrimSpace(args[1])
	if newName == "" {
		return errors.New("new nickname must not be empty")
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	record, err := a.lookup(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if err := a.control.SetNickname(cmd.Context(), record.Identifier, newName); err != nil {
		log.Error().Err(err).Str("server", record.Name()).Msg("failed to rename server")
		return err
	}

	// Renames invalidate the identity map.
	m, err := a.identities(cmd.Context())
	if err != nil {
		return err
	}
	if _, err := a.resolver.Resolve(m, newName); err != nil {
		log.Warn().Str("nickname", newName).Msg("renamed server is not visible under its new nickname yet")
	}

	log.Info().
		Str("identifier", record.Identifier).
		Str("from", record.Name()).
		Str("to", newName).
		Msg("server renamed")
	return nil
}

func runPassword(cmd *cobra.Command, args []string) error {
	password, err := readSecret(cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.control.ChangePassword(cmd.Context(), password); err != nil {
		log.Error().Err(err).Msg("failed to change password")
		return err
	}

	log.Info().Msg("password changed, update the config file before the next run")
	return nil
}

func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password given on stdin")
	}
	return line, nil
}
