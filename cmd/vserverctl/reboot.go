package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fgeck/vserverctl/internal/models"
	"github.com/fgeck/vserverctl/internal/services/events"
	"github.com/fgeck/vserverctl/internal/services/metrics"
	"github.com/fgeck/vserverctl/internal/services/orchestrator"
	"github.com/fgeck/vserverctl/internal/services/resolver"
	"github.com/fgeck/vserverctl/internal/services/telegram"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var coordinated bool

var rebootCmd = &cobra.Command{
	Use:   "reboot <nickname>",
	Short: "Reboot a server without corrupting in-flight downloads",
	Long: `Execute the coordinated reboot workflow:
1. Pause all qBittorrent transfers on the server
2. Wait reboot.pause_cooldown for writes to settle
3. Hard reset the server
4. Wait reboot.boot_cooldown for the server to boot
5. Resume all qBittorrent transfers
6. Send Telegram notification (if configured)

Interrupting the command only takes effect before transfers are paused. If a
step fails after the pause, transfers stay paused until resumed with
"vserverctl transfers resume".`,
	Args: cobra.ExactArgs(1),
	RunE: runReboot,
}

var resetAllCmd = &cobra.Command{
	Use:   "reset-all [nickname...]",
	Short: "Hard reset every server, or the given ones",
	Long: `Hard reset every server on the account, or only the given nicknames.

Unknown nicknames and failed resets are reported and the sweep continues.
With --coordinated each server goes through the coordinated reboot workflow,
one server at a time.`,
	RunE: runResetAll,
}

func init() {
	resetAllCmd.Flags().BoolVar(&coordinated, "coordinated", false, "pause and resume qBittorrent around each reset")
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, stopping at the next safe point")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// newOrchestrator wires the reboot workflow with the sinks the config enables.
// The returned func releases them.
func (a *app) newOrchestrator() (*orchestrator.Impl, func()) {
	var publisher events.Publisher = events.Nop{}
	if a.cfg.Events != nil {
		p, err := events.Connect(log.Logger, *a.cfg.Events)
		if err != nil {
			log.Warn().Err(err).Str("url", a.cfg.Events.NATSURL).Msg("event publishing disabled")
		} else {
			publisher = p
		}
	}

	var recorder metrics.Recorder = metrics.Nop{}
	if a.cfg.Metrics != nil {
		recorder = metrics.NewTextfile(log.Logger, a.cfg.Metrics.TextfilePath)
	}

	orch := orchestrator.NewWithServices(
		log.Logger,
		*a.cfg,
		a.control,
		a.downloads,
		telegram.New(log.Logger),
		publisher,
		recorder,
		orchestrator.RealClock{},
	)
	return orch, publisher.Close
}

func runReboot(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}

	record, err := a.lookup(ctx, args[0])
	if err != nil {
		return err
	}

	orch, closeSinks := a.newOrchestrator()
	defer closeSinks()

	wf, err := orch.Reboot(ctx, record)
	if err != nil {
		writeFailure(cmd.ErrOrStderr(), err)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Reboot of %s (%s) completed in %s\n",
		record.Name(), record.Identifier, wf.FinishedAt.Sub(wf.StartedAt).Round(time.Second))
	return nil
}

// writeFailure prints the state a failed workflow left the server in.
func writeFailure(w io.Writer, err error) {
	var phaseErr *orchestrator.PhaseError
	if !errors.As(err, &phaseErr) {
		return
	}

	fmt.Fprintf(w, "Reboot of %s (%s) failed\n", phaseErr.Server, phaseErr.Identifier)
	fmt.Fprintf(w, "  Failed phase:         %s\n", phaseErr.Phase)
	fmt.Fprintf(w, "  Last completed phase: %s\n", phaseErr.LastCompleted)
	fmt.Fprintf(w, "  Transfers paused:     %s\n", yesNo(phaseErr.TransfersPaused))
	fmt.Fprintf(w, "  Reset attempted:      %s\n", yesNo(phaseErr.ResetAttempted))
	fmt.Fprintf(w, "  Error:                %v\n", phaseErr.Err)
	if phaseErr.TransfersPaused {
		fmt.Fprintf(w, "Resume transfers manually with: vserverctl transfers resume %s\n", phaseErr.Server)
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func runResetAll(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}

	m, err := a.identities(ctx)
	if err != nil {
		return err
	}

	reset := func(ctx context.Context, record models.ServerRecord) error {
		return a.control.SetPowerState(ctx, record.Identifier, models.PowerHardReset)
	}
	if coordinated {
		orch, closeSinks := a.newOrchestrator()
		defer closeSinks()
		reset = func(ctx context.Context, record models.ServerRecord) error {
			_, err := orch.Reboot(ctx, record)
			return err
		}
	}

	result := sweep(ctx, cmd.OutOrStdout(), a.resolver, m, args, reset)
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d resets failed: %v", len(result.Failed), result.Attempted(), result.Failed)
	}
	return nil
}

// sweepResult lists the servers a sweep touched by outcome.
type sweepResult struct {
	Reset    []string
	Failed   []string
	NotFound []string
	Skipped  []string
}

// Attempted returns the number of servers a reset was issued for.
func (r sweepResult) Attempted() int {
	return len(r.Reset) + len(r.Failed)
}

// sweep resets the named servers, or every server in m when names is empty.
// Servers are processed one at a time; cancellation stops the sweep between
// servers.
func sweep(
	ctx context.Context,
	w io.Writer,
	res resolver.Service,
	m models.IdentityMap,
	names []string,
	reset func(context.Context, models.ServerRecord) error,
) sweepResult {
	var result sweepResult

	if len(names) == 0 {
		for _, record := range m.Sorted() {
			names = append(names, record.Name())
		}
	}

	for i, name := range names {
		if ctx.Err() != nil {
			result.Skipped = append(result.Skipped, names[i:]...)
			fmt.Fprintf(w, "sweep interrupted, %d server(s) skipped\n", len(names)-i)
			break
		}

		record, err := res.Resolve(m, name)
		if err != nil {
			result.NotFound = append(result.NotFound, name)
			fmt.Fprintf(w, "server %q not found, skipping\n", name)
			continue
		}

		if err := reset(ctx, record); err != nil {
			result.Failed = append(result.Failed, record.Name())
			fmt.Fprintf(w, "reset of %s (%s) failed: %v\n", record.Name(), record.Identifier, err)
			log.Error().Err(err).Str("server", record.Name()).Msg("reset failed, continuing with next server")
			continue
		}

		result.Reset = append(result.Reset, record.Name())
		fmt.Fprintf(w, "reset %s (%s)\n", record.Name(), record.Identifier)
	}

	return result
}
