// Package orchestrator runs the coordinated reboot workflow: pause the
// download client, wait, hard-reset the server, wait, resume the download
// client.
//
// Phases never roll back. A failed pause aborts before the server is touched;
// a failed reset or resume leaves transfers paused for the operator to resume.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fgeck/vserverctl/internal/models"
	"github.com/fgeck/vserverctl/internal/services/events"
	"github.com/fgeck/vserverctl/internal/services/metrics"
	"github.com/fgeck/vserverctl/internal/services/qbittorrent"
	"github.com/fgeck/vserverctl/internal/services/telegram"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// notifyTimeout bounds the best-effort reporting done after a run.
const notifyTimeout = 30 * time.Second

// Service defines the interface for the reboot orchestrator.
type Service interface {
	Reboot(ctx context.Context, target models.ServerRecord) (*models.RebootWorkflow, error)
}

// ControlAPI is the subset of the control API the orchestrator needs.
type ControlAPI interface {
	SetPowerState(ctx context.Context, identifier string, action models.PowerAction) error
}

// DownloadClient is the subset of the download client API the orchestrator needs.
type DownloadClient interface {
	Login(ctx context.Context, baseURL string) (*models.DownloadSession, error)
	PauseAll(ctx context.Context, session *models.DownloadSession) error
	ResumeAll(ctx context.Context, session *models.DownloadSession) error
}

// Impl implements the orchestrator Service interface.
type Impl struct {
	control     ControlAPI
	downloads   DownloadClient
	telegramSvc telegram.Service
	publisher   events.Publisher
	recorder    metrics.Recorder
	clock       Clock
	cfg         models.Config
	logger      zerolog.Logger
}

// New creates a new orchestrator with the real clock and no event or
// metrics sinks.
func New(logger zerolog.Logger, cfg models.Config, control ControlAPI, downloads DownloadClient) *Impl {
	return &Impl{
		control:     control,
		downloads:   downloads,
		telegramSvc: telegram.New(logger),
		publisher:   events.Nop{},
		recorder:    metrics.Nop{},
		clock:       RealClock{},
		cfg:         cfg,
		logger:      logger,
	}
}

// NewWithServices creates a new orchestrator with custom collaborators.
func NewWithServices(
	logger zerolog.Logger,
	cfg models.Config,
	control ControlAPI,
	downloads DownloadClient,
	telegramSvc telegram.Service,
	publisher events.Publisher,
	recorder metrics.Recorder,
	clock Clock,
) *Impl {
	return &Impl{
		control:     control,
		downloads:   downloads,
		telegramSvc: telegramSvc,
		publisher:   publisher,
		recorder:    recorder,
		clock:       clock,
		cfg:         cfg,
		logger:      logger,
	}
}

// Reboot runs one coordinated reboot of target. The returned workflow is
// never nil; on failure the error is a *PhaseError.
//
// Cancellation of ctx is honoured only before the pause starts. After that
// the run continues to a terminal state regardless.
func (s *Impl) Reboot(ctx context.Context, target models.ServerRecord) (*models.RebootWorkflow, error) {
	wf := &models.RebootWorkflow{
		ID:             uuid.NewString(),
		Target:         target,
		CurrentPhase:   models.PhaseIdle,
		LastCompleted:  models.PhaseIdle,
		PhaseDeadlines: map[models.Phase]time.Time{},
		Outcome:        models.OutcomeRunning,
		StartedAt:      s.clock.Now(),
	}

	logger := s.logger.With().
		Str("workflow_id", wf.ID).
		Str("server", target.Name()).
		Str("identifier", target.Identifier).
		Logger()

	logger.Info().
		Dur("pause_cooldown", s.cfg.Reboot.PauseCooldown).
		Dur("boot_cooldown", s.cfg.Reboot.BootCooldown).
		Msg("starting coordinated reboot")

	defer func() {
		s.report(context.WithoutCancel(ctx), logger, wf)
	}()

	// Phase 1: pause all transfers
	s.enter(ctx, logger, wf, models.PhasePausing)
	if err := ctx.Err(); err != nil {
		return wf, s.fail(logger, wf, fmt.Errorf("canceled before pausing: %w", err))
	}

	// Phases are never interrupted part-way, so from here the run ignores
	// cancellation and reaches a terminal state.
	ctx = context.WithoutCancel(ctx)

	if err := s.pause(ctx, target); err != nil {
		return wf, s.fail(logger, wf, err)
	}
	s.complete(logger, wf)

	// Phase 2: let in-flight writes settle
	s.dwell(ctx, logger, wf, models.PhaseCooldown1, s.cfg.Reboot.PauseCooldown)

	// Phase 3: hard reset
	s.enter(ctx, logger, wf, models.PhaseResetting)
	if err := s.control.SetPowerState(ctx, target.Identifier, models.PowerHardReset); err != nil {
		return wf, s.fail(logger, wf, fmt.Errorf("hard reset: %w", err))
	}
	s.complete(logger, wf)

	// Phase 4: approximate the boot time, no readiness check
	s.dwell(ctx, logger, wf, models.PhaseCooldown2, s.cfg.Reboot.BootCooldown)

	// Phase 5: resume all transfers
	s.enter(ctx, logger, wf, models.PhaseResuming)
	if err := s.resume(ctx, target); err != nil {
		return wf, s.fail(logger, wf, err)
	}
	s.complete(logger, wf)

	wf.CurrentPhase = models.PhaseDone
	wf.Outcome = models.OutcomeDone
	wf.FinishedAt = s.clock.Now()

	logger.Info().
		Dur("duration", wf.FinishedAt.Sub(wf.StartedAt)).
		Msg("coordinated reboot completed successfully")

	return wf, nil
}

func (s *Impl) pause(ctx context.Context, target models.ServerRecord) error {
	session, err := s.openSession(ctx, target)
	if err != nil {
		return err
	}
	if err := s.downloads.PauseAll(ctx, session); err != nil {
		return fmt.Errorf("pause transfers: %w", err)
	}
	return nil
}

// resume logs in again: the download client runs on the rebooted host, so
// the session used for pausing did not survive.
func (s *Impl) resume(ctx context.Context, target models.ServerRecord) error {
	session, err := s.openSession(ctx, target)
	if err != nil {
		return err
	}
	if err := s.downloads.ResumeAll(ctx, session); err != nil {
		return fmt.Errorf("resume transfers: %w", err)
	}
	return nil
}

func (s *Impl) openSession(ctx context.Context, target models.ServerRecord) (*models.DownloadSession, error) {
	baseURL, err := qbittorrent.TargetURL(s.cfg.QBittorrent, target)
	if err != nil {
		return nil, err
	}
	session, err := s.downloads.Login(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("download client login: %w", err)
	}
	return session, nil
}

// dwell blocks for d unconditionally.
func (s *Impl) dwell(ctx context.Context, logger zerolog.Logger, wf *models.RebootWorkflow, phase models.Phase, d time.Duration) {
	s.enter(ctx, logger, wf, phase)
	deadline := s.clock.Now().Add(d)
	wf.PhaseDeadlines[phase] = deadline

	logger.Info().
		Str("phase", string(phase)).
		Dur("wait", d).
		Time("until", deadline).
		Msg("waiting")

	<-s.clock.After(d)
	s.complete(logger, wf)
}

func (s *Impl) enter(ctx context.Context, logger zerolog.Logger, wf *models.RebootWorkflow, phase models.Phase) {
	wf.CurrentPhase = phase
	logger.Debug().Str("phase", string(phase)).Msg("entering phase")
	s.publish(ctx, logger, wf)
}

func (s *Impl) complete(logger zerolog.Logger, wf *models.RebootWorkflow) {
	wf.LastCompleted = wf.CurrentPhase
	logger.Info().Str("phase", string(wf.CurrentPhase)).Msg("phase completed")
}

func (s *Impl) fail(logger zerolog.Logger, wf *models.RebootWorkflow, err error) error {
	wf.Outcome = models.OutcomeFailed
	wf.LastError = err
	wf.FinishedAt = s.clock.Now()

	phaseErr := &PhaseError{
		WorkflowID:      wf.ID,
		Server:          wf.Target.Name(),
		Identifier:      wf.Target.Identifier,
		Phase:           wf.CurrentPhase,
		LastCompleted:   wf.LastCompleted,
		TransfersPaused: wf.TransfersPaused(),
		ResetAttempted:  wf.ResetAttempted(),
		Err:             err,
	}

	event := logger.Error().
		Err(err).
		Str("phase", string(phaseErr.Phase)).
		Str("last_completed", string(phaseErr.LastCompleted)).
		Bool("transfers_paused", phaseErr.TransfersPaused).
		Bool("reset_attempted", phaseErr.ResetAttempted)
	if phaseErr.TransfersPaused {
		event.Msg("coordinated reboot failed, transfers remain paused and must be resumed manually")
	} else {
		event.Msg("coordinated reboot failed")
	}

	return phaseErr
}

func (s *Impl) publish(ctx context.Context, logger zerolog.Logger, wf *models.RebootWorkflow) {
	event := models.PhaseEvent{
		WorkflowID: wf.ID,
		Server:     wf.Target.Name(),
		Identifier: wf.Target.Identifier,
		Phase:      wf.CurrentPhase,
		Outcome:    wf.Outcome,
		Time:       s.clock.Now(),
	}
	if wf.LastError != nil {
		event.Error = wf.LastError.Error()
	}

	if err := s.publisher.Publish(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Str("phase", string(event.Phase)).Msg("failed to publish phase event")
	}
}

// report runs the best-effort sinks once the workflow is terminal. None of
// them can change the outcome.
func (s *Impl) report(ctx context.Context, logger zerolog.Logger, wf *models.RebootWorkflow) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	s.publish(ctx, logger, wf)

	if err := s.recorder.Record(wf); err != nil {
		logger.Warn().Err(err).Msg("failed to record metrics")
	}

	if s.cfg.Telegram != nil {
		s.sendNotification(ctx, logger, wf)
	}
}

func (s *Impl) sendNotification(ctx context.Context, logger zerolog.Logger, wf *models.RebootWorkflow) {
	msg := models.TelegramMessage{
		Success:    wf.Outcome == models.OutcomeDone,
		WorkflowID: wf.ID,
		Server:     wf.Target.Name(),
		Identifier: wf.Target.Identifier,
		StartTime:  wf.StartedAt,
		Duration:   wf.FinishedAt.Sub(wf.StartedAt),
	}

	if wf.Outcome == models.OutcomeFailed {
		msg.FailedPhase = wf.CurrentPhase
		msg.LastCompleted = wf.LastCompleted
		msg.TransfersPaused = wf.TransfersPaused()
		msg.ResetAttempted = wf.ResetAttempted()
		if wf.LastError != nil {
			msg.ErrorMessage = wf.LastError.Error()
		}
	}

	result, err := s.telegramSvc.SendNotification(ctx, *s.cfg.Telegram, msg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	logger.Info().Msg("Telegram notification sent")
}
