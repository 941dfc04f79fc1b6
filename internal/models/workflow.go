package models

import "time"

// Phase is a step of the coordinated reboot.
type Phase string

// Reboot phases in execution order.
const (
	PhaseIdle      Phase = "idle"
	PhasePausing   Phase = "pausing"
	PhaseCooldown1 Phase = "cooldown_1"
	PhaseResetting Phase = "resetting"
	PhaseCooldown2 Phase = "cooldown_2"
	PhaseResuming  Phase = "resuming"
	PhaseDone      Phase = "done"
)

// Outcome is the terminal state of a workflow run.
type Outcome string

// Workflow outcomes.
const (
	OutcomeRunning Outcome = "running"
	OutcomeDone    Outcome = "done"
	OutcomeFailed  Outcome = "failed"
)

// RebootWorkflow is the in-memory record of one coordinated reboot.
type RebootWorkflow struct {
	ID             string
	Target         ServerRecord
	CurrentPhase   Phase
	LastCompleted  Phase // PhaseIdle until the first phase completes
	PhaseDeadlines map[Phase]time.Time
	Outcome        Outcome
	LastError      error
	StartedAt      time.Time
	FinishedAt     time.Time
}

// TransfersPaused reports whether the download client was left paused.
func (w *RebootWorkflow) TransfersPaused() bool {
	return w.reached(PhasePausing) && !w.reached(PhaseResuming)
}

// ResetAttempted reports whether the reset action was issued.
func (w *RebootWorkflow) ResetAttempted() bool {
	return w.CurrentPhase == PhaseResetting || w.reached(PhaseResetting)
}

// reached reports whether p completed successfully.
func (w *RebootWorkflow) reached(p Phase) bool {
	return phaseIndex(w.LastCompleted) >= phaseIndex(p)
}

// PhaseEvent describes a phase transition.
type PhaseEvent struct {
	WorkflowID string    `json:"workflow_id"`
	Server     string    `json:"server"`
	Identifier string    `json:"identifier"`
	Phase      Phase     `json:"phase"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

var phaseOrder = []Phase{
	PhaseIdle,
	PhasePausing,
	PhaseCooldown1,
	PhaseResetting,
	PhaseCooldown2,
	PhaseResuming,
	PhaseDone,
}

func phaseIndex(p Phase) int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}
