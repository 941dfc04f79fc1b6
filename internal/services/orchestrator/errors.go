package orchestrator

import (
	"fmt"

	"github.com/fgeck/vserverctl/internal/models"
)

// PhaseError reports where a reboot workflow stopped and the state it left
// the server and its download client in.
type PhaseError struct {
	WorkflowID      string
	Server          string
	Identifier      string
	Phase           models.Phase
	LastCompleted   models.Phase
	TransfersPaused bool
	ResetAttempted  bool
	Err             error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("reboot of %s (%s) failed in phase %s, last completed %s, transfers paused: %t, reset attempted: %t: %v",
		e.Server, e.Identifier, e.Phase, e.LastCompleted, e.TransfersPaused, e.ResetAttempted, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
