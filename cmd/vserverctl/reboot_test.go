package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/fgeck/vserverctl/internal/models"
	"github.com/fgeck/vserverctl/internal/services/orchestrator"
	"github.com/fgeck/vserverctl/internal/services/resolver"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdentities() models.IdentityMap {
	return models.IdentityMap{
		"web1": {Identifier: "v1", Nickname: "web1", HasNickname: true},
		"db":   {Identifier: "v2", Nickname: "db", HasNickname: true},
		"v3":   {Identifier: "v3"},
	}
}

func testResolver() resolver.Service {
	return resolver.New(zerolog.New(io.Discard), nil)
}

func TestSweep_AllServers(t *testing.T) {
	var reset []string
	resetFn := func(_ context.Context, r models.ServerRecord) error {
		reset = append(reset, r.Identifier)
		return nil
	}

	var buf bytes.Buffer
	result := sweep(context.Background(), &buf, testResolver(), testIdentities(), nil, resetFn)

	assert.Equal(t, []string{"v2", "v3", "v1"}, reset)
	assert.Equal(t, []string{"db", "v3", "web1"}, result.Reset)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 3, result.Attempted())
}

func TestSweep_NotFoundContinues(t *testing.T) {
	var reset []string
	resetFn := func(_ context.Context, r models.ServerRecord) error {
		reset = append(reset, r.Name())
		return nil
	}

	var buf bytes.Buffer
	result := sweep(context.Background(), &buf, testResolver(), testIdentities(), []string{"ghost", "web1"}, resetFn)

	assert.Equal(t, []string{"web1"}, reset)
	assert.Equal(t, []string{"ghost"}, result.NotFound)
	assert.Contains(t, buf.String(), `server "ghost" not found, skipping`)
	assert.Equal(t, 1, result.Attempted())
}

func TestSweep_FailureContinues(t *testing.T) {
	resetFn := func(_ context.Context, r models.ServerRecord) error {
		if r.Name() == "db" {
			return fmt.Errorf("%w: server is locked", models.ErrRemoteRejected)
		}
		return nil
	}

	var buf bytes.Buffer
	result := sweep(context.Background(), &buf, testResolver(), testIdentities(), []string{"db", "web1"}, resetFn)

	assert.Equal(t, []string{"db"}, result.Failed)
	assert.Equal(t, []string{"web1"}, result.Reset)
	assert.Contains(t, buf.String(), "reset of db (v2) failed")
}

func TestSweep_CancelledBetweenServers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	resetFn := func(_ context.Context, r models.ServerRecord) error {
		calls++
		cancel()
		return nil
	}

	var buf bytes.Buffer
	result := sweep(ctx, &buf, testResolver(), testIdentities(), []string{"web1", "db", "v3"}, resetFn)

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"web1"}, result.Reset)
	assert.Equal(t, []string{"db", "v3"}, result.Skipped)
}

func TestWriteFailure_TransfersPaused(t *testing.T) {
	err := &orchestrator.PhaseError{
		WorkflowID:      "wf-1",
		Server:          "web1",
		Identifier:      "v1",
		Phase:           models.PhaseResetting,
		LastCompleted:   models.PhaseCooldown1,
		TransfersPaused: true,
		ResetAttempted:  true,
		Err:             errors.New("hard reset: rejected"),
	}

	var buf bytes.Buffer
	writeFailure(&buf, fmt.Errorf("wrapped: %w", err))

	out := buf.String()
	assert.Contains(t, out, "Failed phase:         resetting")
	assert.Contains(t, out, "Last completed phase: cooldown_1")
	assert.Contains(t, out, "Transfers paused:     yes")
	assert.Contains(t, out, "Reset attempted:      yes")
	assert.Contains(t, out, "vserverctl transfers resume web1")
}

func TestWriteFailure_BeforePause(t *testing.T) {
	err := &orchestrator.PhaseError{
		Server:        "web1",
		Identifier:    "v1",
		Phase:         models.PhasePausing,
		LastCompleted: models.PhaseIdle,
		Err:           models.ErrAuth,
	}

	var buf bytes.Buffer
	writeFailure(&buf, err)

	assert.Contains(t, buf.String(), "Transfers paused:     no")
	assert.NotContains(t, buf.String(), "transfers resume")
}

func TestWriteFailure_OtherError(t *testing.T) {
	var buf bytes.Buffer
	writeFailure(&buf, errors.New("boom"))

	require.Empty(t, buf.String())
}
