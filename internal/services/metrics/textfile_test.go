package metrics

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/vserverctl/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func finishedWorkflow(outcome models.Outcome, phase, last models.Phase) *models.RebootWorkflow {
	return finishedWorkflowFor(models.ServerRecord{Identifier: "v123", Nickname: "web1", HasNickname: true}, outcome, phase, last)
}

func finishedWorkflowFor(target models.ServerRecord, outcome models.Outcome, phase, last models.Phase) *models.RebootWorkflow {
	start := time.Unix(1700000000, 0)
	return &models.RebootWorkflow{
		ID:            "wf-" + target.Identifier,
		Target:        target,
		CurrentPhase:  phase,
		LastCompleted: last,
		Outcome:       outcome,
		StartedAt:     start,
		FinishedAt:    start.Add(125 * time.Second),
	}
}

func TestRecord_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vserverctl.prom")
	rec := NewTextfile(testLogger(), path)

	err := rec.Record(finishedWorkflow(models.OutcomeDone, models.PhaseDone, models.PhaseResuming))
	require.NoError(t, err)

	content, err := os.ReadFile(rec.Path("v123"))
	require.NoError(t, err)
	text := string(content)

	assert.Contains(t, text, `vserverctl_reboot_last_run_success{identifier="v123",server="web1"} 1`)
	assert.Contains(t, text, `vserverctl_reboot_last_run_duration_seconds{identifier="v123",server="web1"} 125`)
	assert.Contains(t, text, `vserverctl_reboot_last_run_timestamp_seconds{identifier="v123",server="web1"} 1.700000125e+09`)
	assert.Contains(t, text, `phase="done"`)
}

func TestRecord_Failure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vserverctl.prom")
	rec := NewTextfile(testLogger(), path)

	err := rec.Record(finishedWorkflow(models.OutcomeFailed, models.PhaseResetting, models.PhaseCooldown1))
	require.NoError(t, err)

	content, err := os.ReadFile(rec.Path("v123"))
	require.NoError(t, err)
	text := string(content)

	assert.Contains(t, text, `vserverctl_reboot_last_run_success{identifier="v123",server="web1"} 0`)
	assert.Contains(t, text, `last_completed="cooldown_1"`)
	assert.Contains(t, text, `outcome="failed"`)
	assert.Contains(t, text, `phase="resetting"`)
}

func TestRecord_UnwritableDirectory(t *testing.T) {
	rec := NewTextfile(testLogger(), filepath.Join(t.TempDir(), "missing", "x.prom"))

	err := rec.Record(finishedWorkflow(models.OutcomeDone, models.PhaseDone, models.PhaseResuming))
	assert.Error(t, err)
}

func TestRecord_KeepsEveryServer(t *testing.T) {
	dir := t.TempDir()
	rec := NewTextfile(testLogger(), filepath.Join(dir, "vserverctl.prom"))

	first := models.ServerRecord{Identifier: "v1", Nickname: "web1", HasNickname: true}
	second := models.ServerRecord{Identifier: "v2", Nickname: "web2", HasNickname: true}

	require.NoError(t, rec.Record(finishedWorkflowFor(first, models.OutcomeFailed, models.PhaseResetting, models.PhaseCooldown1)))
	require.NoError(t, rec.Record(finishedWorkflowFor(second, models.OutcomeDone, models.PhaseDone, models.PhaseResuming)))

	content, err := os.ReadFile(filepath.Join(dir, "vserverctl_v1.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `vserverctl_reboot_last_run_success{identifier="v1",server="web1"} 0`)
	assert.NotContains(t, string(content), `identifier="v2"`)

	content, err = os.ReadFile(filepath.Join(dir, "vserverctl_v2.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `vserverctl_reboot_last_run_success{identifier="v2",server="web2"} 1`)
}

func TestPath(t *testing.T) {
	rec := NewTextfile(testLogger(), "/var/lib/node_exporter/vserverctl.prom")

	assert.Equal(t, "/var/lib/node_exporter/vserverctl_v123.prom", rec.Path("v123"))
	assert.Equal(t, "/var/lib/node_exporter/vserverctl_a_b.prom", rec.Path("a/b"))

	rec = NewTextfile(testLogger(), "metrics")
	assert.Equal(t, "metrics_v1.prom", rec.Path("v1"))
}
