// Package metrics exports the result of the last reboot workflow in the
// Prometheus textfile collector format.
package metrics

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fgeck/vserverctl/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Recorder defines the interface for workflow metrics.
type Recorder interface {
	Record(wf *models.RebootWorkflow) error
}

// Nop discards metrics.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(*models.RebootWorkflow) error { return nil }

// TextfileRecorder writes one .prom file per server for node_exporter, so a
// sweep over several servers keeps every server's last result. The collector
// merges the files of a directory into one set of series.
type TextfileRecorder struct {
	path   string
	logger zerolog.Logger
}

// NewTextfile creates a recorder. Files are named after path with the server
// identifier appended to the base name.
func NewTextfile(logger zerolog.Logger, path string) *TextfileRecorder {
	return &TextfileRecorder{path: path, logger: logger}
}

// Path returns the file the metrics of identifier are written to.
func (r *TextfileRecorder) Path(identifier string) string {
	dir, base := filepath.Split(r.path)
	base = strings.TrimSuffix(base, ".prom")
	return filepath.Join(dir, base+"_"+sanitize(identifier)+".prom")
}

func sanitize(s string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			return c
		}
		return '_'
	}, s)
}

// Record writes the metrics of wf, replacing the server's previous file
// atomically.
func (r *TextfileRecorder) Record(wf *models.RebootWorkflow) error {
	labels := []string{"server", "identifier"}

	timestamp := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vserverctl_reboot_last_run_timestamp_seconds",
		Help: "Unix time the last coordinated reboot finished.",
	}, labels)
	success := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vserverctl_reboot_last_run_success",
		Help: "1 if the last coordinated reboot completed every phase.",
	}, labels)
	duration := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vserverctl_reboot_last_run_duration_seconds",
		Help: "Wall time of the last coordinated reboot.",
	}, labels)
	phase := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vserverctl_reboot_last_run_phase_info",
		Help: "Phase the last coordinated reboot stopped in.",
	}, append(labels, "phase", "last_completed", "outcome"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(timestamp, success, duration, phase)

	server, id := wf.Target.Name(), wf.Target.Identifier
	timestamp.WithLabelValues(server, id).Set(float64(wf.FinishedAt.Unix()))
	duration.WithLabelValues(server, id).Set(wf.FinishedAt.Sub(wf.StartedAt).Seconds())
	if wf.Outcome == models.OutcomeDone {
		success.WithLabelValues(server, id).Set(1)
	} else {
		success.WithLabelValues(server, id).Set(0)
	}
	phase.WithLabelValues(server, id, string(wf.CurrentPhase), string(wf.LastCompleted), string(wf.Outcome)).Set(1)

	path := r.Path(id)
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}

	r.logger.Debug().Str("path", path).Msg("metrics written")
	return nil
}
