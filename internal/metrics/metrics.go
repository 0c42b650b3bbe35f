// Package metrics exports runtime statistics of a dataset generation
// session as Prometheus collectors.
//
// Every Collector owns its own registry, so tests and multiple
// sessions never collide on the global one.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
)

// Collector tracks scenario runs, spawns and injected commands.
type Collector struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	phaseAborts   *prometheus.CounterVec
	spawns        *prometheus.CounterVec
	spawnFailures *prometheus.CounterVec
	commandsSent  prometheus.Counter
	sendFailures  prometheus.Counter
	runDuration   prometheus.Histogram

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a collector registered on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dohgen_runs_total",
				Help: "Scenario runs by traffic variant and outcome.",
			},
			[]string{"variant", "outcome"},
		),
		phaseAborts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dohgen_phase_aborts_total",
				Help: "Runs aborted to reset, by the phase that failed.",
			},
			[]string{"phase"},
		),
		spawns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dohgen_spawns_total",
				Help: "Detached processes started, by role.",
			},
			[]string{"role"},
		),
		spawnFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dohgen_spawn_failures_total",
				Help: "Detached process starts that failed, by role.",
			},
			[]string{"role"},
		),
		commandsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dohgen_commands_sent_total",
			Help: "Lines delivered to interactive sessions.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dohgen_send_failures_total",
			Help: "Lines that could not be delivered.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dohgen_run_duration_seconds",
			Help:    "Wall time of one scenario run including reset.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 3600},
		}),
		startTime: time.Now(),
	}
	c.registry.MustRegister(
		c.runs, c.phaseAborts, c.spawns, c.spawnFailures,
		c.commandsSent, c.sendFailures, c.runDuration,
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ── Run metrics ──────────────────────────────────────────────────────

// RunFinished records one run and how long it took.
func (c *Collector) RunFinished(variant, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(variant, outcome).Inc()
	c.runDuration.Observe(d.Seconds())
}

// PhaseAborted records a run cut short by phase.
func (c *Collector) PhaseAborted(phase string) {
	if c == nil {
		return
	}
	c.phaseAborts.WithLabelValues(phase).Inc()
}

// ── Process metrics ──────────────────────────────────────────────────

// Spawned records a successful detached start.
func (c *Collector) Spawned(role string) {
	if c == nil {
		return
	}
	c.spawns.WithLabelValues(role).Inc()
}

// SpawnFailed records a failed detached start.
func (c *Collector) SpawnFailed(role, msg string) {
	if c == nil {
		return
	}
	c.spawnFailures.WithLabelValues(role).Inc()
	c.RecordError(msg)
}

// CommandSent records a delivered line.
func (c *Collector) CommandSent() {
	if c == nil {
		return
	}
	c.commandsSent.Inc()
}

// SendFailed records a line that could not be delivered.
func (c *Collector) SendFailed(msg string) {
	if c == nil {
		return
	}
	c.sendFailures.Inc()
	c.RecordError(msg)
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError stores the most recent error message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time summary for the end-of-session log.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	RunsCompleted    int64  `json:"runs_completed"`
	RunsAborted      int64  `json:"runs_aborted"`
	CommandsSent     int64  `json:"commands_sent"`
	SendFailures     int64  `json:"send_failures"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot gathers the registry into a summary.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	s := Snapshot{Uptime: time.Since(c.startTime).Truncate(time.Second).String()}

	families, err := c.registry.Gather()
	if err == nil {
		for _, mf := range families {
			for _, m := range mf.GetMetric() {
				switch mf.GetName() {
				case "dohgen_runs_total":
					for _, lp := range m.GetLabel() {
						if lp.GetName() != "outcome" {
							continue
						}
						switch lp.GetValue() {
						case OutcomeCompleted:
							s.RunsCompleted += int64(m.GetCounter().GetValue())
						case OutcomeAborted:
							s.RunsAborted += int64(m.GetCounter().GetValue())
						}
					}
				case "dohgen_commands_sent_total":
					s.CommandsSent = int64(m.GetCounter().GetValue())
				case "dohgen_send_failures_total":
					s.SendFailures = int64(m.GetCounter().GetValue())
				}
			}
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
