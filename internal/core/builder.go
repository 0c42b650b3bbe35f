package core

import (
	"fmt"
	"math/rand"
	"time"

	"dohgen/config"
	"dohgen/internal/cancel"
	"dohgen/internal/metrics"
	"dohgen/internal/mux"
	"dohgen/internal/session"
	"dohgen/internal/tools"
	"dohgen/scenario"
	"dohgen/util"
)

// Deps are the runtime collaborators Build wires together.  The hosts
// must already be connected.
type Deps struct {
	Testbed   Testbed
	Scenarios *scenario.Repository
	Token     *cancel.Token
	Logger    *util.Logger
	Metrics   *metrics.Collector // optional
	Journal   Journal            // optional
}

// Build constructs the Scheduler for cfg.  One random source drives
// both scenario selection and parameter sampling, so a fixed seed
// replays the same sequence.
func Build(cfg *config.Config, d Deps) (*Scheduler, error) {
	v, err := scenario.ParseVariant(cfg.Variant)
	if err != nil {
		return nil, err
	}
	if d.Scenarios == nil {
		return nil, fmt.Errorf("no scenario repository")
	}
	if d.Scenarios.Variant() != v {
		return nil, fmt.Errorf("scenarios were loaded for %s, config selects %s", d.Scenarios.Variant(), v)
	}
	if d.Testbed.Attacker == nil || d.Testbed.Victim == nil {
		return nil, fmt.Errorf("attacker and victim executors are required")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	d.Logger.Verbose("random seed %d", seed)
	rng := rand.New(rand.NewSource(seed))

	o := &Orchestrator{
		Variant: v,
		Testbed: d.Testbed,
		Mux:     mux.New(session.NewRegistry(), cfg.SocketDir, d.Logger, d.Metrics),
		Tools:   tools.New(cfg),
		Timing:  cfg.Timing,
		Rand:    rng,
		Logger:  d.Logger,
		Metrics: d.Metrics,
		Journal: d.Journal,
	}

	return &Scheduler{
		Orchestrator: o,
		Scenarios:    d.Scenarios,
		Token:        d.Token,
		Rand:         rng,
		Logger:       d.Logger,
		MaxRuns:      cfg.MaxRuns,
	}, nil
}
