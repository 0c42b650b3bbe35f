package core

import (
	"context"
	"fmt"
	"math/rand"

	"dohgen/internal/cancel"
	ncerr "dohgen/internal/errors"
	"dohgen/scenario"
	"dohgen/util"
)

// Scheduler repeatedly picks a scenario uniformly at random and runs
// it until the stop token is set.
type Scheduler struct {
	Orchestrator *Orchestrator
	Scenarios    *scenario.Repository
	Token        *cancel.Token
	Rand         *rand.Rand
	Logger       *util.Logger

	// MaxRuns stops the loop after that many runs; 0 means no limit.
	MaxRuns int

	// OnRun, when set, receives every finished run.
	OnRun func(*Result)
}

// Run clears leftovers from a previous session, then loops.  The token
// is checked only between runs, so a stop request never cuts a run
// short.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Scenarios.Len() == 0 {
		return fmt.Errorf("%w: %w",
			&ncerr.ConfigError{Field: "scenarios", Message: "the scenario file is empty"}, ncerr.ErrNoScenarios)
	}
	if s.Token == nil {
		s.Token = cancel.New()
	}

	s.Logger.Info("%d scenario(s) loaded: %v", s.Scenarios.Len(), s.Scenarios.Labels())
	s.Orchestrator.Reset(ctx)
	if s.Rand == nil {
		s.Rand = s.Orchestrator.Rand
	}

	runs, aborted := 0, 0
	for !s.Token.Cancelled() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scheduler stopped: %w", err)
		}
		if s.MaxRuns > 0 && runs >= s.MaxRuns {
			break
		}

		sc := s.Scenarios.At(s.Rand.Intn(s.Scenarios.Len()))
		res := s.Orchestrator.Run(ctx, sc)
		runs++
		if res.Aborted() {
			aborted++
		}
		if s.OnRun != nil {
			s.OnRun(res)
		}
	}

	s.Logger.Info("stopped after %d run(s), %d aborted", runs, aborted)
	return nil
}
