// Package cancel provides the stop request shared between the
// interrupt handler and the scheduler.
//
// Stopping is cooperative: a Token is only polled between scenario
// runs, so a run in progress, including its timed waits, always
// finishes and resets before the scheduler returns.
package cancel

import (
	"os"
	"os/signal"
	"sync/atomic"

	"dohgen/util"
)

// Token is a one-way stop flag.  It starts unset and, once set, stays
// set.  The zero value is ready to use.
type Token struct {
	set atomic.Bool
}

// New returns an unset token.
func New() *Token { return &Token{} }

// Cancel sets the token.  It reports whether this call was the one
// that set it.
func (t *Token) Cancel() bool {
	return t.set.CompareAndSwap(false, true)
}

// Cancelled reports whether a stop was requested.
func (t *Token) Cancelled() bool {
	return t.set.Load()
}

// OnInterrupt sets t when the process receives an interrupt.  Further
// interrupts are logged and otherwise ignored.  The returned function
// stops listening.
func OnInterrupt(t *Token, logger *util.Logger) (stop func()) {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigs, os.Interrupt)

	go func() {
		for {
			select {
			case <-sigs:
				if t.Cancel() {
					logger.Warn("Received SIGINT (CTRL+C). Stopping the execution gracefully")
				} else {
					logger.Warn("already stopping; waiting for the current scenario to reset")
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
