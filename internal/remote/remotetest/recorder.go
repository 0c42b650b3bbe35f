// Package remotetest provides an in-memory remote.Executor that records
// what it is asked to run.
package remotetest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"dohgen/internal/remote"
)

// Call is one recorded invocation.
type Call struct {
	Host  string
	Start bool
	Cmd   remote.Command
}

// String renders the call as "host run|start $|# argv", followed by
// `<<< "stdin"` when input is fed.
func (c Call) String() string {
	verb := "run"
	if c.Start {
		verb = "start"
	}
	prompt := "$"
	if c.Cmd.Privileged {
		prompt = "#"
	}
	s := fmt.Sprintf("%s %s %s %s", c.Host, verb, prompt, c.Cmd.String())
	if c.Cmd.Stdin != "" {
		s += fmt.Sprintf(" <<< %q", c.Cmd.Stdin)
	}
	return s
}

// Log is an ordered transcript shared by several recorders, so the
// interleaving across hosts can be asserted.
type Log struct {
	mu      sync.Mutex
	entries []string
	calls   []Call
}

// Note appends a free-form entry, such as a wait.
func (l *Log) Note(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *Log) add(c Call) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
	l.entries = append(l.entries, c.String())
}

// Entries returns a copy of the transcript.
func (l *Log) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// Calls returns a copy of the recorded command calls.
func (l *Log) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Call(nil), l.calls...)
}

// Count returns how many entries contain substr.
func (l *Log) Count(substr string) int {
	n := 0
	for _, e := range l.Entries() {
		if strings.Contains(e, substr) {
			n++
		}
	}
	return n
}

// Recorder implements remote.Executor without touching any machine.
type Recorder struct {
	Name string
	OS   remote.Platform
	Log  *Log

	// Fail, when set, decides the outcome of each call.  The call is
	// recorded either way.
	Fail func(c Call) error

	mu     sync.Mutex
	closed bool
}

// New returns a linux recorder named host writing to log.
func New(host string, log *Log) *Recorder {
	return &Recorder{Name: host, OS: remote.Linux, Log: log}
}

func (r *Recorder) Host() string { return r.Name }

func (r *Recorder) Platform() remote.Platform {
	if r.OS == "" {
		return remote.Linux
	}
	return r.OS
}

func (r *Recorder) Run(ctx context.Context, cmd remote.Command) error {
	return r.record(ctx, Call{Host: r.Name, Cmd: cmd})
}

func (r *Recorder) Start(ctx context.Context, cmd remote.Command) error {
	return r.record(ctx, Call{Host: r.Name, Start: true, Cmd: cmd})
}

func (r *Recorder) record(ctx context.Context, c Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Log.add(c)
	if r.Fail != nil {
		return r.Fail(c)
	}
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

var _ remote.Executor = (*Recorder)(nil)
