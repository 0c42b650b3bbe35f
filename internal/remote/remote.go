// Package remote runs commands on the machines of the testbed.  An
// Executor hides whether a host is reached over SSH or is the local
// controller; callers hand it structured argument lists, never shell
// strings, so scenario-supplied values cannot break out of their
// argument.
package remote

import (
	"context"
	"fmt"

	shellquote "github.com/kballard/go-shellquote"
)

// Platform is the operating system family of a host.  It decides how
// processes are detached and how they are killed.
type Platform string

const (
	Linux   Platform = "linux"
	Windows Platform = "windows"
)

// ParsePlatform accepts "linux" or "windows".
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case Linux, Windows:
		return Platform(s), nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// Command is one program invocation.
type Command struct {
	Args       []string
	Privileged bool   // run as root (sudo)
	Stdin      string // fed to the program's standard input
}

// Cmd builds an unprivileged Command from argv.
func Cmd(args ...string) Command { return Command{Args: args} }

// AsRoot returns a copy of c marked privileged.
func (c Command) AsRoot() Command {
	c.Privileged = true
	return c
}

// WithStdin returns a copy of c that feeds s on standard input.
func (c Command) WithStdin(s string) Command {
	c.Stdin = s
	return c
}

// String renders argv as a POSIX shell line with every argument quoted.
func (c Command) String() string { return shellquote.Join(c.Args...) }

// Executor runs commands on one host.
type Executor interface {
	// Host names the machine, for logs and session handles.
	Host() string

	// Platform reports the host's operating system family.
	Platform() Platform

	// Run executes cmd and blocks until it exits.  A non-zero exit
	// status is an error.
	Run(ctx context.Context, cmd Command) error

	// Start launches cmd and returns without waiting for it.
	Start(ctx context.Context, cmd Command) error

	// Close releases the connection to the host.
	Close() error
}

// ExitError reports a command that ran but failed.
type ExitError struct {
	Host   string
	Cmd    string
	Status int
	Output string // trailing output, for diagnostics
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: %q exited with status %d", e.Host, e.Cmd, e.Status)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

// maxOutput bounds the command output kept in an ExitError.
const maxOutput = 512

// tail keeps the last maxOutput bytes of b.
func tail(b []byte) string {
	if len(b) > maxOutput {
		b = b[len(b)-maxOutput:]
	}
	return string(b)
}
