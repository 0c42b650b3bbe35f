// Package errors defines the failures dohgen tells apart, from a tool
// that would not spawn to a dead session or a broken SSH link.  Is and
// As let callers import this package in place of the standard one.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotConnected    = errors.New("not connected")
	ErrHandleDead      = errors.New("session handle is dead")
	ErrRoleActive      = errors.New("a session for this role is already active")
	ErrNoScenarios     = errors.New("no scenarios loaded")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrHostKeyMismatch = errors.New("host key mismatch")
)

// SSHError is a failure on the link to one testbed host.  Op is one of
// dial, auth, hostkey, handshake, session or run.
type SSHError struct {
	Op   string
	Host string
	Port int
	Err  error
}

// WrapSSH tags err with the SSH step and endpoint it happened on.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// SpawnError means a tool could not be started under dtach.
type SpawnError struct {
	Host string
	Role string
	Err  error
}

// WrapSpawn tags err with the role that failed to start and its host.
func WrapSpawn(host, role string, err error) *SpawnError {
	return &SpawnError{Host: host, Role: role, Err: err}
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s on %s: %v", e.Role, e.Host, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// IsSpawnFailure reports whether a SpawnError is anywhere in err's chain.
func IsSpawnFailure(err error) bool {
	var se *SpawnError
	return errors.As(err, &se)
}

// HandleInvalidError rejects input for a session that is no longer
// Active, or that the remote dtach refused to attach to.
type HandleInvalidError struct {
	Handle string // e.g. "server@dohserver.local"
	Reason string
	Err    error
}

func (e *HandleInvalidError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session %s: %s", e.Handle, e.Reason)
	}
	return fmt.Sprintf("session %s: %s: %v", e.Handle, e.Reason, e.Err)
}

func (e *HandleInvalidError) Unwrap() error { return e.Err }

// IsHandleInvalid reports whether a HandleInvalidError is anywhere in
// err's chain.
func IsHandleInvalid(err error) bool {
	var he *HandleInvalidError
	return errors.As(err, &he)
}

// PhaseError names the orchestrator phase a run aborted in.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string { return "phase " + e.Phase + ": " + e.Err.Error() }

func (e *PhaseError) Unwrap() error { return e.Err }

// ConfigError is operator input that dohgen refuses to start with.
// Field is the flag name; Value is nil when the flag was missing.
type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
	Hint    string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config: --" + e.Field)
	if e.Value != nil {
		fmt.Fprintf(&b, "=%v", e.Value)
	}
	b.WriteString(": " + e.Message)
	if e.Hint != "" {
		b.WriteString("\n  hint: " + e.Hint)
	}
	return b.String()
}

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }
