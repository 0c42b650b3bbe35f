// Package mux starts detachable background processes on testbed hosts
// and talks to them afterwards.
//
// On linux hosts every process runs under dtach, which leaves a unix
// socket behind that later input is written to.  Windows hosts have no
// equivalent; processes there are started in the background without an
// input channel and can only be killed.
package mux

import (
	"context"
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	ncerr "dohgen/internal/errors"
	"dohgen/internal/metrics"
	"dohgen/internal/remote"
	"dohgen/internal/session"
	"dohgen/util"
)

// DefaultDtach is the multiplexer binary looked up on the remote PATH.
const DefaultDtach = "dtach"

// nameLen is the length of generated session names.
const nameLen = 6

// Mux spawns, feeds and kills remote processes, keeping the session
// registry in step.
type Mux struct {
	reg       *session.Registry
	socketDir string
	dtach     string
	logger    *util.Logger
	metrics   *metrics.Collector

	// NewName generates session names when the caller supplies none.
	// Collisions with live sockets are not checked.
	NewName func() string
}

// New returns a Mux that places sockets under socketDir.
func New(reg *session.Registry, socketDir string, logger *util.Logger, m *metrics.Collector) *Mux {
	if socketDir == "" {
		socketDir = "/tmp"
	}
	return &Mux{
		reg:       reg,
		socketDir: socketDir,
		dtach:     DefaultDtach,
		logger:    logger,
		metrics:   m,
		NewName:   RandomName,
	}
}

// RandomName returns a short random hex identifier.
func RandomName() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])[:nameLen]
}

// Registry returns the registry the Mux updates.
func (m *Mux) Registry() *session.Registry { return m.reg }

// Spawn runs cmd detached on ex in the given role and returns an
// Active handle.  name may be empty, in which case a random one is
// generated.
func (m *Mux) Spawn(ctx context.Context, ex remote.Executor, role session.Role, cmd remote.Command, name string) (*session.Handle, error) {
	key := session.Key{Host: ex.Host(), Role: role}
	if err := m.reg.Reserve(key); err != nil {
		return nil, err
	}
	if name == "" {
		name = m.NewName()
	}

	var (
		socket string
		err    error
	)
	switch ex.Platform() {
	case remote.Windows:
		err = ex.Start(ctx, cmd)
	default:
		socket = path.Join(m.socketDir, name)
		wrapped := remote.Command{
			Args:       append([]string{m.dtach, "-n", socket}, cmd.Args...),
			Privileged: cmd.Privileged,
			Stdin:      cmd.Stdin,
		}
		err = ex.Run(ctx, wrapped)
	}
	if err != nil {
		m.metrics.SpawnFailed(string(role), err.Error())
		return nil, ncerr.WrapSpawn(ex.Host(), string(role), err)
	}

	h := session.NewHandle(key, name, socket, cmd.Privileged)
	if err := m.reg.Activate(h); err != nil {
		return nil, err
	}
	m.metrics.Spawned(string(role))
	m.logger.Verbose("spawned %s as %s", key, name)
	return h, nil
}

// Send delivers one line of input to the process behind h.  Nothing is
// read back; success only means the multiplexer accepted the bytes.
func (m *Mux) Send(ctx context.Context, ex remote.Executor, h *session.Handle, text string) error {
	switch {
	case h == nil:
		return m.sendFailed(&ncerr.HandleInvalidError{Handle: "<nil>", Reason: "unknown session"})
	case h.State() == session.Dead:
		return m.sendFailed(&ncerr.HandleInvalidError{Handle: h.String(), Reason: "dead", Err: ncerr.ErrHandleDead})
	case h.State() != session.Active:
		return m.sendFailed(&ncerr.HandleInvalidError{Handle: h.String(), Reason: "not started"})
	case h.Socket == "":
		return m.sendFailed(&ncerr.HandleInvalidError{Handle: h.String(), Reason: "no input channel on this platform"})
	}

	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	cmd := remote.Command{
		Args:       []string{m.dtach, "-p", h.Socket},
		Privileged: h.Privileged,
		Stdin:      text,
	}
	if err := ex.Run(ctx, cmd); err != nil {
		// dtach -p only fails when the socket has no process behind it.
		m.reg.Kill(h)
		return m.sendFailed(&ncerr.HandleInvalidError{Handle: h.String(), Reason: "multiplexer rejected input", Err: err})
	}
	m.metrics.CommandSent()
	m.logger.Debug("sent to %s: %s", h, strings.TrimSpace(text))
	return nil
}

func (m *Mux) sendFailed(err *ncerr.HandleInvalidError) error {
	m.metrics.SendFailed(err.Error())
	return err
}

// KillAll terminates every process on ex whose name is in names.  A
// polite signal goes first and a forceful one follows after grace.
// Failures are logged and swallowed; the call is always safe to repeat.
// Handles are not touched; see Release.
func (m *Mux) KillAll(ctx context.Context, ex remote.Executor, names []string, grace time.Duration) {
	if len(names) == 0 {
		return
	}
	var cmds []remote.Command
	switch ex.Platform() {
	case remote.Windows:
		for _, n := range names {
			if !strings.HasSuffix(strings.ToLower(n), ".exe") {
				n += ".exe"
			}
			cmds = append(cmds, remote.Cmd("taskkill", "/IM", n, "/F"))
		}
	default:
		cmds = append(cmds, killCommand(names, grace))
	}

	m.logger.Verbose("killing %s on %s", strings.Join(names, ", "), ex.Host())
	for _, c := range cmds {
		if err := ex.Run(ctx, c); err != nil {
			m.logger.Debug("kill on %s: %v", ex.Host(), err)
		}
	}
}

// Release marks the handles on host in the given roles Dead.
func (m *Mux) Release(host string, roles ...session.Role) {
	if n := m.reg.KillHost(host, roles...); n > 0 {
		m.logger.Debug("released %d session(s) on %s", n, host)
	}
}

// killCommand builds a single privileged shell invocation that sends
// SIGTERM, waits, then sends SIGKILL.  Process names travel as
// positional parameters, never inside the script text.
func killCommand(names []string, grace time.Duration) remote.Command {
	script := fmt.Sprintf(
		`killall -q -- "$@"; sleep %s; killall -q -9 -- "$@"; true`,
		strconv.FormatFloat(grace.Seconds(), 'f', -1, 64))
	args := append([]string{"sh", "-c", script, "killall"}, names...)
	return remote.Command{Args: args, Privileged: true}
}
