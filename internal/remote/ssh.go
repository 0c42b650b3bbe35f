package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "dohgen/internal/errors"
	"dohgen/util"
)

// SSHConfig holds everything needed to reach one testbed host.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	Password      string // used before prompting when set
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// SudoPassword is written to sudo's stdin for privileged commands.
	// When empty, sudo runs non-interactively and must not need one.
	SudoPassword string

	Platform Platform
}

// SSHExecutor runs commands over one SSH connection, opening a new
// session channel per command.
type SSHExecutor struct {
	config *SSHConfig
	client *ssh.Client
	logger *util.Logger
	creds  credentials
	mu     sync.RWMutex
	alive  bool
}

// NewSSHExecutor creates an executor that is ready to [Connect].
func NewSSHExecutor(cfg *SSHConfig, logger *util.Logger) *SSHExecutor {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	if cfg.Platform == "" {
		cfg.Platform = Linux
	}
	return &SSHExecutor{config: cfg, logger: logger}
}

// Connect dials the host and completes the SSH handshake.
func (e *SSHExecutor) Connect(ctx context.Context) error {
	authMethods, err := e.creds.get(e.config)
	if err != nil {
		return ncerr.WrapSSH("auth", e.config.Host, e.config.Port, err)
	}

	hkCallback, err := hostKeyCallback(e.config)
	if err != nil {
		return ncerr.WrapSSH("hostkey", e.config.Host, e.config.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            e.config.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         e.config.ConnTimeout,
	}

	addr := util.FormatAddr(e.config.Host, e.config.Port)
	e.logger.Debug("SSH: dialing %s as %s", addr, e.config.User)

	dialer := net.Dialer{Timeout: e.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ncerr.WrapSSH("dial", e.config.Host, e.config.Port, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return ncerr.WrapSSH("handshake", e.config.Host, e.config.Port, classifyHandshake(err))
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	e.mu.Lock()
	e.client = client
	e.alive = true
	e.mu.Unlock()

	go e.monitor()

	e.logger.Verbose("connected to %s (%s)", e.Host(), e.config.Platform)
	return nil
}

// classifyHandshake maps common handshake failures onto sentinels so
// the CLI can print a targeted hint.
func classifyHandshake(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"):
		return fmt.Errorf("%w: %v", ncerr.ErrAuthFailed, err)
	case strings.Contains(msg, "knownhosts: key mismatch"):
		return fmt.Errorf("%w: %v", ncerr.ErrHostKeyMismatch, err)
	}
	return err
}

// Host returns user@host.
func (e *SSHExecutor) Host() string {
	if e.config.User == "" {
		return e.config.Host
	}
	return e.config.User + "@" + e.config.Host
}

// Platform reports the configured platform of the remote host.
func (e *SSHExecutor) Platform() Platform { return e.config.Platform }

// Run executes cmd in a fresh session and waits for it to exit.
func (e *SSHExecutor) Run(ctx context.Context, cmd Command) error {
	sess, line, err := e.prepare(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	var out bytes.Buffer
	sess.Stdout = &out
	sess.Stderr = &out

	e.logger.Debug("%s$ %s", e.Host(), line)

	done := make(chan error, 1)
	go func() { done <- sess.Run(line) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		sess.Close()
		return ctx.Err()
	}

	if err != nil {
		var exit *ssh.ExitError
		if ncerr.As(err, &exit) {
			return &ExitError{Host: e.Host(), Cmd: cmd.String(), Status: exit.ExitStatus(), Output: tail(out.Bytes())}
		}
		return fmt.Errorf("%s: %q: %w", e.Host(), cmd.String(), err)
	}
	if out.Len() > 0 {
		e.logger.Debug("%s> %s", e.Host(), strings.TrimRight(out.String(), "\n"))
	}
	return nil
}

// Start launches cmd in a fresh session without waiting for it.  The
// session is closed once the remote program exits.
func (e *SSHExecutor) Start(_ context.Context, cmd Command) error {
	sess, line, err := e.prepare(cmd)
	if err != nil {
		return err
	}
	sess.Stdout = io.Discard
	sess.Stderr = io.Discard

	e.logger.Debug("%s$ %s &", e.Host(), line)

	if err := sess.Start(line); err != nil {
		sess.Close()
		return fmt.Errorf("%s: starting %q: %w", e.Host(), cmd.String(), err)
	}
	go func() {
		err := sess.Wait()
		sess.Close()
		if err != nil {
			e.logger.Debug("%s: %q ended: %v", e.Host(), cmd.String(), err)
		}
	}()
	return nil
}

// prepare opens a session channel and renders the remote command line,
// wrapping it in sudo when the command is privileged.
func (e *SSHExecutor) prepare(cmd Command) (*ssh.Session, string, error) {
	if len(cmd.Args) == 0 {
		return nil, "", fmt.Errorf("%s: empty command", e.Host())
	}

	e.mu.RLock()
	client := e.client
	alive := e.alive
	e.mu.RUnlock()
	if !alive || client == nil {
		return nil, "", ncerr.ErrNotConnected
	}

	sess, err := client.NewSession()
	if err != nil {
		return nil, "", fmt.Errorf("%s: opening session: %w", e.Host(), err)
	}

	line, stdin := e.render(cmd)
	if stdin != "" {
		sess.Stdin = strings.NewReader(stdin)
	}
	return sess, line, nil
}

// render produces the command line and the bytes for its stdin.
func (e *SSHExecutor) render(cmd Command) (string, string) {
	line := cmd.String()
	if !cmd.Privileged || e.config.Platform == Windows {
		return line, cmd.Stdin
	}
	if e.config.SudoPassword == "" {
		return "sudo -n " + line, cmd.Stdin
	}
	// sudo consumes the first line of stdin; the rest reaches the program.
	return "sudo -S -p '' " + line, e.config.SudoPassword + "\n" + cmd.Stdin
}

// Close shuts down the SSH connection.
func (e *SSHExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.alive = false
	if e.client != nil {
		err := e.client.Close()
		e.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the connection is still up.
func (e *SSHExecutor) IsAlive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.alive
}

// monitor blocks until the SSH connection closes and flips the alive flag.
func (e *SSHExecutor) monitor() {
	e.mu.RLock()
	client := e.client
	e.mu.RUnlock()
	if client == nil {
		return
	}

	err := client.Wait()

	e.mu.Lock()
	e.alive = false
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn("connection to %s closed: %v", e.Host(), err)
	} else {
		e.logger.Debug("connection to %s closed", e.Host())
	}
}
