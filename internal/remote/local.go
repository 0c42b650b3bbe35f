package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"dohgen/util"
)

// LocalExecutor runs commands on the controller itself.  Arguments are
// passed to the program directly, without a shell.
type LocalExecutor struct {
	platform     Platform
	sudoPassword string
	logger       *util.Logger
}

// NewLocalExecutor returns an executor for the machine dohgen runs on.
func NewLocalExecutor(sudoPassword string, logger *util.Logger) *LocalExecutor {
	p := Linux
	if runtime.GOOS == "windows" {
		p = Windows
	}
	return &LocalExecutor{platform: p, sudoPassword: sudoPassword, logger: logger}
}

func (l *LocalExecutor) Host() string { return "local" }
func (l *LocalExecutor) Platform() Platform { return l.platform }
func (l *LocalExecutor) Close() error { return nil }

// Run executes cmd and waits for it.
func (l *LocalExecutor) Run(ctx context.Context, cmd Command) error {
	c, err := l.build(ctx, cmd)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out

	l.logger.Debug("local$ %s", cmd.String())

	if err := c.Run(); err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			return &ExitError{Host: l.Host(), Cmd: cmd.String(), Status: exit.ExitCode(), Output: tail(out.Bytes())}
		}
		return fmt.Errorf("local: %q: %w", cmd.String(), err)
	}
	return nil
}

// Start launches cmd and reaps it in the background.  The process is
// not tied to ctx so it outlives the call.
func (l *LocalExecutor) Start(_ context.Context, cmd Command) error {
	c, err := l.build(context.Background(), cmd)
	if err != nil {
		return err
	}

	l.logger.Debug("local$ %s &", cmd.String())

	if err := c.Start(); err != nil {
		return fmt.Errorf("local: starting %q: %w", cmd.String(), err)
	}
	go func() {
		if err := c.Wait(); err != nil {
			l.logger.Debug("local: %q ended: %v", cmd.String(), err)
		}
	}()
	return nil
}

func (l *LocalExecutor) build(ctx context.Context, cmd Command) (*exec.Cmd, error) {
	if len(cmd.Args) == 0 {
		return nil, fmt.Errorf("local: empty command")
	}
	args := cmd.Args
	stdin := cmd.Stdin
	if cmd.Privileged && l.platform == Linux {
		if l.sudoPassword == "" {
			args = append([]string{"sudo", "-n"}, args...)
		} else {
			args = append([]string{"sudo", "-S", "-p", ""}, args...)
			stdin = l.sudoPassword + "\n" + stdin
		}
	}
	c := exec.CommandContext(ctx, args[0], args[1:]...)
	if stdin != "" {
		c.Stdin = strings.NewReader(stdin)
	}
	return c, nil
}
