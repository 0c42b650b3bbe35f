package core

import (
	"context"
	"time"

	"dohgen/internal/remote"
	"dohgen/internal/session"
)

// dnscat2 console commands.
const (
	cmdFirstSession = "session -i 1"
	cmdShell        = "shell"
	cmdShellSession = "session -i 2"
	cmdShutdown     = "shutdown"
	cmdQuit         = "quit"
)

// dnscat2Flow drives an interactive C&C conversation: the server
// console is fed commands that travel to the client over the tunnel.
type dnscat2Flow struct{}

func (dnscat2Flow) server(o *Orchestrator) remote.Command { return o.Tools.Dnscat2Server() }
func (dnscat2Flow) serverName() string { return "dnscat2" }
func (dnscat2Flow) interactive() bool { return true }

func (dnscat2Flow) startClient(ctx context.Context, o *Orchestrator, r *run) error {
	vic := o.Testbed.Victim
	cmd := o.Tools.Dnscat2Client(o.Testbed.ProxyIP, r.Params.Delay)
	if _, err := o.Mux.Spawn(ctx, vic, session.RoleClient, cmd, ""); err != nil {
		return err
	}
	r.log.Info("Client started with delay %d", r.Params.Delay)
	return nil
}

// setup attaches the console to the client session and, when asked,
// opens a shell channel and switches to it.
func (dnscat2Flow) setup(ctx context.Context, o *Orchestrator, r *run) {
	send(ctx, o, r, cmdFirstSession)
	if !r.sc.ShellCommands {
		return
	}
	send(ctx, o, r, cmdShell)
	o.wait(ctx, r.log, o.Timing.ShellSettle)
	send(ctx, o, r, cmdShellSession)
}

// commands sends randomly chosen commands with random pauses.  The
// first failed send abandons the loop.
func (dnscat2Flow) commands(ctx context.Context, o *Orchestrator, r *run) {
	limit := r.sc.IterationLimit(r.Params)
	for i := 0; i < limit; i++ {
		c := r.sc.ChooseCommand(o.Rand)
		if err := send(ctx, o, r, c); err != nil {
			r.log.Error("command loop abandoned after %d of %d: %v", i, limit, err)
			return
		}
		r.CommandsSent++
		pause := time.Duration(r.sc.RandomSecondsInterval.Sample(o.Rand)) * time.Second
		o.wait(ctx, r.log, pause)
	}
	o.wait(ctx, r.log, o.Timing.PostCommands)
}

func (dnscat2Flow) shutdown(ctx context.Context, o *Orchestrator, r *run) {
	o.wait(ctx, r.log, o.Timing.PreShutdown)
	send(ctx, o, r, cmdShutdown)
	o.wait(ctx, r.log, o.Timing.ShutdownGrace)
	send(ctx, o, r, cmdQuit)
	o.wait(ctx, r.log, o.Timing.ShutdownGrace)
}

// send writes line to the server console.  Failures are logged and
// returned; none of them abort the run.
func send(ctx context.Context, o *Orchestrator, r *run, line string) error {
	r.log.Verbose("> %s", line)
	err := o.Mux.Send(ctx, o.Testbed.Attacker, r.server, line)
	if err != nil {
		r.log.Warn("send %q: %v", line, err)
	}
	return err
}
