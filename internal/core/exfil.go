package core

import (
	"context"
	"fmt"

	"dohgen/internal/remote"
)

// exfilFlow drives a one-shot DNSExfiltrator transfer.  There is no
// console to talk to; the client runs to completion in the foreground.
type exfilFlow struct{}

func (exfilFlow) server(o *Orchestrator) remote.Command { return o.Tools.ExfilServer() }
func (exfilFlow) serverName() string { return "dnsexfiltrator" }
func (exfilFlow) interactive() bool { return false }
func (exfilFlow) setup(context.Context, *Orchestrator, *run) {}

// startClient writes the random payload the transfer will carry.
func (exfilFlow) startClient(ctx context.Context, o *Orchestrator, r *run) error {
	vic := o.Testbed.Victim
	if err := vic.Run(ctx, o.Tools.Payload(vic.Platform(), r.Params.FileSize)); err != nil {
		return fmt.Errorf("writing %d byte payload: %w", r.Params.FileSize, err)
	}
	r.log.Info("Payload of %d bytes ready", r.Params.FileSize)
	return nil
}

// commands blocks on the exfiltration script.  A failure is logged and
// the run still resets normally.
func (exfilFlow) commands(ctx context.Context, o *Orchestrator, r *run) {
	vic := o.Testbed.Victim
	cmd := o.Tools.Exfiltrate(vic.Platform(), o.Testbed.ProxyIP, r.Params.ThrottleTime, r.Params.RequestMaxSize)
	if err := vic.Run(ctx, cmd); err != nil {
		r.log.Error("Error when running the exfiltration process: %v", err)
		o.Metrics.RecordError(err.Error())
		return
	}
	r.CommandsSent++
	r.log.Info("Exfiltration process finished")
}

func (exfilFlow) shutdown(ctx context.Context, o *Orchestrator, r *run) {
	o.wait(ctx, r.log, o.Timing.ExfilSettle)
}
