package core

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"dohgen/config"
	ncerr "dohgen/internal/errors"
	"dohgen/internal/manifest"
	"dohgen/internal/metrics"
	"dohgen/internal/mux"
	"dohgen/internal/remote"
	"dohgen/internal/session"
	"dohgen/internal/tools"
	"dohgen/scenario"
	"dohgen/util"
)

// Journal stores finished runs.  *manifest.Store satisfies it.
type Journal interface {
	Save(r *manifest.RunRecord) error
}

// Testbed is the set of machines a run touches.
type Testbed struct {
	Attacker remote.Executor // C&C or exfiltration server
	Victim   remote.Executor // proxy, client and capture
	ProxyIP  string          // address doh-stub listens on
}

// executors returns the distinct hosts of the testbed.
func (t Testbed) executors() []remote.Executor {
	if t.Victim.Host() == t.Attacker.Host() {
		return []remote.Executor{t.Attacker}
	}
	return []remote.Executor{t.Attacker, t.Victim}
}

// Orchestrator runs one scenario at a time through the phase machine.
// It is not safe for concurrent use; runs are strictly sequential.
type Orchestrator struct {
	Variant scenario.Variant
	Testbed Testbed
	Mux     *mux.Mux
	Tools   *tools.Toolbox
	Timing  config.Timing
	Rand    *rand.Rand
	Logger  *util.Logger
	Metrics *metrics.Collector
	Journal Journal // optional

	// Sleep performs the fixed and random waits.  It should return early
	// when ctx is done.
	Sleep func(ctx context.Context, d time.Duration)
	// Resolve maps the scenario's resolver name to an IPv4 address.
	Resolve func(host string) (string, error)
	// Now stamps capture names and run records.
	Now func() time.Time
	// OnPhase, when set, observes every phase transition.
	OnPhase func(Phase)
}

// Result summarises one run.
type Result struct {
	RunID        string
	Label        string
	Variant      scenario.Variant
	Params       scenario.Params
	ResolverIP   string
	CaptureFile  string // full path on the victim
	Reached      Phase  // last phase before reset
	Err          error  // the abort cause, nil when the run completed
	CommandsSent int
	History      []Phase
	Started      time.Time
	Ended        time.Time
}

// Aborted reports whether a start phase failed.
func (r *Result) Aborted() bool { return r.Err != nil }

// run is the transient state of one scenario execution.
type run struct {
	Result
	sc     scenario.Scenario
	server *session.Handle
	log    *util.Logger
}

// flow holds the steps that differ between traffic variants.
type flow interface {
	server(o *Orchestrator) remote.Command
	serverName() string
	startClient(ctx context.Context, o *Orchestrator, r *run) error
	interactive() bool
	setup(ctx context.Context, o *Orchestrator, r *run)
	commands(ctx context.Context, o *Orchestrator, r *run)
	shutdown(ctx context.Context, o *Orchestrator, r *run)
}

func (o *Orchestrator) flow() flow {
	if o.Variant == scenario.VariantDNSExfiltrator {
		return exfilFlow{}
	}
	return dnscat2Flow{}
}

// Run executes sc from ServerStarting through Reset and always returns
// with every session of the run killed.
func (o *Orchestrator) Run(ctx context.Context, sc scenario.Scenario) *Result {
	o.defaults()
	f := o.flow()

	r := &run{
		Result: Result{
			RunID:   uuid.NewString(),
			Label:   sc.Label,
			Variant: o.Variant,
			Started: o.Now(),
		},
		sc:  sc,
		log: o.Logger.WithField("scenario", sc.Label),
	}
	r.log.Info("Starting scenario [%s]", sc.Label)

	if err := o.start(ctx, f, r); err != nil {
		r.Err = err
		r.log.Error("Machines initialisation failed: %v", err)
		o.Metrics.PhaseAborted(r.Reached.String())
	} else {
		if f.interactive() {
			o.enter(r, InteractiveSetup)
			f.setup(ctx, o, r)
		}
		o.enter(r, CommandLoop)
		f.commands(ctx, o, r)
		o.enter(r, Shutdown)
		f.shutdown(ctx, o, r)
	}

	reached := r.Reached
	o.reset(ctx, r)
	o.enter(r, Idle)
	r.Reached = reached
	r.Ended = o.Now()

	outcome := metrics.OutcomeCompleted
	if r.Aborted() {
		outcome = metrics.OutcomeAborted
	}
	o.Metrics.RunFinished(string(o.Variant), outcome, r.Ended.Sub(r.Started))
	o.record(r)
	r.log.Info("End of the scenario (%s)", outcome)
	return &r.Result
}

// start runs the four start phases.  The first failure is returned as
// a *PhaseError and the remaining start phases are skipped.
func (o *Orchestrator) start(ctx context.Context, f flow, r *run) error {
	fail := func(err error) error {
		return &ncerr.PhaseError{Phase: r.Reached.String(), Err: err}
	}
	atk, vic := o.Testbed.Attacker, o.Testbed.Victim

	// Server
	o.enter(r, ServerStarting)
	ip, err := o.Resolve(r.sc.DoHResolver)
	if err != nil {
		return fail(fmt.Errorf("resolving %s: %w", r.sc.DoHResolver, err))
	}
	r.ResolverIP = ip
	h, err := o.Mux.Spawn(ctx, atk, session.RoleServer, f.server(o), f.serverName())
	if err != nil {
		return fail(err)
	}
	r.server = h
	r.log.Info("Server started on %s", atk.Host())
	o.wait(ctx, r.log, o.Timing.ServerSettle)

	// Capture
	o.enter(r, CaptureStarting)
	r.Params = r.sc.Sample(o.Rand, o.Variant)
	name := scenario.NewCaptureName(r.sc.Label, r.sc.Effective(r.Params), o.Now())
	r.CaptureFile = o.Tools.CapturePath(vic.Platform(), name.String())
	capture := o.Tools.Capture(vic.Platform(), o.Testbed.ProxyIP, r.ResolverIP, r.CaptureFile)
	if _, err := o.Mux.Spawn(ctx, vic, session.RoleCapture, capture, ""); err != nil {
		return fail(err)
	}
	r.log.Info("Capture output is %s", name)

	// Proxy
	o.enter(r, ProxyStarting)
	proxy, err := o.Tools.Proxy(o.Testbed.ProxyIP, r.sc.DoHResolver, r.sc.ProxyArgs)
	if err != nil {
		return fail(err)
	}
	if _, err := o.Mux.Spawn(ctx, vic, session.RoleProxy, proxy, ""); err != nil {
		return fail(err)
	}
	r.log.Info("DoH proxy started on %s", vic.Host())
	o.wait(ctx, r.log, o.Timing.ProxySettle)

	// Client
	o.enter(r, ClientStarting)
	if err := f.startClient(ctx, o, r); err != nil {
		return fail(err)
	}
	return nil
}

// resetTimeout bounds the teardown commands of one reset.
const resetTimeout = time.Minute

// reset tears down every tool on every host, waits for trailing
// packets and then stops the capture.  It never fails.  The kills run
// even when ctx is already done; only the trailing wait is skipped.
func (o *Orchestrator) reset(ctx context.Context, r *run) {
	log := o.Logger
	if r != nil {
		o.enter(r, Reset)
		log = r.log
	}
	kctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resetTimeout)
	defer cancel()

	for _, ex := range o.Testbed.executors() {
		o.Mux.KillAll(kctx, ex, tools.ToolNames(ex.Platform()), o.Timing.KillGrace)
		o.Mux.Release(ex.Host(), session.RoleServer, session.RoleProxy, session.RoleClient)
	}

	o.wait(ctx, log, o.Timing.TrailingCapture)

	vic := o.Testbed.Victim
	o.Mux.KillAll(kctx, vic, []string{tools.CaptureName(vic.Platform())}, o.Timing.KillGrace)
	o.Mux.Release(vic.Host(), session.RoleCapture)
	o.Logger.Info("All processes have been stopped")
}

// Reset performs a teardown outside of any run, e.g. to clear what a
// crashed session left behind.
func (o *Orchestrator) Reset(ctx context.Context) {
	o.defaults()
	o.reset(ctx, nil)
}

func (o *Orchestrator) enter(r *run, p Phase) {
	r.Reached = p
	r.History = append(r.History, p)
	r.log.Debug("phase %s", p)
	if o.OnPhase != nil {
		o.OnPhase(p)
	}
}

// wait pauses for d unless ctx is already done.
func (o *Orchestrator) wait(ctx context.Context, log *util.Logger, d time.Duration) {
	if d <= 0 || ctx.Err() != nil {
		return
	}
	log.Debug("waiting %s", d)
	o.Sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) record(r *run) {
	if o.Journal == nil {
		return
	}
	rec := &manifest.RunRecord{
		RunID:          r.RunID,
		Label:          r.Label,
		Variant:        string(r.Variant),
		Resolver:       r.sc.DoHResolver,
		Delay:          r.Params.Delay,
		CommandCount:   r.Params.CommandCount,
		ThrottleTime:   r.Params.ThrottleTime,
		RequestMaxSize: r.Params.RequestMaxSize,
		FileSize:       r.Params.FileSize,
		CaptureFile:    r.CaptureFile,
		Outcome:        metrics.OutcomeCompleted,
		Phase:          r.Reached.String(),
		CommandsSent:   r.CommandsSent,
		StartedAt:      r.Started,
		EndedAt:        r.Ended,
	}
	if r.Err != nil {
		rec.Outcome = metrics.OutcomeAborted
		rec.Error = r.Err.Error()
	}
	if err := o.Journal.Save(rec); err != nil {
		o.Logger.Warn("manifest: %v", err)
	}
}

func (o *Orchestrator) defaults() {
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	if o.Resolve == nil {
		o.Resolve = util.ResolveIPv4
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.Variant == "" {
		o.Variant = scenario.VariantDnscat2
	}
}
