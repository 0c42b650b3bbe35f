// Package cmd wires up the CLI flags and runs the dataset generator.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"dohgen/config"
	"dohgen/internal/cancel"
	"dohgen/internal/core"
	ncerr "dohgen/internal/errors"
	"dohgen/internal/manifest"
	"dohgen/internal/metrics"
	"dohgen/internal/remote"
	"dohgen/internal/retry"
	"dohgen/scenario"
	"dohgen/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X dohgen/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// options are the flags that do not map onto a Config field.
type options struct {
	configPath  string
	verbose     int
	quiet       bool
	showVersion bool
	showHelp    bool
}

// Execute parses args and runs scenarios until interrupted.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage(newFlagSet(config.Default(), &options{}))
		return nil
	}

	cfg, o, fs, err := loadConfig(args)
	if err != nil {
		return err
	}
	if o.showHelp {
		printUsage(fs)
		return nil
	}
	if o.showVersion {
		fmt.Printf("dohgen %s\n", version)
		return nil
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := util.NewLogger(cfg.Verbose)
	if cfg.LogFile != "" {
		if err := logger.AddFile(cfg.LogFile); err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		defer logger.Close()
	}

	repo, err := loadScenarios(cfg)
	if err != nil {
		return err
	}
	if cfg.DryRun {
		fmt.Printf("%d %s scenario(s) in %s: %s\n",
			repo.Len(), repo.Variant(), cfg.ScenarioPath, strings.Join(repo.Labels(), ", "))
		return nil
	}

	return run(ctx, cfg, repo, logger)
}

// loadConfig layers defaults, the --config file, the environment and
// the command line, in increasing precedence.
func loadConfig(args []string) (*config.Config, *options, *flag.FlagSet, error) {
	o := &options{}

	// First pass: only --config matters, everything else is skipped.
	pre := flag.NewFlagSet("dohgen", flag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.Usage = func() {}
	pre.StringVarP(&o.configPath, "config", "f", "", "")
	pre.BoolVarP(&o.showHelp, "help", "h", false, "")
	if err := pre.Parse(args); err != nil {
		return nil, nil, nil, err
	}

	cfg := config.Default()
	if o.configPath != "" {
		if err := config.LoadFile(o.configPath, cfg); err != nil {
			return nil, nil, nil, err
		}
	}
	config.LoadFromEnv(cfg)

	// Second pass: flag defaults are the values loaded so far, so only
	// flags given on the command line override them.
	fs := newFlagSet(cfg, o)
	fs.Usage = func() { printUsage(fs) }
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}
	if fs.NArg() > 0 {
		return nil, nil, nil, fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	cfg.Verbose += o.verbose
	if o.quiet {
		cfg.Verbose = 0
	}
	return cfg, o, fs, nil
}

func newFlagSet(cfg *config.Config, o *options) *flag.FlagSet {
	fs := flag.NewFlagSet("dohgen", flag.ContinueOnError)

	// ── run ──────────────────────────────────────────────────────
	fs.StringVarP(&cfg.ScenarioPath, "scenarios", "s", cfg.ScenarioPath, "Scenario file (.json, .yaml)")
	fs.StringVar(&cfg.Variant, "variant", cfg.Variant, "Traffic variant: dnscat2 or dnsexfiltrator")
	fs.StringVarP(&o.configPath, "config", "f", "", "YAML configuration file")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed (0 = from the clock)")
	fs.IntVar(&cfg.MaxRuns, "runs", cfg.MaxRuns, "Stop after this many runs (0 = until interrupted)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate configuration and scenarios, then exit")

	// ── hosts ────────────────────────────────────────────────────
	fs.StringVar(&cfg.AttackerSpec, "attacker", cfg.AttackerSpec, "C&C / exfiltration server [user@]host[:port]")
	fs.StringVar(&cfg.VictimSpec, "victim", cfg.VictimSpec, "Client machine [user@]host[:port] or \"local\"")
	fs.StringVar(&cfg.VictimPlatform, "victim-platform", cfg.VictimPlatform, "Victim platform: linux or windows")
	fs.StringVar(&cfg.ProxyHost, "proxy-host", cfg.ProxyHost, "Name resolved to the DoH proxy address (default: victim host)")

	// ── SSH ──────────────────────────────────────────────────────
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also write the log to this file")
	fs.StringVar(&cfg.ManifestPath, "manifest", cfg.ManifestPath, "SQLite file recording every run")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address")
	fs.CountVarP(&o.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&o.quiet, "quiet", "q", false, "Only print errors")

	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&o.showHelp, "help", "h", false, "Show this help")
	return fs
}

func loadScenarios(cfg *config.Config) (*scenario.Repository, error) {
	v, err := scenario.ParseVariant(cfg.Variant)
	if err != nil {
		return nil, err
	}
	repo, err := scenario.Load(cfg.ScenarioPath, v)
	if err != nil {
		return nil, fmt.Errorf("scenarios: %w", err)
	}
	if repo.Len() == 0 {
		return nil, fmt.Errorf("%w: %w",
			&ncerr.ConfigError{Field: "scenarios", Value: cfg.ScenarioPath, Message: "the scenario file is empty"},
			ncerr.ErrNoScenarios)
	}
	return repo, nil
}

// ── session ──────────────────────────────────────────────────────────

func run(ctx context.Context, cfg *config.Config, repo *scenario.Repository, logger *util.Logger) error {
	token := cancel.New()
	stop := cancel.OnInterrupt(token, logger)
	defer stop()

	atkSpec, _ := cfg.Attacker()
	vicSpec, _ := cfg.Victim()

	atk, err := connect(ctx, cfg, "attacker", atkSpec, cfg.AttackerPlatform, logger)
	if err != nil {
		return err
	}
	defer atk.Close()

	vic, err := connect(ctx, cfg, "victim", vicSpec, cfg.VictimPlatform, logger)
	if err != nil {
		return err
	}
	defer vic.Close()

	proxyIP, err := util.ResolveIPv4(cfg.ProxyLookupHost())
	if err != nil {
		return fmt.Errorf("resolving the proxy address %s: %w", cfg.ProxyLookupHost(), err)
	}
	logger.Verbose("DoH proxy listens on %s", proxyIP)

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, m, logger)
		defer srv.Close()
	}

	deps := core.Deps{
		Testbed:   core.Testbed{Attacker: atk, Victim: vic, ProxyIP: proxyIP},
		Scenarios: repo,
		Token:     token,
		Logger:    logger,
		Metrics:   m,
	}
	var store *manifest.Store
	if cfg.ManifestPath != "" {
		if store, err = manifest.Open(cfg.ManifestPath); err != nil {
			return err
		}
		defer store.Close()
		deps.Journal = store
	}

	sched, err := core.Build(cfg, deps)
	if err != nil {
		return err
	}
	err = sched.Run(ctx)
	logger.Verbose("session summary:\n%s", m.JSON())
	if store != nil {
		if counts, cerr := store.CountByOutcome(""); cerr == nil {
			logger.Info("%s holds %d completed and %d aborted run(s)",
				cfg.ManifestPath, counts[metrics.OutcomeCompleted], counts[metrics.OutcomeAborted])
		}
	}
	return err
}

// connect opens the executor for one host.  SSH connections are retried
// with backoff; credential and host key failures are not.
func connect(ctx context.Context, cfg *config.Config, role string, spec config.HostSpec, platform string, logger *util.Logger) (remote.Executor, error) {
	if spec.IsLocal() {
		logger.Verbose("%s runs locally", role)
		return remote.NewLocalExecutor(cfg.SudoPassword, logger), nil
	}
	p, err := remote.ParsePlatform(platform)
	if err != nil {
		return nil, err
	}

	ex := remote.NewSSHExecutor(&remote.SSHConfig{
		User:          spec.User,
		Host:          spec.Host,
		Port:          spec.Port,
		KeyPath:       cfg.SSHKeyPath,
		PromptPass:    cfg.SSHPassword,
		UseAgent:      cfg.UseSSHAgent,
		StrictHostKey: cfg.StrictHostKey,
		KnownHosts:    cfg.KnownHostsPath,
		ConnTimeout:   cfg.ConnTimeout,
		SudoPassword:  cfg.SudoPassword,
		Platform:      p,
	}, logger.WithField("host", role))

	b := retry.ForConnect(cfg.ConnectAttempts)
	b.Fatal = func(err error) bool {
		return ncerr.Is(err, ncerr.ErrAuthFailed) || ncerr.Is(err, ncerr.ErrHostKeyMismatch)
	}
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("%s: attempt %d failed: %v (retrying in %s)", role, attempt, err, wait.Round(time.Millisecond))
	}
	if err := b.Do(ctx, func(ctx context.Context, _ int) error { return ex.Connect(ctx) }); err != nil {
		return nil, fmt.Errorf("connecting to the %s %s: %w", role, spec, err)
	}
	logger.Info("Connected to the %s %s", role, spec)
	return ex, nil
}

func serveMetrics(addr string, m *metrics.Collector, logger *util.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server: %v", err)
		}
	}()
	logger.Verbose("metrics on http://%s/metrics", addr)
	return srv
}

// ── helpers ──────────────────────────────────────────────────────────

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `dohgen – DoH tunnelling dataset generator v%s

Drives a DNS tunnelling tool through a DNS-over-HTTPS proxy on a
testbed and records one packet capture per randomized scenario run.

Usage:
  dohgen -s <scenarios> [options]

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  dohgen -s dnscat2.json --attacker root@c2 --victim client@pc      C&C traffic
  dohgen -s exfil.yaml --variant dnsexfiltrator --victim local      Exfiltration
  dohgen -s dnscat2.json --dry-run                                  Check scenarios
  dohgen -f testbed.yaml --runs 50 --manifest runs.db               Bounded session
`)
}
