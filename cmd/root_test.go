package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ncerr "dohgen/internal/errors"
)

const scenariosYAML = `
- label: baseline
  doh_resolver: 1.1.1.1
  delay: [500, 1000]
  number_commands_limit: [1, 3]
  commands: [whoami]
  random_seconds_interval: [5, 10]
- label: shell
  doh_resolver: 8.8.8.8
  delay: [100]
  number_commands_limit: [2, 4]
  commands: [id, ls]
  random_seconds_interval: [1, 2]
  shell_commands: true
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

// TestExecute_Version verifies --version prints a version string.
func TestExecute_Version(t *testing.T) {
	if err := Execute(context.Background(), []string{"--version"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestExecute_Help verifies --help (and no args) returns without error.
func TestExecute_Help(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {"-h"}, {}} {
		name := "no-args"
		if len(args) > 0 {
			name = args[0]
		}
		t.Run(name, func(t *testing.T) {
			if err := Execute(context.Background(), args); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// TestExecute_DryRun verifies --dry-run validates and exits cleanly.
func TestExecute_DryRun(t *testing.T) {
	path := writeFile(t, "scenarios.yaml", scenariosYAML)
	err := Execute(context.Background(), []string{"-s", path, "--dry-run"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestExecute_DryRunInvalid verifies --dry-run still catches bad input.
func TestExecute_DryRunInvalid(t *testing.T) {
	good := writeFile(t, "scenarios.yaml", scenariosYAML)
	empty := writeFile(t, "empty.json", "[]")
	broken := writeFile(t, "broken.json", `[{"label": "x"}]`)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no scenarios flag", []string{"--dry-run"}, "scenarios"},
		{"bad variant", []string{"-s", good, "--variant", "iodine", "--dry-run"}, "variant"},
		{"local attacker", []string{"-s", good, "--attacker", "local", "--dry-run"}, "attacker"},
		{"missing file", []string{"-s", filepath.Join(t.TempDir(), "nope.json"), "--dry-run"}, "scenario file"},
		{"invalid scenario", []string{"-s", broken, "--dry-run"}, "doh_resolver"},
		{"wrong variant fields", []string{"-s", good, "--variant", "dnsexfiltrator", "--dry-run"}, "throttleTime"},
		{"negative runs", []string{"-s", good, "--runs", "-1", "--dry-run"}, "runs"},
		{"windows dnscat2 victim", []string{"-s", good, "--victim-platform", "windows", "--dry-run"}, "linux victim"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Execute(context.Background(), tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("empty", func(t *testing.T) {
		err := Execute(context.Background(), []string{"-s", empty, "--dry-run"})
		if !ncerr.Is(err, ncerr.ErrNoScenarios) {
			t.Fatalf("expected ErrNoScenarios, got %v", err)
		}
	})
}

// TestExecute_InvalidFlags verifies unknown flags and stray arguments
// produce an error.
func TestExecute_InvalidFlags(t *testing.T) {
	for _, args := range [][]string{{"--nonexistent-flag"}, {"-s", "x.json", "extra"}} {
		if err := Execute(context.Background(), args); err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}
}

// TestLoadConfig_Precedence verifies defaults < file < environment <
// flags.
func TestLoadConfig_Precedence(t *testing.T) {
	file := writeFile(t, "dohgen.yaml", `
variant: dnsexfiltrator
scenarios: from-file.json
seed: 11
runs: 4
victim: file@victim
timing:
  server_settle: 7s
`)
	t.Setenv("DOHGEN_SEED", "22")
	t.Setenv("DOHGEN_VICTIM", "env@victim")

	cfg, _, _, err := loadConfig([]string{"-f", file, "--victim", "flag@victim", "-vv"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Variant != "dnsexfiltrator" || cfg.ScenarioPath != "from-file.json" || cfg.MaxRuns != 4 {
		t.Errorf("file values lost: %+v", cfg)
	}
	if cfg.Timing.ServerSettle != 7*time.Second {
		t.Errorf("ServerSettle = %v, want 7s", cfg.Timing.ServerSettle)
	}
	if cfg.Timing.ProxySettle != 2*time.Second {
		t.Errorf("ProxySettle = %v, want the default", cfg.Timing.ProxySettle)
	}
	if cfg.Seed != 22 {
		t.Errorf("Seed = %d, env should override the file", cfg.Seed)
	}
	if cfg.VictimSpec != "flag@victim" {
		t.Errorf("VictimSpec = %q, the flag should win", cfg.VictimSpec)
	}
	if cfg.Verbose != 3 {
		t.Errorf("Verbose = %d, want 3", cfg.Verbose)
	}
}

// TestLoadConfig_Quiet verifies -q drops to errors only.
func TestLoadConfig_Quiet(t *testing.T) {
	cfg, _, _, err := loadConfig([]string{"-s", "x.json", "-q"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Verbose != 0 {
		t.Errorf("Verbose = %d, want 0", cfg.Verbose)
	}
}

// TestLoadConfig_BadFile verifies that an unreadable config file fails.
func TestLoadConfig_BadFile(t *testing.T) {
	bad := writeFile(t, "bad.yaml", "variant: [unterminated")
	if _, _, _, err := loadConfig([]string{"--config", bad}); err == nil {
		t.Error("expected a parse error")
	}
	if _, _, _, err := loadConfig([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}); err == nil {
		t.Error("expected a read error")
	}
}
