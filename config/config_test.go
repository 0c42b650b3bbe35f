package config

import (
	"strings"
	"testing"

	ncerr "dohgen/internal/errors"
)

// ── ParseHostSpec ────────────────────────────────────────────────────

func TestParseHostSpec(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"full", "attacker@dohserver.local:2222", "attacker", "dohserver.local", 2222, false},
		{"no port", "client@dohclient.local", "client", "dohclient.local", 22, false},
		{"no user", "dohserver.local:2200", "", "dohserver.local", 2200, false},
		{"host only", "dohserver.local", "", "dohserver.local", 22, false},
		{"local", "local", "", "local", 22, false},
		{"bad port", "user@host:999999", "", "", 0, true},
		{"empty", "", "", "", 0, true},
		{"colon only", ":", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs, err := ParseHostSpec(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if hs.User != tt.wantUser || hs.Host != tt.wantHost || hs.Port != tt.wantPort {
				t.Errorf("got (%q, %q, %d), want (%q, %q, %d)",
					hs.User, hs.Host, hs.Port, tt.wantUser, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestHostSpec_String(t *testing.T) {
	tests := []struct {
		in   HostSpec
		want string
	}{
		{HostSpec{User: "a", Host: "h", Port: 22}, "a@h"},
		{HostSpec{Host: "h", Port: 2222}, "h:2222"},
		{HostSpec{Host: LocalHost, Port: 22}, "local"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestProxyLookupHost(t *testing.T) {
	cfg := Default()
	if got := cfg.ProxyLookupHost(); got != "dohclient.local" {
		t.Errorf("default = %q, want dohclient.local", got)
	}
	cfg.VictimSpec = LocalHost
	if got := cfg.ProxyLookupHost(); got != "localhost" {
		t.Errorf("local victim = %q, want localhost", got)
	}
	cfg.ProxyHost = "10.0.0.5"
	if got := cfg.ProxyLookupHost(); got != "10.0.0.5" {
		t.Errorf("explicit = %q, want 10.0.0.5", got)
	}
}

// ── Validate ─────────────────────────────────────────────────────────

func validConfig() *Config {
	cfg := Default()
	cfg.ScenarioPath = "scenarios.json"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("defaults with a scenario file should validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{"no scenarios", func(c *Config) { c.ScenarioPath = "" }, "scenarios"},
		{"bad variant", func(c *Config) { c.Variant = "iodine" }, "variant"},
		{"local attacker", func(c *Config) { c.AttackerSpec = "local" }, "attacker"},
		{"bad victim", func(c *Config) { c.VictimSpec = "a@b:0x" }, "victim"},
		{"windows attacker", func(c *Config) { c.AttackerPlatform = "windows" }, "attacker-platform"},
		{"unknown platform", func(c *Config) { c.VictimPlatform = "plan9" }, "victim-platform"},
		{"windows dnscat2", func(c *Config) { c.VictimPlatform = "windows" }, "victim-platform"},
		{"proxy port", func(c *Config) { c.ProxyPort = 0 }, "proxy-port"},
		{"pcap dir", func(c *Config) { c.PcapDir = "" }, "pcap-dir"},
		{"attempts", func(c *Config) { c.ConnectAttempts = 0 }, "connect-attempts"},
		{"negative timing", func(c *Config) { c.Timing.KillGrace = -1 }, "timing.kill_grace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var ce *ncerr.ConfigError
			if !ncerr.As(err, &ce) {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}
			if ce.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ce.Field, tt.wantField)
			}
		})
	}
}

// TestValidate_WindowsExfil verifies a Windows victim is accepted for
// the exfiltration variant.
func TestValidate_WindowsExfil(t *testing.T) {
	cfg := validConfig()
	cfg.Variant = "dnsexfiltrator"
	cfg.VictimSpec = "local"
	cfg.VictimPlatform = "windows"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDefault_Timing(t *testing.T) {
	tm := Default().Timing
	if tm.ServerSettle.Seconds() != 3 || tm.ProxySettle.Seconds() != 2 || tm.ShutdownGrace.Seconds() != 10 {
		t.Errorf("unexpected default timing: %+v", tm)
	}
	if !strings.HasPrefix(Default().AttackerSpec, "attacker@") {
		t.Errorf("unexpected default attacker %q", Default().AttackerSpec)
	}
}
