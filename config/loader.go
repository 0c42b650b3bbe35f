package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings are layered defaults < file < environment < flags; the flag
// layer lives in cmd.

// LoadFile overlays the YAML document at path onto cfg.  Keys absent
// from the file keep their current value.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// envStrings maps DOHGEN_* variables onto string settings.
var envStrings = map[string]func(*Config) *string{
	"DOHGEN_VARIANT":         func(c *Config) *string { return &c.Variant },
	"DOHGEN_SCENARIOS":       func(c *Config) *string { return &c.ScenarioPath },
	"DOHGEN_ATTACKER":        func(c *Config) *string { return &c.AttackerSpec },
	"DOHGEN_VICTIM":          func(c *Config) *string { return &c.VictimSpec },
	"DOHGEN_VICTIM_PLATFORM": func(c *Config) *string { return &c.VictimPlatform },
	"DOHGEN_PROXY_HOST":      func(c *Config) *string { return &c.ProxyHost },
	"DOHGEN_SSH_KEY":         func(c *Config) *string { return &c.SSHKeyPath },
	"DOHGEN_KNOWN_HOSTS":     func(c *Config) *string { return &c.KnownHostsPath },
	"DOHGEN_SUDO_PASSWORD":   func(c *Config) *string { return &c.SudoPassword },
	"DOHGEN_DOMAIN":          func(c *Config) *string { return &c.Domain },
	"DOHGEN_PCAP_DIR":        func(c *Config) *string { return &c.PcapDir },
	"DOHGEN_EXFIL_PASSWORD":  func(c *Config) *string { return &c.ExfilPassword },
	"DOHGEN_LOG_FILE":        func(c *Config) *string { return &c.LogFile },
	"DOHGEN_MANIFEST":        func(c *Config) *string { return &c.ManifestPath },
	"DOHGEN_METRICS_ADDR":    func(c *Config) *string { return &c.MetricsAddr },
}

// envSwitches can only turn a setting on.
var envSwitches = map[string]func(*Config) *bool{
	"DOHGEN_SSH_PASSWORD":   func(c *Config) *bool { return &c.SSHPassword },
	"DOHGEN_SSH_AGENT":      func(c *Config) *bool { return &c.UseSSHAgent },
	"DOHGEN_STRICT_HOSTKEY": func(c *Config) *bool { return &c.StrictHostKey },
}

// LoadFromEnv overlays the DOHGEN_* environment onto cfg.  Unset or
// empty variables, and numbers that do not parse, leave cfg alone.
func LoadFromEnv(cfg *Config) {
	for key, field := range envStrings {
		if v := os.Getenv(key); v != "" {
			*field(cfg) = v
		}
	}
	for key, field := range envSwitches {
		switch strings.ToLower(os.Getenv(key)) {
		case "1", "true", "yes":
			*field(cfg) = true
		}
	}

	if n, err := strconv.ParseInt(os.Getenv("DOHGEN_SEED"), 10, 64); err == nil {
		cfg.Seed = n
	}
	if n := positiveEnv("DOHGEN_RUNS"); n > 0 {
		cfg.MaxRuns = n
	}
	if n := positiveEnv("DOHGEN_PROXY_PORT"); n > 0 {
		cfg.ProxyPort = n
	}
	if n := positiveEnv("DOHGEN_CONN_TIMEOUT"); n > 0 {
		cfg.ConnTimeout = time.Duration(n) * time.Second
	}
	if n := positiveEnv("DOHGEN_VERBOSE"); n > 0 {
		cfg.Verbose = n
	}
}

// positiveEnv returns the integer in key, or 0 when it is unset, not a
// number or not positive.
func positiveEnv(key string) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
