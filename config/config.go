// Package config defines the runtime configuration for dohgen and
// parses the [user@]host[:port] strings that name testbed hosts.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	ncerr "dohgen/internal/errors"
	"dohgen/scenario"
)

// Config holds every tuneable for a dataset generation session.
type Config struct {
	// ── Run ──────────────────────────────────────────────────────────
	Variant      string `yaml:"variant"`
	ScenarioPath string `yaml:"scenarios"`
	Seed         int64  `yaml:"seed"` // 0 → seeded from the clock
	MaxRuns      int    `yaml:"runs"` // 0 → until interrupted
	DryRun       bool   `yaml:"-"`

	// ── Hosts ────────────────────────────────────────────────────────
	AttackerSpec     string `yaml:"attacker"` // [user@]host[:port]
	VictimSpec       string `yaml:"victim"`   // [user@]host[:port] or "local"
	AttackerPlatform string `yaml:"attacker_platform"`
	VictimPlatform   string `yaml:"victim_platform"`
	ProxyHost        string `yaml:"proxy_host"` // defaults to the victim host

	// ── SSH ──────────────────────────────────────────────────────────
	SSHKeyPath      string        `yaml:"ssh_key"`
	SSHPassword     bool          `yaml:"ssh_password"` // true → prompt interactively
	UseSSHAgent     bool          `yaml:"ssh_agent"`
	StrictHostKey   bool          `yaml:"strict_hostkey"`
	KnownHostsPath  string        `yaml:"known_hosts"`
	SudoPassword    string        `yaml:"sudo_password"`
	ConnTimeout     time.Duration `yaml:"conn_timeout"`
	ConnectAttempts int           `yaml:"connect_attempts"`

	// ── DoH testbed ──────────────────────────────────────────────────
	Domain           string `yaml:"domain"`
	ProxyPort        int    `yaml:"proxy_port"`
	CaptureInterface string `yaml:"capture_interface"`
	SocketDir        string `yaml:"socket_dir"`
	PcapDir          string `yaml:"pcap_dir"`

	// ── Tool paths ───────────────────────────────────────────────────
	Dnscat2ServerDir  string `yaml:"dnscat2_server_dir"`
	Dnscat2ClientDir  string `yaml:"dnscat2_client_dir"`
	CondaPath         string `yaml:"conda_path"`
	ProxyEnv          string `yaml:"proxy_env"`
	ExfilServerDir    string `yaml:"exfil_server_dir"`
	ExfilServerPython string `yaml:"exfil_server_python"`
	ExfilPassword     string `yaml:"exfil_password"`
	ExfilClientDir    string `yaml:"exfil_client_dir"`
	ExfilPayloadPath  string `yaml:"exfil_payload_path"`
	WinDumpPath       string `yaml:"windump_path"`

	Timing Timing `yaml:"timing"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose      int    `yaml:"verbose"`
	LogFile      string `yaml:"log_file"`
	ManifestPath string `yaml:"manifest"`
	MetricsAddr  string `yaml:"metrics_addr"`
}

// Timing holds the fixed waits of the run state machine.
type Timing struct {
	ServerSettle    time.Duration `yaml:"server_settle"`
	ProxySettle     time.Duration `yaml:"proxy_settle"`
	ShellSettle     time.Duration `yaml:"shell_settle"`
	PostCommands    time.Duration `yaml:"post_commands"`
	PreShutdown     time.Duration `yaml:"pre_shutdown"`
	ShutdownGrace   time.Duration `yaml:"shutdown_grace"`
	ExfilSettle     time.Duration `yaml:"exfil_settle"`
	TrailingCapture time.Duration `yaml:"trailing_capture"`
	KillGrace       time.Duration `yaml:"kill_grace"`
}

// ── Host-spec parser ─────────────────────────────────────────────────

// HostSpec is a parsed [user@]host[:port].
type HostSpec struct {
	User string
	Host string
	Port int
}

// IsLocal reports whether h names the controller itself.
func (h HostSpec) IsLocal() bool { return h.Host == LocalHost && h.User == "" }

func (h HostSpec) String() string {
	if h.IsLocal() {
		return LocalHost
	}
	s := h.Host
	if h.User != "" {
		s = h.User + "@" + s
	}
	if h.Port != 0 && h.Port != DefaultSSHPort {
		s += ":" + strconv.Itoa(h.Port)
	}
	return s
}

// hostRe matches [user@]host[:port].
var hostRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseHostSpec extracts user, host, and port from a string such as
// "attacker@dohserver.local:2222".  Port defaults to 22.
func ParseHostSpec(spec string) (HostSpec, error) {
	m := hostRe.FindStringSubmatch(spec)
	if m == nil {
		return HostSpec{}, fmt.Errorf("invalid host spec %q – expected [user@]host[:port]", spec)
	}
	hs := HostSpec{User: m[1], Host: m[2], Port: DefaultSSHPort}
	if m[3] != "" {
		port, err := strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return HostSpec{}, fmt.Errorf("invalid SSH port %q", m[3])
		}
		hs.Port = port
	}
	return hs, nil
}

// Attacker returns the parsed attacker host.
func (c *Config) Attacker() (HostSpec, error) { return ParseHostSpec(c.AttackerSpec) }

// Victim returns the parsed victim host.
func (c *Config) Victim() (HostSpec, error) { return ParseHostSpec(c.VictimSpec) }

// ProxyLookupHost is the name resolved to the DoH proxy listen address.
func (c *Config) ProxyLookupHost() string {
	if c.ProxyHost != "" {
		return c.ProxyHost
	}
	v, err := c.Victim()
	if err != nil || v.IsLocal() {
		return "localhost"
	}
	return v.Host
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if _, err := scenario.ParseVariant(c.Variant); err != nil {
		return &ncerr.ConfigError{
			Field: "variant", Value: c.Variant, Message: "unknown traffic variant",
			Hint: "use dnscat2 or dnsexfiltrator",
		}
	}
	if c.ScenarioPath == "" {
		return &ncerr.ConfigError{Field: "scenarios", Message: "a scenario file is required"}
	}

	atk, err := c.Attacker()
	if err != nil {
		return &ncerr.ConfigError{Field: "attacker", Value: c.AttackerSpec, Message: err.Error()}
	}
	if atk.IsLocal() {
		return &ncerr.ConfigError{
			Field: "attacker", Value: c.AttackerSpec,
			Message: "the attacker must be a remote SSH host",
		}
	}
	if _, err := c.Victim(); err != nil {
		return &ncerr.ConfigError{Field: "victim", Value: c.VictimSpec, Message: err.Error()}
	}

	if c.AttackerPlatform != "linux" {
		return &ncerr.ConfigError{
			Field: "attacker-platform", Value: c.AttackerPlatform,
			Message: "the attacker runs dtach and must be linux",
		}
	}
	if c.VictimPlatform != "linux" && c.VictimPlatform != "windows" {
		return &ncerr.ConfigError{
			Field: "victim-platform", Value: c.VictimPlatform,
			Message: "unknown platform", Hint: "use linux or windows",
		}
	}
	if c.VictimPlatform == "windows" && c.Variant == string(scenario.VariantDnscat2) {
		return &ncerr.ConfigError{
			Field: "victim-platform", Value: c.VictimPlatform,
			Message: "the dnscat2 variant needs a linux victim",
		}
	}

	if c.ProxyPort < 1 || c.ProxyPort > 65535 {
		return &ncerr.ConfigError{Field: "proxy-port", Value: c.ProxyPort, Message: "out of range 1-65535"}
	}
	if c.PcapDir == "" {
		return &ncerr.ConfigError{Field: "pcap-dir", Message: "required"}
	}
	if c.Domain == "" {
		return &ncerr.ConfigError{Field: "domain", Message: "required"}
	}
	if c.MaxRuns < 0 {
		return &ncerr.ConfigError{Field: "runs", Value: c.MaxRuns, Message: "must not be negative"}
	}
	if c.ConnectAttempts < 1 {
		return &ncerr.ConfigError{Field: "connect-attempts", Value: c.ConnectAttempts, Message: "must be at least 1"}
	}
	if err := c.Timing.validate(); err != nil {
		return err
	}
	return nil
}

func (t Timing) validate() error {
	for name, d := range map[string]time.Duration{
		"server_settle":    t.ServerSettle,
		"proxy_settle":     t.ProxySettle,
		"shell_settle":     t.ShellSettle,
		"post_commands":    t.PostCommands,
		"pre_shutdown":     t.PreShutdown,
		"shutdown_grace":   t.ShutdownGrace,
		"exfil_settle":     t.ExfilSettle,
		"trailing_capture": t.TrailingCapture,
		"kill_grace":       t.KillGrace,
	} {
		if d < 0 {
			return &ncerr.ConfigError{Field: "timing." + name, Value: d, Message: "must not be negative"}
		}
	}
	return nil
}
