package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout is the SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultConnectAttempts is how many times a host connection is
	// tried at startup before giving up.
	DefaultConnectAttempts = 3

	// DefaultAttacker is the C&C / exfiltration server machine.
	DefaultAttacker = "attacker@dohserver.local"

	// DefaultVictim is the machine running the DoH proxy, the client
	// and the capture.
	DefaultVictim = "client@dohclient.local"

	// DefaultPlatform is the platform assumed for SSH hosts.
	DefaultPlatform = "linux"

	// LocalHost selects the local executor instead of SSH.
	LocalHost = "local"

	// DefaultDomain is the authoritative test domain of the DNS tunnel.
	DefaultDomain = "testlab.lan"

	// DefaultProxyPort is the doh-stub listen port on the victim.
	DefaultProxyPort = 53

	// DefaultCaptureInterface is passed to tcpdump / WinDump -i.
	DefaultCaptureInterface = "1"

	// DefaultSocketDir is where dtach sockets are created.
	DefaultSocketDir = "/tmp"

	// DefaultPcapDir is where capture files are written on the victim.
	DefaultPcapDir = "/home/client/pcaps"

	// Tool locations on the attacker.
	DefaultDnscat2ServerDir  = "/opt/dnscat2/server"
	DefaultExfilServerDir    = "/opt/DNSExfiltrator"
	DefaultExfilServerPython = "/root/anaconda3/envs/dnsexfiltrator/bin/python"
	DefaultExfilPassword     = "dohgen"

	// Tool locations on the victim.
	DefaultDnscat2ClientDir = "/opt/dnscat2/client"
	DefaultCondaPath        = "/home/client/anaconda3/bin/conda"
	DefaultProxyEnv         = "doh-proxy"
	DefaultExfilClientDir   = "/opt/DNSExfiltrator"
	DefaultExfilPayloadPath = "/tmp/dohgen-payload.bin"
	DefaultWinDumpPath      = "WinDump.exe"
)

// Settle delays and grace windows measured on the lab testbed.
const (
	DefaultServerSettle    = 3 * time.Second
	DefaultProxySettle     = 2 * time.Second
	DefaultShellSettle     = 2 * time.Second
	DefaultPostCommands    = 5 * time.Second
	DefaultPreShutdown     = 10 * time.Second
	DefaultShutdownGrace   = 10 * time.Second
	DefaultExfilSettle     = 2 * time.Second
	DefaultTrailingCapture = 1 * time.Second
	DefaultKillGrace       = 2 * time.Second
)

// Default returns a Config populated with every default value.
func Default() *Config {
	return &Config{
		Variant:          "dnscat2",
		AttackerSpec:     DefaultAttacker,
		VictimSpec:       DefaultVictim,
		AttackerPlatform: DefaultPlatform,
		VictimPlatform:   DefaultPlatform,
		ConnTimeout:      DefaultConnTimeout,
		ConnectAttempts:  DefaultConnectAttempts,

		Domain:           DefaultDomain,
		ProxyPort:        DefaultProxyPort,
		CaptureInterface: DefaultCaptureInterface,
		SocketDir:        DefaultSocketDir,
		PcapDir:          DefaultPcapDir,

		Dnscat2ServerDir:  DefaultDnscat2ServerDir,
		Dnscat2ClientDir:  DefaultDnscat2ClientDir,
		CondaPath:         DefaultCondaPath,
		ProxyEnv:          DefaultProxyEnv,
		ExfilServerDir:    DefaultExfilServerDir,
		ExfilServerPython: DefaultExfilServerPython,
		ExfilPassword:     DefaultExfilPassword,
		ExfilClientDir:    DefaultExfilClientDir,
		ExfilPayloadPath:  DefaultExfilPayloadPath,
		WinDumpPath:       DefaultWinDumpPath,

		Timing: Timing{
			ServerSettle:    DefaultServerSettle,
			ProxySettle:     DefaultProxySettle,
			ShellSettle:     DefaultShellSettle,
			PostCommands:    DefaultPostCommands,
			PreShutdown:     DefaultPreShutdown,
			ShutdownGrace:   DefaultShutdownGrace,
			ExfilSettle:     DefaultExfilSettle,
			TrailingCapture: DefaultTrailingCapture,
			KillGrace:       DefaultKillGrace,
		},

		Verbose: 1,
	}
}
