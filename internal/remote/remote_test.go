package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"golang.org/x/crypto/ssh"

	ncerr "dohgen/internal/errors"
	"dohgen/util"
)

// TestCommandString verifies that arguments are quoted for the shell.
func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{Cmd("dtach", "-n", "/tmp/abc123", "ruby"), "dtach -n /tmp/abc123 ruby"},
		{Cmd("echo", "two words"), "echo 'two words'"},
		{Cmd("printf", ""), "printf ''"},
	}
	for _, tt := range tests {
		if got := tt.cmd.String(); got != tt.want {
			t.Errorf("String(%q) = %q, want %q", tt.cmd.Args, got, tt.want)
		}
	}
}

// TestCommandModifiers verifies that AsRoot and WithStdin copy.
func TestCommandModifiers(t *testing.T) {
	base := Cmd("tcpdump")
	root := base.AsRoot().WithStdin("x")
	if base.Privileged || base.Stdin != "" {
		t.Error("modifiers should not mutate the receiver")
	}
	if !root.Privileged || root.Stdin != "x" {
		t.Errorf("got %+v", root)
	}
}

// TestParsePlatform verifies accepted platform names.
func TestParsePlatform(t *testing.T) {
	for _, s := range []string{"linux", "windows"} {
		if _, err := ParsePlatform(s); err != nil {
			t.Errorf("ParsePlatform(%q): %v", s, err)
		}
	}
	if _, err := ParsePlatform("plan9"); err == nil {
		t.Error("expected error for plan9")
	}
}

// TestRender_Sudo verifies how privileged commands are wrapped.
func TestRender_Sudo(t *testing.T) {
	tests := []struct {
		name      string
		platform  Platform
		password  string
		cmd       Command
		wantLine  string
		wantStdin string
	}{
		{"plain", Linux, "pw", Cmd("ls"), "ls", ""},
		{"no password", Linux, "", Cmd("tcpdump").AsRoot(), "sudo -n tcpdump", ""},
		{"password", Linux, "pw", Cmd("tcpdump").AsRoot(), "sudo -S -p '' tcpdump", "pw\n"},
		{"password and input", Linux, "pw", Cmd("dtach", "-p", "s").AsRoot().WithStdin("quit\n"),
			"sudo -S -p '' dtach -p s", "pw\nquit\n"},
		{"windows", Windows, "pw", Cmd("WinDump").AsRoot(), "WinDump", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewSSHExecutor(&SSHConfig{Host: "h", SudoPassword: tt.password, Platform: tt.platform}, util.NewLogger(0))
			line, stdin := e.render(tt.cmd)
			if line != tt.wantLine {
				t.Errorf("line = %q, want %q", line, tt.wantLine)
			}
			if stdin != tt.wantStdin {
				t.Errorf("stdin = %q, want %q", stdin, tt.wantStdin)
			}
		})
	}
}

// TestSSHExecutor_NotConnected verifies that commands fail before Connect.
func TestSSHExecutor_NotConnected(t *testing.T) {
	e := NewSSHExecutor(&SSHConfig{User: "attacker", Host: "dohserver"}, util.NewLogger(0))
	if e.Host() != "attacker@dohserver" {
		t.Errorf("Host() = %q", e.Host())
	}
	if e.Platform() != Linux {
		t.Errorf("Platform() = %q, want linux default", e.Platform())
	}
	if e.IsAlive() {
		t.Error("IsAlive before Connect")
	}
	err := e.Run(context.Background(), Cmd("true"))
	if !errors.Is(err, ncerr.ErrNotConnected) {
		t.Errorf("Run before Connect = %v, want ErrNotConnected", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

// TestClassifyHandshake verifies sentinel mapping of handshake errors.
func TestClassifyHandshake(t *testing.T) {
	err := classifyHandshake(errors.New("ssh: handshake failed: ssh: unable to authenticate"))
	if !errors.Is(err, ncerr.ErrAuthFailed) {
		t.Errorf("got %v, want ErrAuthFailed", err)
	}
	err = classifyHandshake(errors.New("ssh: handshake failed: knownhosts: key mismatch"))
	if !errors.Is(err, ncerr.ErrHostKeyMismatch) {
		t.Errorf("got %v, want ErrHostKeyMismatch", err)
	}
}

// ── auth ─────────────────────────────────────────────────────────────

// TestBuildAuthMethods_ExplicitKey verifies that a key file is loaded.
func TestBuildAuthMethods_ExplicitKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	writeTestKey(t, keyPath)

	methods, err := BuildAuthMethods(&SSHConfig{KeyPath: keyPath})
	if err != nil {
		t.Fatalf("BuildAuthMethods: %v", err)
	}
	if len(methods) == 0 {
		t.Fatal("expected at least one auth method")
	}
}

// TestBuildAuthMethods_Password verifies that a configured password is
// used without prompting.
func TestBuildAuthMethods_Password(t *testing.T) {
	methods, err := BuildAuthMethods(&SSHConfig{Password: "secret", PromptPass: true})
	if err != nil {
		t.Fatalf("BuildAuthMethods: %v", err)
	}
	if len(methods) != 1 {
		t.Errorf("got %d methods, want 1", len(methods))
	}
}

// TestCredentials_PromptOnce verifies that connection retries reuse the
// password typed for a host.
func TestCredentials_PromptOnce(t *testing.T) {
	prompts := 0
	orig := readSecret
	readSecret = func(string) ([]byte, error) { prompts++; return []byte("typed"), nil }
	defer func() { readSecret = orig }()

	cfg := &SSHConfig{User: "client", Host: "dohclient", PromptPass: true}
	var c credentials
	for i := 0; i < 3; i++ {
		methods, err := c.get(cfg)
		if err != nil || len(methods) != 1 {
			t.Fatalf("get: %d methods, %v", len(methods), err)
		}
	}
	if prompts != 1 {
		t.Errorf("prompted %d times, want 1", prompts)
	}
}

// TestBuildAuthMethods_EncryptedKey verifies that the passphrase of an
// encrypted key is asked for.
func TestBuildAuthMethods_EncryptedKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKeyWithPassphrase(priv, "dohgen-test", []byte("hunter2"))
	if err != nil {
		t.Fatal(err)
	}
	keyPath := filepath.Join(t.TempDir(), "id_enc")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}

	orig := readSecret
	defer func() { readSecret = orig }()

	readSecret = func(string) ([]byte, error) { return []byte("hunter2"), nil }
	if _, err := BuildAuthMethods(&SSHConfig{KeyPath: keyPath}); err != nil {
		t.Fatalf("right passphrase: %v", err)
	}

	readSecret = func(string) ([]byte, error) { return []byte("wrong"), nil }
	if _, err := BuildAuthMethods(&SSHConfig{KeyPath: keyPath}); err == nil {
		t.Error("expected an error for a wrong passphrase")
	}
}

// TestExpandHome verifies "~/" expansion.
func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/.ssh/known_hosts"); got != filepath.Join(home, ".ssh", "known_hosts") {
		t.Errorf("expandHome = %q", got)
	}
	if got := expandHome("/etc/ssh/known_hosts"); got != "/etc/ssh/known_hosts" {
		t.Errorf("absolute path changed to %q", got)
	}
}

// TestBuildAuthMethods_MissingKey verifies a clear error message.
func TestBuildAuthMethods_MissingKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	if _, err := BuildAuthMethods(&SSHConfig{KeyPath: "/nonexistent/key"}); err == nil {
		t.Fatal("expected error for missing key")
	}
}

// TestHostKeyCallback verifies insecure and strict modes.
func TestHostKeyCallback(t *testing.T) {
	cb, err := hostKeyCallback(&SSHConfig{StrictHostKey: false})
	if err != nil || cb == nil {
		t.Fatalf("insecure callback: %v", err)
	}

	_, err = hostKeyCallback(&SSHConfig{StrictHostKey: true, KnownHosts: "/nonexistent/known_hosts"})
	if err == nil {
		t.Error("expected error for missing known_hosts file")
	}

	kh := filepath.Join(t.TempDir(), "known_hosts")
	if err := os.WriteFile(kh, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := hostKeyCallback(&SSHConfig{StrictHostKey: true, KnownHosts: kh}); err != nil {
		t.Errorf("empty known_hosts: %v", err)
	}
}

// ── local ────────────────────────────────────────────────────────────

// TestLocalExecutor verifies blocking runs and exit status reporting.
func TestLocalExecutor(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX utilities")
	}
	l := NewLocalExecutor("", util.NewLogger(0))
	if l.Host() != "local" || l.Platform() != Linux {
		t.Fatalf("Host/Platform = %q/%q", l.Host(), l.Platform())
	}

	out := filepath.Join(t.TempDir(), "out")
	if err := l.Run(context.Background(), Cmd("sh", "-c", "cat > "+out).WithStdin("hello")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "hello" {
		t.Errorf("stdin not delivered: %q, %v", data, err)
	}

	err = l.Run(context.Background(), Cmd("sh", "-c", "echo boom; exit 3"))
	var exit *ExitError
	if !errors.As(err, &exit) {
		t.Fatalf("got %v, want *ExitError", err)
	}
	if exit.Status != 3 || exit.Output != "boom\n" {
		t.Errorf("exit = %+v", exit)
	}

	if err := l.Run(context.Background(), Command{}); err == nil {
		t.Error("expected error for empty command")
	}
}

// ── helpers ──────────────────────────────────────────────────────────

// writeTestKey writes a fresh unencrypted ed25519 private key.
func writeTestKey(t *testing.T, path string) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "dohgen-test")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
}
