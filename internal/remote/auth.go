package remote

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

// defaultKeyNames are tried in ~/.ssh when no method is configured.
var defaultKeyNames = []string{"id_ed25519", "id_rsa", "id_ecdsa"}

// readSecret asks the operator for a password or passphrase without
// echoing it.  Tests replace it.
var readSecret = func(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	return b, err
}

// credentials resolves the auth methods of one host once, so connection
// retries never prompt twice.
type credentials struct {
	once    sync.Once
	methods []ssh.AuthMethod
	err     error
}

func (c *credentials) get(cfg *SSHConfig) ([]ssh.AuthMethod, error) {
	c.once.Do(func() { c.methods, c.err = BuildAuthMethods(cfg) })
	return c.methods, c.err
}

// BuildAuthMethods returns the SSH auth methods for cfg: key signers
// first, then the agent, then a password.  With nothing configured the
// agent and the usual ~/.ssh keys are used if present.
func BuildAuthMethods(cfg *SSHConfig) ([]ssh.AuthMethod, error) {
	var (
		methods []ssh.AuthMethod
		signers []ssh.Signer
	)

	if cfg.KeyPath != "" {
		s, err := loadSigner(expandHome(cfg.KeyPath))
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", cfg.KeyPath, err)
		}
		signers = append(signers, s)
	}
	if cfg.UseAgent {
		m, err := agentMethod()
		if err != nil {
			return nil, fmt.Errorf("ssh-agent: %w", err)
		}
		methods = append(methods, m)
	}

	switch {
	case cfg.Password != "":
		methods = append(methods, ssh.Password(cfg.Password))
	case cfg.PromptPass:
		pass, err := readSecret(fmt.Sprintf("SSH password for %s@%s: ", cfg.User, cfg.Host))
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		methods = append(methods, ssh.Password(string(pass)))
	}

	if len(signers) == 0 && len(methods) == 0 {
		if m, err := agentMethod(); err == nil {
			methods = append(methods, m)
		}
		signers = append(signers, defaultSigners()...)
	}
	if len(signers) > 0 {
		methods = append([]ssh.AuthMethod{ssh.PublicKeys(signers...)}, methods...)
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no SSH credentials for %s: use --ssh-key, --ssh-password or --ssh-agent", cfg.Host)
	}
	return methods, nil
}

// loadSigner parses a private key, asking for the passphrase when the
// key is encrypted.
func loadSigner(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return s, err
	}

	pass, err := readSecret(fmt.Sprintf("Enter passphrase for %s: ", path))
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return ssh.ParsePrivateKeyWithPassphrase(data, pass)
}

func agentMethod() (ssh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("connecting to agent at %s: %w", sock, err)
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

// defaultSigners loads the unencrypted keys among defaultKeyNames.
// Encrypted ones are skipped rather than prompted for.
func defaultSigners() []ssh.Signer {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	var out []ssh.Signer
	for _, name := range defaultKeyNames {
		data, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		if s, err := ssh.ParsePrivateKey(data); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// ── host keys ────────────────────────────────────────────────────────

// hostKeyCallback checks host keys against known_hosts in strict mode
// and accepts any key otherwise.
func hostKeyCallback(cfg *SSHConfig) (ssh.HostKeyCallback, error) {
	if !cfg.StrictHostKey {
		//nolint:gosec // testbed VMs are re-imaged between sessions
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := expandHome(cfg.KnownHosts)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating home directory: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts from %s: %w", path, err)
	}
	return cb, nil
}

// expandHome resolves a leading "~/".
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
