package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
)

// SSHStrategy drives every primitive over one authenticated secure-shell
// connection (spec §4.4). Each Run/UploadContent call opens its own
// session — an ssh.Session is single-use — and a tracked working directory
// is reapplied as a `cd` prefix on every command, since a fresh session
// does not inherit the previous one's directory.
type SSHStrategy struct {
	client *ssh.Client

	mu  sync.Mutex
	cwd string
}

// NewSSHStrategy opens an authenticated session to t using its private
// key, user, host, and port (spec §4.4). Host key verification is not
// performed: this tool has no known_hosts management and delegates
// transport trust entirely to the operator's key setup, per the
// "does not provide its own transport encryption" non-goal.
func NewSSHStrategy(t *Target) (*SSHStrategy, error) {
	keyData, err := os.ReadFile(t.KeyPath)
	if err != nil {
		return nil, &TransportError{Op: "read key " + t.KeyPath, Cause: err}
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, &TransportError{Op: "parse key " + t.KeyPath, Cause: err}
	}

	config := &ssh.ClientConfig{
		User:            t.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", t.Host, t.Port)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, &TransportError{Op: "dial " + addr, Cause: err}
	}

	return &SSHStrategy{client: client, cwd: t.DeployPath}, nil
}

func (s *SSHStrategy) prefixed(command string) string {
	s.mu.Lock()
	cwd := s.cwd
	s.mu.Unlock()
	if cwd == "" {
		return command
	}
	return fmt.Sprintf("cd %s && %s", shellQuote(cwd), command)
}

func (s *SSHStrategy) Run(ctx context.Context, command string) (string, error) {
	if m := cdCommand.FindStringSubmatch(strings.TrimSpace(command)); m != nil {
		s.mu.Lock()
		if path.IsAbs(m[1]) {
			s.cwd = m[1]
		} else {
			s.cwd = path.Join(s.cwd, m[1])
		}
		s.mu.Unlock()
		return "", nil
	}

	session, err := s.client.NewSession()
	if err != nil {
		return "", &TransportError{Op: "run", Cause: err}
	}
	defer session.Close()

	out, err := runWithContext(ctx, session, s.prefixed(command))
	if err != nil {
		return out, &TransportError{Op: "run", Cause: err}
	}
	return out, nil
}

func (s *SSHStrategy) RunScript(ctx context.Context, name, content string, vars map[string]string) (string, error) {
	script := interpolate(content, vars)
	remotePath := fmt.Sprintf("/tmp/pod-%s-%s.sh", name, uuid.New().String())

	if err := s.UploadContent(ctx, remotePath, []byte(script)); err != nil {
		return "", err
	}
	defer s.runRaw(context.Background(), "rm -f "+shellQuote(remotePath))

	if _, err := s.Run(ctx, "chmod +x "+shellQuote(remotePath)); err != nil {
		return "", err
	}
	out, err := s.Run(ctx, remotePath)
	if err != nil {
		return out, &TransportError{Op: "run-script " + name, Cause: err}
	}
	return out, nil
}

func (s *SSHStrategy) UploadContent(ctx context.Context, p string, data []byte) error {
	session, err := s.client.NewSession()
	if err != nil {
		return &TransportError{Op: "upload-content", Cause: err}
	}
	defer session.Close()

	session.Stdin = bytes.NewReader(data)
	dir := path.Dir(p)
	command := fmt.Sprintf("mkdir -p %s && cat > %s", shellQuote(dir), shellQuote(p))
	if out, err := runWithContext(ctx, session, command); err != nil {
		return &TransportError{Op: "upload-content " + p, Cause: fmt.Errorf("%s: %w", out, err)}
	}
	return nil
}

func (s *SSHStrategy) ReadJSON(ctx context.Context, p string) ([]byte, bool) {
	session, err := s.client.NewSession()
	if err != nil {
		return nil, false
	}
	defer session.Close()

	out, err := runWithContext(ctx, session, "cat "+shellQuote(p))
	if err != nil {
		return nil, false
	}
	data := []byte(out)
	if !json.Valid(data) {
		return nil, false
	}
	return data, true
}

func (s *SSHStrategy) SyncDirectory(ctx context.Context, source, destination string, exclude []string) error {
	return genericSyncDirectory(ctx, s, source, destination, exclude)
}

func (s *SSHStrategy) Close() error {
	return s.client.Close()
}

// runRaw is a best-effort command execution used for cleanup paths whose
// own error is not worth surfacing (e.g. removing a temp script).
func (s *SSHStrategy) runRaw(ctx context.Context, command string) {
	session, err := s.client.NewSession()
	if err != nil {
		return
	}
	defer session.Close()
	_, _ = runWithContext(ctx, session, command)
}

// runWithContext runs command on session and races it against ctx
// cancellation the same way the Host Runtime races macro invocation: ssh
// sessions have no native context support, so cancellation closes the
// session to unblock the read.
func runWithContext(ctx context.Context, session *ssh.Session, command string) (string, error) {
	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return string(r.out), r.err
	case <-ctx.Done():
		session.Close()
		return "", ctx.Err()
	}
}

var unsafeShellChars = regexp.MustCompile(`[^A-Za-z0-9_./-]`)

// shellQuote returns p unchanged when it holds only [A-Za-z0-9_./-];
// otherwise it wraps p in single quotes, escaping any embedded single quote,
// so paths containing spaces or shell metacharacters survive the remote
// `sh -c` round trip safely.
func shellQuote(p string) string {
	if !unsafeShellChars.MatchString(p) {
		return p
	}
	return "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
}
