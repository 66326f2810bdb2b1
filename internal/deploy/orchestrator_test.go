package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// mockStrategy is an in-memory Strategy used to test the orchestrator's
// dispatch logic without a real shell or ssh connection.
type mockStrategy struct {
	mu         sync.Mutex
	files      map[string][]byte
	runCount   int
	scriptRuns map[string]int
	failRun    bool
}

func newMockStrategy() *mockStrategy {
	return &mockStrategy{files: make(map[string][]byte), scriptRuns: make(map[string]int)}
}

func (m *mockStrategy) Run(ctx context.Context, command string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runCount++
	if m.failRun {
		return "", errors.New("mock run failure")
	}
	return "", nil
}

func (m *mockStrategy) RunScript(ctx context.Context, name, content string, vars map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scriptRuns[name]++
	return "", nil
}

func (m *mockStrategy) UploadContent(ctx context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte{}, data...)
	return nil
}

func (m *mockStrategy) ReadJSON(ctx context.Context, path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok || !json.Valid(data) {
		return nil, false
	}
	return data, true
}

func (m *mockStrategy) SyncDirectory(ctx context.Context, source, destination string, exclude []string) error {
	return nil
}

func (m *mockStrategy) Close() error { return nil }

func testManifest() *Manifest {
	return &Manifest{Name: "myapp", Version: "1.0.0"}
}

func TestHandleEnsureInstallsOnceThenConverges(t *testing.T) {
	s := newMockStrategy()
	lock := emptyLockFile()
	op := Operation{Kind: KindEnsure, EnsureKind: "swap", Config: map[string]any{"size": "2G"}}
	m := testManifest()

	if _, err := handleEnsure(context.Background(), s, lock, "pod-lock.json", op, m, Options{}); err != nil {
		t.Fatalf("first handleEnsure: %v", err)
	}
	if s.scriptRuns["swap"] != 1 {
		t.Fatalf("expected the install script to run once, ran %d times", s.scriptRuns["swap"])
	}

	skipped, err := handleEnsure(context.Background(), s, lock, "pod-lock.json", op, m, Options{})
	if err != nil {
		t.Fatalf("second handleEnsure: %v", err)
	}
	if !skipped {
		t.Error("expected a converged ensure to report skipped=true")
	}
	if s.scriptRuns["swap"] != 1 {
		t.Fatalf("expected convergence to skip reinstall, ran %d times", s.scriptRuns["swap"])
	}
}

func TestHandleEnsureForceInstallAlwaysReruns(t *testing.T) {
	s := newMockStrategy()
	lock := emptyLockFile()
	op := Operation{Kind: KindEnsure, EnsureKind: "swap", Config: map[string]any{"size": "2G"}}
	m := testManifest()

	if _, err := handleEnsure(context.Background(), s, lock, "pod-lock.json", op, m, Options{}); err != nil {
		t.Fatalf("handleEnsure: %v", err)
	}
	if _, err := handleEnsure(context.Background(), s, lock, "pod-lock.json", op, m, Options{ForceInstall: true}); err != nil {
		t.Fatalf("handleEnsure with force: %v", err)
	}
	if s.scriptRuns["swap"] != 2 {
		t.Fatalf("expected force-install to rerun the script, ran %d times", s.scriptRuns["swap"])
	}
}

func TestHandleEnsureConfigChangeTriggersReinstall(t *testing.T) {
	s := newMockStrategy()
	lock := emptyLockFile()
	m := testManifest()

	op := Operation{Kind: KindEnsure, EnsureKind: "swap", Config: map[string]any{"size": "2G"}}
	if _, err := handleEnsure(context.Background(), s, lock, "pod-lock.json", op, m, Options{}); err != nil {
		t.Fatalf("handleEnsure: %v", err)
	}

	op.Config = map[string]any{"size": "4G"}
	if _, err := handleEnsure(context.Background(), s, lock, "pod-lock.json", op, m, Options{}); err != nil {
		t.Fatalf("handleEnsure with changed config: %v", err)
	}
	if s.scriptRuns["swap"] != 2 {
		t.Fatalf("expected a config change to trigger reinstall, ran %d times", s.scriptRuns["swap"])
	}
}

func TestHandleActionOnceRunsExactlyOnce(t *testing.T) {
	s := newMockStrategy()
	lock := emptyLockFile()
	m := testManifest()
	op := Operation{Kind: KindAction, ActionKind: "command", Name: "migrate", When: WhenOnce, Run: "true"}

	if _, err := handleAction(context.Background(), s, lock, "pod-lock.json", op, m); err != nil {
		t.Fatalf("first handleAction: %v", err)
	}
	skipped, err := handleAction(context.Background(), s, lock, "pod-lock.json", op, m)
	if err != nil {
		t.Fatalf("second handleAction: %v", err)
	}
	if !skipped {
		t.Error("expected a completed once-action to report skipped=true the second time")
	}
	if s.runCount != 1 {
		t.Fatalf("expected the once-action to run exactly once, ran %d times", s.runCount)
	}
	if !lock.hasOnce(op.OnceKey()) {
		t.Error("expected the once-action identifier to be recorded in the lock")
	}
}

func TestHandleActionNeverSkips(t *testing.T) {
	s := newMockStrategy()
	lock := emptyLockFile()
	m := testManifest()
	op := Operation{Kind: KindAction, ActionKind: "command", Name: "skip-me", When: WhenNever, Run: "true"}

	skipped, err := handleAction(context.Background(), s, lock, "pod-lock.json", op, m)
	if err != nil {
		t.Fatalf("handleAction: %v", err)
	}
	if !skipped {
		t.Error("expected a `never` action to report skipped=true")
	}
	if s.runCount != 0 {
		t.Error("expected a `never` action to never run")
	}
}

func TestHandleVerifyCommandFailureProducesVerificationFailed(t *testing.T) {
	s := newMockStrategy()
	s.failRun = true
	op := Operation{Kind: KindVerify, VerifyKind: "command", Name: "check", Run: "false"}

	err := handleVerify(context.Background(), s, op)
	if err == nil {
		t.Fatal("expected a verification failure")
	}
	var vf *VerificationFailed
	if !errors.As(err, &vf) {
		t.Fatalf("expected *VerificationFailed, got %T", err)
	}
}

// chdirTemp switches the process into a fresh temp directory for the
// duration of the test and restores the original working directory
// afterward. Deploy resolves a local target's lock path against the
// process's own working directory, so exercising Deploy end-to-end
// without polluting the module tree requires moving into one.
func chdirTemp(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(root); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(oldWd) })
	return root
}

func localDeployManifest(version, dirPath string) *Manifest {
	target := &Target{
		Name: "box",
		Type: "local",
		Operations: []Operation{
			{Kind: KindEnsure, EnsureKind: "directory", Name: "directory_" + dirPath, Config: map[string]any{"path": dirPath, "owner": ""}},
			{Kind: KindAction, ActionKind: "command", Name: "seed", When: WhenOnce, Run: "echo x >> counter.txt"},
		},
	}
	return &Manifest{Name: "myapp", Version: version, Targets: map[string]*Target{"box": target}}
}

func counterLines(t *testing.T, root string) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, "counter.txt"))
	if err != nil {
		t.Fatalf("reading counter.txt: %v", err)
	}
	return len(strings.Split(strings.TrimRight(string(data), "\n"), "\n"))
}

func TestDeployIsIdempotentAcrossRuns(t *testing.T) {
	root := chdirTemp(t)
	dirPath := filepath.Join(root, "ensured")
	m := localDeployManifest("1.0.0", dirPath)

	if err := Deploy(context.Background(), m, "box", Options{}, NewProgress(io.Discard), nil); err != nil {
		t.Fatalf("first Deploy: %v", err)
	}
	if _, err := os.Stat(dirPath); err != nil {
		t.Fatalf("expected the ensured directory to exist: %v", err)
	}
	if lines := counterLines(t, root); lines != 1 {
		t.Fatalf("expected the once-action to run once, counter has %d lines", lines)
	}

	if err := Deploy(context.Background(), m, "box", Options{}, NewProgress(io.Discard), nil); err != nil {
		t.Fatalf("second Deploy: %v", err)
	}
	if lines := counterLines(t, root); lines != 1 {
		t.Fatalf("expected a fresh run against a converged target to skip the once-action, counter has %d lines", lines)
	}
}

func TestDeployVersionBumpRerunsOnceActionsButKeepsEnsuresConverged(t *testing.T) {
	root := chdirTemp(t)
	dirPath := filepath.Join(root, "ensured")
	m := localDeployManifest("1.0.0", dirPath)

	if err := Deploy(context.Background(), m, "box", Options{}, NewProgress(io.Discard), nil); err != nil {
		t.Fatalf("first Deploy: %v", err)
	}
	if lines := counterLines(t, root); lines != 1 {
		t.Fatalf("expected the once-action to run once at v1.0.0, counter has %d lines", lines)
	}

	m.Version = "1.1.0"
	if err := Deploy(context.Background(), m, "box", Options{}, NewProgress(io.Discard), nil); err != nil {
		t.Fatalf("version-bump Deploy: %v", err)
	}
	if lines := counterLines(t, root); lines != 2 {
		t.Fatalf("expected the version bump to rerun the once-action, counter has %d lines", lines)
	}

	lockData, err := os.ReadFile(filepath.Join(root, "pod-lock.json"))
	if err != nil {
		t.Fatalf("reading lock file: %v", err)
	}
	var lf LockFile
	if err := json.Unmarshal(lockData, &lf); err != nil {
		t.Fatalf("unmarshal lock file: %v", err)
	}
	if lf.DeploymentVersion != "1.1.0" {
		t.Errorf("expected deployment_version to be updated to 1.1.0, got %q", lf.DeploymentVersion)
	}
	if _, ok := lf.Ensures["directory_"+dirPath]; !ok {
		t.Error("expected the ensure entry to survive the version bump")
	}
}
