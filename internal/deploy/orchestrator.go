package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"
)

// Options carries the flags `pod deploy` exposes.
type Options struct {
	ForceInstall bool
}

// Deploy executes target's operation list against its lock file (spec
// §4.4). Strategy acquisition and release, and every lock-file write, are
// funneled so that an interruption mid-deploy leaves the lock reflecting
// the last successfully completed operation (spec §5 Cancellation).
func Deploy(ctx context.Context, m *Manifest, targetName string, opts Options, progress *Progress, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if progress == nil {
		progress = NewProgress(os.Stdout)
	}

	target, ok := m.Targets[targetName]
	if !ok {
		return &ManifestError{Target: targetName, Reason: "no such target in manifest"}
	}

	strategy, err := NewStrategy(target)
	if err != nil {
		return &DeployOperationError{Target: targetName, Operation: "connect", Cause: err}
	}
	defer strategy.Close()

	cwd, _ := os.Getwd()
	lockPath := LockPath(target, cwd)
	lock := loadLock(ctx, strategy, lockPath)

	if lock.DeploymentVersion != m.Version {
		log.Infow("manifest version changed, resetting once-actions", "from", lock.DeploymentVersion, "to", m.Version)
		lock.OnceActions = nil
		lock.DeploymentVersion = m.Version
		if err := lock.save(ctx, strategy, lockPath); err != nil {
			return &DeployOperationError{Target: targetName, Operation: "version-handshake", Cause: err}
		}
	}

	for _, op := range target.Operations {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		progress.Start(op)
		var opErr error
		var skipped bool
		switch op.Kind {
		case KindEnsure:
			skipped, opErr = handleEnsure(ctx, strategy, lock, lockPath, op, m, opts)
		case KindAction:
			skipped, opErr = handleAction(ctx, strategy, lock, lockPath, op, m)
		case KindVerify:
			opErr = handleVerify(ctx, strategy, op)
		}

		if opErr != nil {
			progress.Fail(op, opErr)
			return &DeployOperationError{Target: targetName, Operation: op.Name, Cause: opErr}
		}
		if skipped {
			progress.Skip(op)
		} else {
			progress.Done(op)
		}
	}

	return nil
}

// handleEnsure runs op's convergence check and, if needed, its install
// script. The returned bool reports whether the operation was already
// converged and therefore skipped, so Deploy's progress line matches.
func handleEnsure(ctx context.Context, s Strategy, lock *LockFile, lockPath string, op Operation, m *Manifest, opts Options) (bool, error) {
	key := op.EnsureKey()
	entry, exists := lock.Ensures[key]
	converged := exists && !opts.ForceInstall && configEqual(entry.Config, op.Config)
	if converged {
		return true, nil
	}

	script, err := ensureScript(op)
	if err != nil {
		return false, err
	}
	if _, err := s.RunScript(ctx, key, script, nil); err != nil {
		return false, err
	}

	lock.Ensures[key] = EnsureEntry{Version: m.Version, Config: op.Config}
	return false, lock.save(ctx, s, lockPath)
}

// ensureScript renders the installation script for an ensure kind. These
// are intentionally simple, idempotent shell recipes — the orchestrator's
// convergence check above is what prevents needless re-execution, not
// cleverness inside the script itself.
func ensureScript(op Operation) (string, error) {
	switch op.EnsureKind {
	case "swap":
		size := fmt.Sprint(op.Config["size"])
		return fmt.Sprintf(`set -e
if [ ! -f /swapfile ]; then
  fallocate -l %s /swapfile || dd if=/dev/zero of=/swapfile bs=1M count=2048
  chmod 600 /swapfile
  mkswap /swapfile
fi
swapon /swapfile 2>/dev/null || true
`, size), nil
	case "docker":
		version := fmt.Sprint(op.Config["version"])
		return fmt.Sprintf(`set -e
if ! command -v docker >/dev/null 2>&1; then
  curl -fsSL https://get.docker.com | sh -s -- --version %s
fi
`, version), nil
	case "directory":
		dir := fmt.Sprint(op.Config["path"])
		owner := fmt.Sprint(op.Config["owner"])
		script := fmt.Sprintf("set -e\nmkdir -p %s\n", shellQuote(dir))
		if owner != "" && owner != "<nil>" {
			script += fmt.Sprintf("chown %s %s\n", owner, shellQuote(dir))
		}
		return script, nil
	default:
		return "", &ManifestError{Reason: fmt.Sprintf("unknown ensure kind %q", op.EnsureKind)}
	}
}

// handleAction runs op unless its `when` discipline says it already has
// (never, or once-and-done). The returned bool reports whether it was
// skipped for that reason, so Deploy's progress line matches.
func handleAction(ctx context.Context, s Strategy, lock *LockFile, lockPath string, op Operation, m *Manifest) (bool, error) {
	if op.When == WhenNever {
		return true, nil
	}
	if op.When == WhenOnce && lock.hasOnce(op.OnceKey()) {
		return true, nil
	}

	switch op.ActionKind {
	case "sync":
		if err := s.SyncDirectory(ctx, op.Source, op.Destination, op.Exclude); err != nil {
			return false, err
		}
	case "command":
		ctxVars := map[string]string{"name": m.Name, "version": m.Version}
		if _, err := s.Run(ctx, interpolate(op.Run, ctxVars)); err != nil {
			return false, err
		}
	default:
		return false, &ManifestError{Reason: fmt.Sprintf("unknown action kind %q", op.ActionKind)}
	}

	if op.When == WhenOnce {
		lock.addOnce(op.OnceKey())
		return false, lock.save(ctx, s, lockPath)
	}
	return false, nil
}

func handleVerify(ctx context.Context, s Strategy, op Operation) error {
	switch op.VerifyKind {
	case "http":
		client := &http.Client{Timeout: op.Timeout}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, op.URL, nil)
		if err != nil {
			return &VerificationFailed{Name: op.Name, Detail: err.Error()}
		}
		resp, err := client.Do(req)
		if err != nil {
			return &VerificationFailed{Name: op.Name, Detail: err.Error()}
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &VerificationFailed{Name: op.Name, Detail: fmt.Sprintf("http status %d", resp.StatusCode)}
		}
		return nil
	case "command":
		if _, err := s.Run(ctx, op.Run); err != nil {
			return &VerificationFailed{Name: op.Name, Detail: err.Error()}
		}
		return nil
	default:
		return &ManifestError{Reason: fmt.Sprintf("unknown verify kind %q", op.VerifyKind)}
	}
}

// configEqual compares two ensure configs by deep structural equality,
// normalized through a JSON round trip so values decoded from YAML
// (int/float64) and values decoded from the lock file's JSON compare
// consistently (spec §4.4: "the config differs by deep comparison").
func configEqual(a, b map[string]any) bool {
	da, errA := json.Marshal(a)
	db, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(da) == string(db)
}
