package deploy

import (
	"context"
	"encoding/json"
	"path"
)

// EnsureEntry is one recorded ensure's convergence state.
type EnsureEntry struct {
	Version string         `json:"version"`
	Config  map[string]any `json:"config"`
}

// LockFile is the per-target persisted record spec §6 defines. A missing
// or unparseable file is treated as an empty LockFile, never as an error.
type LockFile struct {
	DeploymentVersion string                 `json:"deployment_version"`
	Ensures           map[string]EnsureEntry `json:"ensures"`
	OnceActions       []string               `json:"once_actions"`
}

func emptyLockFile() *LockFile {
	return &LockFile{Ensures: make(map[string]EnsureEntry)}
}

// LockPath returns the lock file's path for a target: under its deploy
// path when remote, under the current working directory when local
// (spec §6).
func LockPath(t *Target, cwd string) string {
	if t.IsLocal() {
		return path.Join(cwd, "pod-lock.json")
	}
	return path.Join(t.DeployPath, "pod-lock.json")
}

// loadLock reads and parses the lock file through the strategy's
// read-json primitive, defaulting to an empty lock on any failure
// (spec §4.4, §6: "MUST tolerate a missing file and an unparseable file").
func loadLock(ctx context.Context, s Strategy, lockPath string) *LockFile {
	raw, ok := s.ReadJSON(ctx, lockPath)
	if !ok {
		return emptyLockFile()
	}
	var lf LockFile
	if err := json.Unmarshal(raw, &lf); err != nil {
		return emptyLockFile()
	}
	if lf.Ensures == nil {
		lf.Ensures = make(map[string]EnsureEntry)
	}
	return &lf
}

// save rewrites the lock file in full (spec §5: "rewritten in full on every
// state transition, never patched in place").
func (lf *LockFile) save(ctx context.Context, s Strategy, lockPath string) error {
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return err
	}
	return s.UploadContent(ctx, lockPath, data)
}

// hasOnce reports whether a `once` action identifier is already recorded.
func (lf *LockFile) hasOnce(key string) bool {
	for _, k := range lf.OnceActions {
		if k == key {
			return true
		}
	}
	return false
}

func (lf *LockFile) addOnce(key string) {
	if !lf.hasOnce(key) {
		lf.OnceActions = append(lf.OnceActions, key)
	}
}
