package deploy

import "context"

// Strategy is the common contract both connection kinds implement (spec
// §4.4, §9 Design Notes: "small trait/interface with two concrete
// implementations"). Lock-file writes and synced files funnel through
// UploadContent, so both transports write the lock file the same way.
type Strategy interface {
	// Run executes command and returns its combined output. A bare
	// `cd <path>` is interpreted at the strategy level, updating its
	// tracked working directory instead of invoking a shell.
	Run(ctx context.Context, command string) (string, error)

	// RunScript writes content to a temporary location (after interpolating
	// ${…} against vars), makes it executable, runs it, and removes it on
	// every exit path.
	RunScript(ctx context.Context, name, content string, vars map[string]string) (string, error)

	// UploadContent writes data to path, creating parent directories as
	// needed. The lock file and SyncDirectory write through it; the local
	// strategy's RunScript writes its temp script directly.
	UploadContent(ctx context.Context, path string, data []byte) error

	// ReadJSON reads and parses path as JSON, reporting ok=false on a
	// missing file or a parse failure.
	ReadJSON(ctx context.Context, path string) ([]byte, bool)

	// SyncDirectory recursively copies source (a local path) to destination,
	// honoring exclude patterns.
	SyncDirectory(ctx context.Context, source, destination string, exclude []string) error

	// Close releases any held resources (an ssh session, for the ssh
	// strategy; a no-op for local).
	Close() error
}

// NewStrategy selects and constructs the strategy named by t.Type (or, in
// its absence, by the presence of t.Host), per spec §4.4.
func NewStrategy(t *Target) (Strategy, error) {
	if t.IsLocal() {
		return NewLocalStrategy(), nil
	}
	return NewSSHStrategy(t)
}
