package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/kithinjibrian/pod/internal/logging"
	"github.com/kithinjibrian/pod/internal/macro"
)

// devCmd starts the watched build. The bundler itself, hot-reload, and the
// HTML pre-processor are out of scope (spec §1); what belongs to the core
// is the per-file directive classification that picks one of the three
// downstream pipelines ("use public" / "use interactive" / none), so that
// is all this stub actually performs on every changed file.
var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Start the watched build",
	RunE:  runDev,
}

func runDev(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	log := logging.Get(logging.CategoryDev)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("dev: %w", err)
	}
	defer watcher.Close()

	if err := addTreeToWatcher(watcher, workspace); err != nil {
		return fmt.Errorf("dev: %w", err)
	}

	fs := macro.NewFileSet(workspace)
	fmt.Println("dev: watching", workspace)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !isWatchedSource(event.Name) {
				continue
			}
			classifyFile(fs, event.Name, log)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnw("watcher error", "error", werr)
		}
	}
}

func isWatchedSource(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".tsx", ".js", ".jsx":
		return true
	default:
		return false
	}
}

// classifyFile loads path, determines its directive (spec §3 File
// Directive, §6), and logs the classification decision the outer build
// would use to pick a transformation pipeline.
func classifyFile(fs *macro.FileSet, path string, log interface {
	Infow(string, ...any)
	Warnw(string, ...any)
}) {
	pf, err := fs.Load(path)
	if err != nil {
		log.Warnw("failed to parse changed file", "file", path, "error", err)
		return
	}
	directive := macro.Directive(pf.Program, pf.Source)
	if directive == "" {
		directive = "(none)"
	}
	log.Infow("directive classification", "file", path, "directive", directive)
	fmt.Printf("dev: %s -> %s\n", path, directive)
}

func addTreeToWatcher(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			base := d.Name()
			if base == "node_modules" || base == ".git" || base == ".pod" {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
}
