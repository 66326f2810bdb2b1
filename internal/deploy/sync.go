package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// matchExcluded reports whether relPath (slash-separated, relative to the
// sync root) matches any pattern under the three-rule exclusion grammar
// spec §4.4 and §9 fix in place: a trailing-slash pattern matches any
// directory of that name at any depth; a `*.ext` pattern matches by
// suffix; any other pattern matches by exact relative-path equality. A
// general glob engine is deliberately not used here.
func matchExcluded(patterns []string, relPath string) bool {
	segments := strings.Split(relPath, "/")
	for _, pat := range patterns {
		switch {
		case strings.HasSuffix(pat, "/"):
			dirName := strings.TrimSuffix(pat, "/")
			for _, seg := range segments {
				if seg == dirName {
					return true
				}
			}
		case strings.HasPrefix(pat, "*."):
			if strings.HasSuffix(relPath, pat[1:]) {
				return true
			}
		default:
			if relPath == pat {
				return true
			}
		}
	}
	return false
}

// genericSyncDirectory walks the local filesystem at source and uploads
// every non-excluded regular file to destination through strategy's
// UploadContent primitive. Both the ssh and local strategies share this
// walk; only the write primitive underneath differs (spec §4.4's
// "write-content primitive... all writes funnel through").
func genericSyncDirectory(ctx context.Context, s Strategy, source, destination string, exclude []string) error {
	return filepath.WalkDir(source, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if matchExcluded(exclude, rel) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("sync: read %s: %w", path, err)
		}
		destPath := filepath.ToSlash(filepath.Join(destination, rel))
		if err := s.UploadContent(ctx, destPath, data); err != nil {
			return err
		}
		return nil
	})
}
