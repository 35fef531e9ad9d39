package indexer

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces editor save bursts into one reindex per file.
const debounceWindow = 500 * time.Millisecond

// Watch re-indexes files under root as they change, until ctx ends.
// Create/write events reindex the file; the initial Build must have run
// already. Deletions are left for the next full build — the serving path
// tolerates orphans in the sparse/vector indices.
func (ix *Indexer) Watch(ctx context.Context, root string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// fsnotify is non-recursive; register every directory in the tree.
	if err := addDirsRecursive(watcher, root); err != nil {
		return err
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(debounceWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			base := filepath.Base(event.Name)
			if strings.HasPrefix(base, ".") {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				// A new directory needs watching; addDirsRecursive is cheap
				// for files (stat + skip).
				_ = addDirsRecursive(watcher, event.Name)
			}
			if _, ok := indexableExtensions[strings.ToLower(filepath.Ext(event.Name))]; !ok {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))

		case <-ticker.C:
			now := time.Now()
			for path, at := range pending {
				if now.Sub(at) < debounceWindow {
					continue
				}
				delete(pending, path)
				if n, err := ix.IndexFile(ctx, root, path); err != nil {
					slog.Warn("reindex_failed",
						slog.String("path", path),
						slog.String("error", err.Error()))
				} else if n > 0 {
					slog.Info("reindexed",
						slog.String("path", path),
						slog.Int("chunks", n))
				}
			}
		}
	}
}

// addDirsRecursive registers path and every directory below it.
func addDirsRecursive(watcher *fsnotify.Watcher, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && p != path {
			return filepath.SkipDir
		}
		return watcher.Add(p)
	})
}
