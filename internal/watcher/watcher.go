// Package watcher turns file system changes under the workspace root into
// debounced reload triggers for project definition files.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/raido/internal/document"
)

// DefaultDebounce is the quiet period after the last write to a file before
// it is reported.
const DefaultDebounce = 200 * time.Millisecond

// TriggerFunc receives the workspace-relative path of a changed project
// file. It is called from the watch loop and should not block.
type TriggerFunc func(path string)

// Watch starts an fsnotify watcher on root and reports changed project
// files until ctx is cancelled.
//
// Directories created at runtime are added to the watch list and the
// project files already inside them are reported. A run of events for the
// same file is collapsed into one trigger once the file has been quiet for
// debounce.
func Watch(ctx context.Context, root string, debounce time.Duration, logger *slog.Logger, trigger TriggerFunc) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root), slog.Duration("debounce", debounce))

	pending := make(map[string]time.Time)
	timer := time.NewTimer(debounce)
	timer.Stop()

	schedule := func(rel string) {
		pending[rel] = time.Now().Add(debounce)
		timer.Reset(debounce)
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("watcher: stopped")
			return nil

		case now := <-timer.C:
			next := flushDue(pending, now, logger, trigger)
			if !next.IsZero() {
				timer.Reset(next.Sub(now))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if hidden(info.Name()) {
						continue
					}
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
						continue
					}
					logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					for _, rel := range projectFilesIn(root, ev.Name) {
						schedule(rel)
					}
					continue
				}
			}

			if !document.IsProjectFile(ev.Name) {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				schedule(rel)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// A replacement file shows up as its own Create.
				delete(pending, rel)
				logger.Debug("watcher: removed", slog.String("path", rel))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// flushDue triggers every pending path whose deadline has passed and returns
// the earliest remaining deadline, or the zero time when nothing is left.
func flushDue(pending map[string]time.Time, now time.Time, logger *slog.Logger, trigger TriggerFunc) time.Time {
	var due []string
	var next time.Time
	for rel, at := range pending {
		if !at.After(now) {
			due = append(due, rel)
			continue
		}
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	sort.Strings(due)
	for _, rel := range due {
		delete(pending, rel)
		logger.Debug("watcher: changed", slog.String("path", rel))
		trigger(rel)
	}
	return next
}

func projectFilesIn(root, dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !document.IsProjectFile(path) {
			return nil
		}
		if rel, relErr := filepath.Rel(root, path); relErr == nil {
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	return out
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
