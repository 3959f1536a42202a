package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watch blocks on file events until ctx is cancelled. Events are
// debounced with a single timer so an editor save (write, chmod,
// rename) triggers one recompile, not three.
func (d *Daemon) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	policyDir := filepath.Dir(d.opts.PolicyPath)
	if err := watcher.Add(policyDir); err != nil {
		return fmt.Errorf("watch %s: %w", policyDir, err)
	}
	if d.opts.DefsDir != "" && filepath.Clean(d.opts.DefsDir) != filepath.Clean(policyDir) {
		if err := watcher.Add(d.opts.DefsDir); err != nil {
			return fmt.Errorf("watch %s: %w", d.opts.DefsDir, err)
		}
	}

	// Initialized as stopped; the first relevant event starts it.
	debounceTimer := time.NewTimer(d.opts.Debounce)
	debounceTimer.Stop()
	defer debounceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-debounceTimer.C:
			d.compile()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !d.relevant(event) {
				continue
			}
			slog.Debug("file event", "op", event.Op.String(), "path", event.Name)

			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(d.opts.Debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "err", err)
		}
	}
}

// relevant reports whether a file event should trigger a recompile:
// a change to the policy file itself, or to a definitions file.
func (d *Daemon) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}
	name := filepath.Clean(event.Name)
	if name == filepath.Clean(d.opts.PolicyPath) {
		return true
	}
	if d.opts.DefsDir != "" && filepath.Dir(name) == filepath.Clean(d.opts.DefsDir) {
		return isDefFile(name)
	}
	return false
}

// isDefFile returns true for definitions files, skipping editor
// temporaries and partial writes.
func isDefFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
