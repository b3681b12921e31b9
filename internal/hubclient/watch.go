package hubclient

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/shrijayan/itwillsync/internal/config"
)

// WaitForHubStateRemoved blocks until hub.json disappears from the config
// directory (the hub's clean-shutdown signal) or ctx is cancelled.
// Used by `hub stop` to confirm the daemon actually exited rather than
// just trusting the termination signal was delivered.
//
// Grounded on fsnotify's directory-watch idiom (the pack pulls in
// fsnotify for exactly this kind of "wait for a file to change" use, and
// no pack repo's own watcher loop fit a single-file removal wait closely
// enough to adapt directly).
func WaitForHubStateRemoved(ctx context.Context) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	if _, err := os.Stat(filepath.Join(dir, "hub.json")); os.IsNotExist(err) {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Join(dir, "hub.json")
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name == target && (ev.Op&fsnotify.Remove != 0 || ev.Op&fsnotify.Rename != 0) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
