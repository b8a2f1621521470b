package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses bursts of editor writes into one reload.
const watchDebounce = 500 * time.Millisecond

// Watch reloads the configuration file whenever it changes on disk.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file via rename are still detected. Each
// successful reload is passed to onChange; a file that fails to load or
// validate is reported to onError (if non-nil) and otherwise ignored, so
// the caller keeps running on the last good configuration.
//
// Watch blocks until ctx is cancelled.
//
// Parameters:
//   - ctx: Cancels the watch
//   - path: Configuration file path, as passed to Load
//   - onChange: Receives each newly loaded configuration
//   - onError: Receives reload failures (optional)
//
// Returns:
//   - error: If the watcher cannot be created; nil after ctx is cancelled
func Watch(ctx context.Context, path string, onChange func(*Config), onError func(error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching config directory: %w", err)
	}

	name := filepath.Base(abs)
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || filepath.Base(ev.Name) != name {
				continue
			}
			debounce = time.After(watchDebounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if onError != nil {
				onError(fmt.Errorf("config watcher: %w", err))
			}

		case <-debounce:
			debounce = nil
			cfg, err := Load(path)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			onChange(cfg)
		}
	}
}
