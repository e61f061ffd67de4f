package phaseconfig

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// Watch reloads dir whenever a YAML file in it is written, created,
// renamed or removed, and calls onChange with the new set. A reload
// that fails to parse is logged and skipped; the previous set stays.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, dir string, onChange func(Set)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating phase config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	slog.Info("watching phase configs", "dir", dir)

	var (
		mu       sync.Mutex
		debounce *time.Timer
	)
	reload := func() { reloadDir(ctx, dir, onChange) }
	defer func() {
		mu.Lock()
		if debounce != nil {
			debounce.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isYAML(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, reload)
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("phase config watcher error", "error", err)
		}
	}
}

// reloadDir loads dir and hands the set to onChange. It does nothing
// once ctx is cancelled, so a debounced reload that fires during
// shutdown never reaches onChange.
func reloadDir(ctx context.Context, dir string, onChange func(Set)) {
	if ctx.Err() != nil {
		return
	}
	set, err := LoadDir(dir)
	if err != nil {
		slog.Error("phase config reload failed", "dir", dir, "error", err)
		return
	}
	if ctx.Err() != nil {
		return
	}
	slog.Info("phase configs reloaded", "dir", dir, "phases", len(set))
	onChange(set)
}
