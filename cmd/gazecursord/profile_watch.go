package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/eorua8801/restructured-cursor/internal/settings"
)

// watchProfile re-imports the TOML profile whenever it changes on disk and
// emits SettingsLoaded{Origin: "profile"}.
//
// The parent directory is watched rather than the file itself: editors that
// save via rename would otherwise detach the watch. Bursts of events within
// debounce collapse into one reload. A profile that fails to parse is logged
// and the previous settings stay in effect.
func watchProfile(ctx context.Context, path string, debounce time.Duration, events chan<- Event, logger *slog.Logger) error {
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create profile watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info("watching profile", "path", path)

	var timer *time.Timer
	var timerCh <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			us, name, err := settings.LoadProfile(path)
			if err != nil {
				logger.Warn("profile reload failed; keeping current settings", "path", path, "error", err)
				continue
			}
			logger.Info("profile reloaded", "path", path, "name", name, "preset", us.Preset)
			select {
			case events <- SettingsLoaded{Settings: us, Origin: "profile"}:
			case <-ctx.Done():
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("profile watcher error", "error", err)
		}
	}
}
