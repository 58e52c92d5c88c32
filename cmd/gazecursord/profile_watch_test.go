package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eorua8801/restructured-cursor/internal/settings"
)

func TestWatchProfile_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.toml")
	if err := settings.SaveProfile(path, "desk", settings.Default()); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	done := make(chan error, 1)
	go func() { done <- watchProfile(ctx, path, 100*time.Millisecond, events, slog.Default()) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	next := settings.New(settings.WithPreset(settings.PresetHighResponsive), settings.WithAOIRadius(55))
	if err := settings.SaveProfile(path, "desk", next); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	select {
	case ev := <-events:
		loaded, ok := ev.(SettingsLoaded)
		if !ok {
			t.Fatalf("expected SettingsLoaded, got %T", ev)
		}
		if loaded.Origin != "profile" || loaded.Settings.Preset != settings.PresetHighResponsive || loaded.Settings.AOIRadius != 55 {
			t.Fatalf("unexpected reload: %+v", loaded)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for profile reload")
	}

	// A broken profile is logged and skipped.
	if err := os.WriteFile(path, []byte("fixation_duration = ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case ev := <-events:
		t.Fatalf("broken profile must not be loaded, got %#v", ev)
	case <-time.After(400 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watchProfile: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for watcher to stop")
	}
}

func TestWatchProfile_MissingDirectory(t *testing.T) {
	err := watchProfile(context.Background(), "/nonexistent/dir/profile.toml", time.Millisecond, make(chan Event), slog.Default())
	if err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
