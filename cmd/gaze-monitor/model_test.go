package main

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func frame(t *testing.T, typ string, data any) frameMsg {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	return frameMsg{Type: typ, Ts: time.Unix(1000, 0), Data: raw}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestModel_StateInit(t *testing.T) {
	m := NewModel("ws://test")
	m = update(t, m, connMsg{Connected: true})
	m = update(t, m, frame(t, "state_init", map[string]any{
		"session_id":       "0123456789",
		"paused":           true,
		"cursor_x":         100,
		"cursor_y":         200,
		"cursor_known":     true,
		"preset":           "BALANCED",
		"settings_origin":  "store",
		"source_connected": true,
		"stats":            map[string]any{"clicks": 7},
	}))

	if !m.paused || !m.cursorKnown || m.cursorX != 100 || m.clicks != 7 || m.preset != "BALANCED" {
		t.Fatalf("snapshot not applied: %+v", m)
	}
	if len(m.recent) != 1 || !strings.Contains(m.recent[0], "01234567") {
		t.Fatalf("expected connect line, got %v", m.recent)
	}

	view := m.View()
	for _, want := range []string{"PAUSED", "BALANCED", "7 clicks"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_Events(t *testing.T) {
	m := NewModel("ws://test")
	m = update(t, m, connMsg{Connected: true})

	m = update(t, m, frame(t, "cursor_moved", map[string]any{"x": 5, "y": 6}))
	m = update(t, m, frame(t, "dwell_progress", map[string]any{"progress": 0.5}))
	m = update(t, m, frame(t, "click", map[string]any{"x": 5, "y": 6}))
	m = update(t, m, frame(t, "edge_state", map[string]any{"edge": "top", "glyph": "③"}))
	m = update(t, m, frame(t, "scroll", map[string]any{"direction": "down", "count": 2}))
	m = update(t, m, frame(t, "scroll", map[string]any{"direction": "down", "suppressed": true}))
	m = update(t, m, frame(t, "calibration", map[string]any{"phase": "started", "target_x": 960, "target_y": 540}))
	if !m.calibrating {
		t.Fatalf("expected calibrating")
	}
	m = update(t, m, frame(t, "calibration", map[string]any{"phase": "finished", "reason": "timeout"}))

	if m.cursorX != 5 || m.dwell != 0.5 || m.edge != "top" || m.glyph != "③" {
		t.Fatalf("unexpected live state: %+v", m)
	}
	if m.clicks != 1 || m.scrolls != 1 || m.calibrating {
		t.Fatalf("unexpected counters: clicks=%d scrolls=%d calibrating=%v", m.clicks, m.scrolls, m.calibrating)
	}

	// Newest first.
	if !strings.Contains(m.recent[0], "calibration rejected: timeout") {
		t.Fatalf("unexpected newest event %q", m.recent[0])
	}
	if !strings.Contains(m.recent[1], "calibration started") || !strings.Contains(m.recent[2], "suppressed") {
		t.Fatalf("unexpected event order %v", m.recent)
	}
}

func TestModel_RecentIsBounded(t *testing.T) {
	m := NewModel("ws://test")
	for i := 0; i < maxRecent+5; i++ {
		m = update(t, m, frame(t, "click", map[string]any{"x": i, "y": i}))
	}
	if len(m.recent) != maxRecent {
		t.Fatalf("expected %d recent events, got %d", maxRecent, len(m.recent))
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	if len(m.recent) != 0 {
		t.Fatalf("expected c to clear events")
	}
}

func TestModel_Disconnected(t *testing.T) {
	m := NewModel("ws://test")
	m = update(t, m, connMsg{Connected: false, Err: errors.New("connection refused")})
	if view := m.View(); !strings.Contains(view, "connection refused") {
		t.Fatalf("expected connection error in view:\n%s", view)
	}
}

func TestModel_Quit(t *testing.T) {
	m := NewModel("ws://test")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestDecodeFrame(t *testing.T) {
	f, err := decodeFrame([]byte(`{"type":"click","ts":"2026-01-02T03:04:05Z","data":{"x":1,"y":2}}`))
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if f.Type != "click" || f.Ts.Year() != 2026 || string(f.Data) != `{"x":1,"y":2}` {
		t.Fatalf("unexpected frame %+v", f)
	}
	if _, err := decodeFrame([]byte("nope")); err == nil {
		t.Fatalf("expected error")
	}
}
