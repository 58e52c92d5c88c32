package main

import (
	"time"

	"github.com/eorua8801/restructured-cursor/internal/pipeline"
	"github.com/eorua8801/restructured-cursor/internal/settings"
)

// DaemonState is the top-level, daemon-owned state container.
//
// The pipeline is reducer-owned: only the daemon goroutine touches it, via
// Reduce. Everything other goroutines need goes out as a StateSnapshot or a
// StateBroadcast.
type DaemonState struct {
	Pipeline *pipeline.Pipeline

	// SessionID tags calibration records written during this run.
	SessionID string
	StartedAt time.Time

	Paused bool

	// CursorKnown is set once the pipeline has emitted a cursor position.
	CursorKnown bool

	// Sample clock bridge: the tracker timestamp of the latest sample and the
	// wall time it arrived. Host timers that must hand the pipeline a
	// timestamp extrapolate from here.
	LastSampleMs int64
	LastSampleAt time.Time

	Calibration CalibrationState
	Source      SourceState
	Stats       DaemonStats

	SettingsOrigin  string
	SettingsSavedAt time.Time
}

// CalibrationState tracks host timers around the pipeline's calibrator.
type CalibrationState struct {
	// AutoAt is when the one-shot auto calibration fires. Zero disables it.
	AutoAt   time.Time
	AutoDone bool

	// Deadline is when a running calibration times out.
	Deadline time.Time

	LastAccepted bool
	LastOffsetX  float64
	LastOffsetY  float64
	LastAt       time.Time
}

// SourceState is the cached view of the tracker link.
type SourceState struct {
	Connected bool
	Remote    string
	At        time.Time
}

// DaemonStats are monotonically increasing counters.
type DaemonStats struct {
	Samples          uint64
	InvalidSamples   uint64
	DroppedPaused    uint64
	Clicks           uint64
	Scrolls          uint64
	ScrollSuppressed uint64
	ActuatorErrors   uint64
}

// NewDaemonState builds the initial state. When auto calibration is enabled
// it is scheduled autoDelay after now.
func NewDaemonState(s settings.UserSettings, screen pipeline.Screen, sessionID string, now time.Time, autoDelay time.Duration) *DaemonState {
	st := &DaemonState{
		Pipeline:       pipeline.New(s, screen),
		SessionID:      sessionID,
		StartedAt:      now,
		SettingsOrigin: "default",
	}
	if s.AutoOnePointCalibration {
		st.Calibration.AutoAt = now.Add(autoDelay)
	}
	return st
}

// sampleClock returns the pipeline timestamp corresponding to wall time now.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) sampleClock(now time.Time) int64 {
	if s.LastSampleAt.IsZero() {
		return now.UnixMilli()
	}
	return s.LastSampleMs + now.Sub(s.LastSampleAt).Milliseconds()
}

// StateSnapshot is a point-in-time copy of the state safe to hand to other
// goroutines.
type StateSnapshot struct {
	SessionID string
	StartedAt time.Time

	Paused      bool
	Calibrating bool

	CursorX     float64
	CursorY     float64
	CursorKnown bool

	Edge     string
	Glyph    string
	Progress float64

	ScreenWidth  float64
	ScreenHeight float64

	Preset         string
	Settings       map[string]string
	SettingsOrigin string

	SourceConnected bool
	SourceRemote    string

	Stats DaemonStats
}

// Snapshot copies the state.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) Snapshot() StateSnapshot {
	p := s.Pipeline
	x, y := p.Cursor()
	us := p.Settings()
	screen := p.Screen()
	return StateSnapshot{
		SessionID:       s.SessionID,
		StartedAt:       s.StartedAt,
		Paused:          s.Paused,
		Calibrating:     p.Calibrating(),
		CursorX:         x,
		CursorY:         y,
		CursorKnown:     s.CursorKnown,
		Edge:            p.Edge().String(),
		Glyph:           p.Glyph(),
		Progress:        p.Progress(),
		ScreenWidth:     screen.Width,
		ScreenHeight:    screen.Height,
		Preset:          string(us.Preset),
		Settings:        us.Entries(),
		SettingsOrigin:  s.SettingsOrigin,
		SourceConnected: s.Source.Connected,
		SourceRemote:    s.Source.Remote,
		Stats:           s.Stats,
	}
}
