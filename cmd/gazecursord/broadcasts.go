package main

import (
	"time"

	"github.com/eorua8801/restructured-cursor/internal/edgescroll"
)

// StateBroadcast is a reducer-emitted, externally visible state change. The
// daemon forwards these to the state websocket broadcaster; nothing else
// consumes them.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastCursorMoved is coalesced by the broadcaster (latest-wins).
type BroadcastCursorMoved struct {
	X, Y float64
	At   time.Time
}

func (BroadcastCursorMoved) broadcastMarker() {}

type BroadcastDwellProgress struct {
	Progress float64
	At       time.Time
}

func (BroadcastDwellProgress) broadcastMarker() {}

type BroadcastEdgeState struct {
	Edge  edgescroll.Edge
	Glyph string
	At    time.Time
}

func (BroadcastEdgeState) broadcastMarker() {}

type BroadcastClick struct {
	X, Y float64
	At   time.Time
}

func (BroadcastClick) broadcastMarker() {}

// BroadcastScroll reports a scroll trigger. Suppressed triggers were swallowed
// by the cooldown and produced no gesture.
type BroadcastScroll struct {
	Direction  edgescroll.ScrollAction
	Count      int
	Suppressed bool
	At         time.Time
}

func (BroadcastScroll) broadcastMarker() {}

type BroadcastFeedbackPulse struct {
	Duration time.Duration
	At       time.Time
}

func (BroadcastFeedbackPulse) broadcastMarker() {}

// BroadcastCalibration reports calibration progress. Phase is "started" or
// "finished".
type BroadcastCalibration struct {
	Phase    string
	TargetX  float64
	TargetY  float64
	Accepted bool
	OffsetX  float64
	OffsetY  float64
	Samples  int
	Reason   string
	At       time.Time
}

func (BroadcastCalibration) broadcastMarker() {}

// BroadcastSettingsChanged carries the full flattened settings map.
type BroadcastSettingsChanged struct {
	Preset   string
	Settings map[string]string
	Origin   string
	At       time.Time
}

func (BroadcastSettingsChanged) broadcastMarker() {}

type BroadcastSettingsRejected struct {
	Key   string
	Value string
	Error string
	At    time.Time
}

func (BroadcastSettingsRejected) broadcastMarker() {}

type BroadcastTrackingPaused struct {
	Paused bool
	At     time.Time
}

func (BroadcastTrackingPaused) broadcastMarker() {}

type BroadcastSourceStatus struct {
	Connected bool
	Remote    string
	Error     string
	At        time.Time
}

func (BroadcastSourceStatus) broadcastMarker() {}
