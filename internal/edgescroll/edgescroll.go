// Package edgescroll detects sustained gaze at the top or bottom margin of
// the screen and turns it into a single scroll command, with staged feedback
// pulses along the way.
//
// Protocol per edge:
//
//	armed    -> counting  each in-zone sample increments a frame counter
//	counting -> timing    at 5 consecutive frames the dwell timer starts (50ms pulse)
//	timing                >1s and >2s each fire one 100ms pulse
//	timing   -> triggered at the trigger duration a 300ms pulse fires with the scroll
//
// Top and bottom are mutually exclusive: entering one resets the other.
package edgescroll

import (
	"time"

	"github.com/eorua8801/restructured-cursor/internal/settings"
)

// Edge identifies the active screen margin.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeTop
	EdgeBottom
)

func (e Edge) String() string {
	switch e {
	case EdgeTop:
		return "top"
	case EdgeBottom:
		return "bottom"
	default:
		return "none"
	}
}

// ScrollAction is the outcome of one Process call.
type ScrollAction int

const (
	ScrollNone ScrollAction = iota
	ScrollUp
	ScrollDown
)

func (a ScrollAction) String() string {
	switch a {
	case ScrollUp:
		return "up"
	case ScrollDown:
		return "down"
	default:
		return "none"
	}
}

// Thresholds of the dwell protocol.
const (
	ThresholdFrames = 5

	firstStageMs  = 1000
	secondStageMs = 2000
)

// Feedback pulse durations.
const (
	PulseArmed     = 50 * time.Millisecond
	PulseStage     = 100 * time.Millisecond
	PulseTriggered = 300 * time.Millisecond
)

// Status glyphs returned by StateIndicator.
const (
	GlyphIdle      = "●"
	GlyphTop       = "▲"
	GlyphBottom    = "▼"
	GlyphStage1    = "①"
	GlyphStage2    = "②"
	GlyphTriggered = "③"
)

// edgeState is the per-edge counter/timer/latch set.
type edgeState struct {
	frames    int
	startMs   int64
	started   bool
	stage1    bool
	stage2    bool
	triggered bool
}

// Detector is single-owner; callers serialize access.
type Detector struct {
	enabled     bool
	marginRatio float64
	triggerMs   int64

	top     edgeState
	bottom  edgeState
	current Edge
}

// New builds a detector from a settings snapshot.
func New(s settings.UserSettings) *Detector {
	return &Detector{
		enabled:     s.ScrollEnabled && s.EdgeScrollEnabled,
		marginRatio: s.EdgeMarginRatio,
		triggerMs:   int64(s.EdgeTriggerMS),
	}
}

// Update classifies y against the margins of a screen of the given height
// and applies zone-transition resets. It never advances timers.
func (d *Detector) Update(y, screenHeight float64) Edge {
	if !d.enabled {
		d.ResetAll()
		return EdgeNone
	}

	inTop := y < screenHeight*d.marginRatio
	inBottom := y > screenHeight*(1-d.marginRatio)

	switch {
	case inTop && d.current != EdgeTop:
		d.bottom = edgeState{}
		d.current = EdgeTop
	case inBottom && d.current != EdgeBottom:
		d.top = edgeState{}
		d.current = EdgeBottom
	case !inTop && !inBottom:
		d.ResetAll()
		return EdgeNone
	}
	return d.current
}

// ProcessTop advances the top edge by one sample at nowMs. It returns the
// scroll action, if any, and the feedback pulse to emit (zero for none).
// Gazing at the top edge scrolls content down.
func (d *Detector) ProcessTop(nowMs int64) (ScrollAction, time.Duration) {
	return d.top.advance(nowMs, d.triggerMs, ScrollDown)
}

// ProcessBottom is the bottom-edge counterpart of ProcessTop and yields
// ScrollUp.
func (d *Detector) ProcessBottom(nowMs int64) (ScrollAction, time.Duration) {
	return d.bottom.advance(nowMs, d.triggerMs, ScrollUp)
}

func (e *edgeState) advance(nowMs, triggerMs int64, onTrigger ScrollAction) (ScrollAction, time.Duration) {
	e.frames++
	if e.frames < ThresholdFrames {
		return ScrollNone, 0
	}

	if !e.started {
		e.started = true
		e.startMs = nowMs
		e.stage1 = false
		e.stage2 = false
		e.triggered = false
		return ScrollNone, PulseArmed
	}

	elapsed := nowMs - e.startMs

	if elapsed >= firstStageMs && !e.stage1 {
		e.stage1 = true
		return ScrollNone, PulseStage
	} else if elapsed >= secondStageMs && !e.stage2 {
		e.stage2 = true
		return ScrollNone, PulseStage
	}

	if elapsed >= triggerMs && !e.triggered {
		e.triggered = true
		return onTrigger, PulseTriggered
	}
	return ScrollNone, 0
}

// StateIndicator returns the status glyph for the active edge at nowMs.
func (d *Detector) StateIndicator(nowMs int64) string {
	switch d.current {
	case EdgeTop:
		return d.top.glyph(nowMs, GlyphTop)
	case EdgeBottom:
		return d.bottom.glyph(nowMs, GlyphBottom)
	default:
		return GlyphIdle
	}
}

func (e *edgeState) glyph(nowMs int64, armed string) string {
	if !e.started {
		return armed
	}
	if e.triggered {
		return GlyphTriggered
	}
	elapsed := nowMs - e.startMs
	switch {
	case elapsed >= secondStageMs:
		return GlyphStage2
	case elapsed >= firstStageMs:
		return GlyphStage1
	default:
		return armed
	}
}

// Frames returns the consecutive in-zone frame count of an edge.
func (d *Detector) Frames(e Edge) int {
	switch e {
	case EdgeTop:
		return d.top.frames
	case EdgeBottom:
		return d.bottom.frames
	default:
		return 0
	}
}

// TimerStarted reports whether the dwell timer of an edge is running.
func (d *Detector) TimerStarted(e Edge) bool {
	switch e {
	case EdgeTop:
		return d.top.started
	case EdgeBottom:
		return d.bottom.started
	default:
		return false
	}
}

// ResetAll clears both edges.
func (d *Detector) ResetAll() {
	d.top = edgeState{}
	d.bottom = edgeState{}
	d.current = EdgeNone
}

// IsActive reports whether an edge is currently engaged.
func (d *Detector) IsActive() bool {
	return d.current != EdgeNone
}

// Current returns the active edge.
func (d *Detector) Current() Edge { return d.current }
