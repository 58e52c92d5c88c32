// Package dwell detects dwell clicks: gaze held inside a small square area of
// interest (AOI) for a configured duration.
package dwell

import "github.com/eorua8801/restructured-cursor/internal/settings"

// noCenter marks the absence of a fixation window.
const noCenter = -1

// Detector is a fixation state machine. Time is supplied by the caller in
// milliseconds; the detector never reads the clock.
//
// Not safe for concurrent use.
type Detector struct {
	enabled    bool
	durationMs int64
	radius     float64

	centerX  float64
	centerY  float64
	startMs  int64
	fixating bool
}

// New builds a detector from a settings snapshot. Settings are read once;
// build a new detector when they change.
func New(s settings.UserSettings) *Detector {
	d := &Detector{
		enabled:    s.ClickEnabled,
		durationMs: int64(s.FixationDurationMS),
		radius:     s.AOIRadius,
	}
	d.Reset()
	return d
}

// Update feeds one cursor position at nowMs and reports whether a click
// fired. It always returns false while clicking is disabled.
func (d *Detector) Update(x, y float64, nowMs int64) bool {
	if !d.enabled {
		return false
	}

	if !d.insideAOI(x, y) {
		d.centerX = x
		d.centerY = y
		d.startMs = nowMs
		d.fixating = true
		return false
	}

	if nowMs-d.startMs >= d.durationMs {
		d.Reset()
		return true
	}
	return false
}

func (d *Detector) hasCenter() bool {
	return d.centerX >= 0 && d.centerY >= 0
}

// insideAOI uses a square window: both axes must be strictly within radius.
func (d *Detector) insideAOI(x, y float64) bool {
	if !d.hasCenter() {
		return false
	}
	dx := x - d.centerX
	if dx < 0 {
		dx = -dx
	}
	dy := y - d.centerY
	if dy < 0 {
		dy = -dy
	}
	return dx < d.radius && dy < d.radius
}

// Progress returns the dwell completion in [0, 1] at nowMs.
func (d *Detector) Progress(nowMs int64) float64 {
	if !d.fixating || d.durationMs <= 0 {
		return 0
	}
	elapsed := nowMs - d.startMs
	if elapsed <= 0 {
		return 0
	}
	p := float64(elapsed) / float64(d.durationMs)
	if p > 1 {
		return 1
	}
	return p
}

// Center returns the current fixation center, if any.
func (d *Detector) Center() (x, y float64, ok bool) {
	if !d.hasCenter() {
		return 0, 0, false
	}
	return d.centerX, d.centerY, true
}

// Fixating reports whether a fixation window is open.
func (d *Detector) Fixating() bool { return d.fixating }

// Reset clears the fixation state.
func (d *Detector) Reset() {
	d.centerX = noCenter
	d.centerY = noCenter
	d.startMs = 0
	d.fixating = false
}
