// Package pipeline turns raw gaze samples into pointer events.
//
// Per valid sample: smoothing filter -> cursor offset -> clamp to screen ->
// edge scroll detector -> dwell click detector (only while no edge is
// engaged). ProcessSample is synchronous and has no hidden global state; the
// caller owns the Pipeline and serializes access to it.
package pipeline

import (
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/eorua8801/restructured-cursor/internal/dwell"
	"github.com/eorua8801/restructured-cursor/internal/edgescroll"
	"github.com/eorua8801/restructured-cursor/internal/filter"
	"github.com/eorua8801/restructured-cursor/internal/settings"
)

// Host timing policy.
const (
	// ResetAfterScroll is how long after a scroll the detectors are reset.
	ResetAfterScroll = 500 * time.Millisecond

	// ScrollCooldown is the minimum spacing between emitted scrolls.
	ScrollCooldown = 1500 * time.Millisecond

	// ClickPulse is the feedback pulse that accompanies a dwell click.
	ClickPulse = 100 * time.Millisecond

	// TimestampRewind is how far a sample may fall behind the previous one
	// before the source is treated as restarted and the filter is cleared.
	TimestampRewind = 1000 * time.Millisecond
)

// GazeSample is one reading from the tracker.
type GazeSample struct {
	X           float64
	Y           float64
	TimestampMs int64
	Valid       bool
}

// Screen is the target surface in pixels.
type Screen struct {
	Width  float64
	Height float64
}

// Center returns the middle of the screen.
func (s Screen) Center() (float64, float64) {
	return s.Width / 2, s.Height / 2
}

// Pipeline owns one filter, one dwell detector and one edge detector built
// from a single settings snapshot.
type Pipeline struct {
	settings settings.UserSettings
	screen   Screen

	filter *filter.Filter2D
	dwell  *dwell.Detector
	edge   *edgescroll.Detector

	calib *offsetCalibrator

	cooldown     *rate.Limiter
	resetPending bool
	resetAtMs    int64

	lastGlyph    string
	lastProgress float64
	lastX, lastY float64

	lastTsMs int64
	seenTs   bool
}

// New builds a pipeline for the given settings and screen.
func New(s settings.UserSettings, screen Screen) *Pipeline {
	p := &Pipeline{
		screen:   screen,
		cooldown: rate.NewLimiter(rate.Every(ScrollCooldown), 1),
	}
	p.Reconfigure(s)
	return p
}

// Reconfigure swaps in a new settings snapshot. Filter and detectors are
// rebuilt from scratch; an in-progress calibration continues.
func (p *Pipeline) Reconfigure(s settings.UserSettings) {
	p.settings = s
	p.filter = filter.New2D(s.EffectiveFilter())
	p.dwell = dwell.New(s)
	p.edge = edgescroll.New(s)
	p.resetPending = false
	p.lastGlyph = edgescroll.GlyphIdle
	p.lastProgress = 0
}

// SetScreen changes the target surface size.
func (p *Pipeline) SetScreen(screen Screen) {
	p.screen = screen
}

// Settings returns the snapshot currently in effect.
func (p *Pipeline) Settings() settings.UserSettings { return p.settings }

// Screen returns the target surface.
func (p *Pipeline) Screen() Screen { return p.screen }

// Cursor returns the last emitted cursor position.
func (p *Pipeline) Cursor() (float64, float64) { return p.lastX, p.lastY }

// Calibrating reports whether an offset calibration is in progress.
func (p *Pipeline) Calibrating() bool { return p.calib != nil }

// Edge returns the currently engaged edge.
func (p *Pipeline) Edge() edgescroll.Edge { return p.edge.Current() }

// Glyph returns the last emitted status glyph.
func (p *Pipeline) Glyph() string { return p.lastGlyph }

// Progress returns the last emitted dwell progress.
func (p *Pipeline) Progress() float64 { return p.lastProgress }

// ProcessSample runs one sample through the pipeline and returns the
// resulting events in order. Invalid samples produce nothing.
func (p *Pipeline) ProcessSample(s GazeSample) []Event {
	if !s.Valid || isNonFinite(s.X) || isNonFinite(s.Y) {
		return nil
	}
	ts := s.TimestampMs

	if p.calib != nil {
		return p.collectCalibration(s)
	}

	var out []Event

	if p.seenTs && ts < p.lastTsMs-TimestampRewind.Milliseconds() {
		out = p.restart(out)
	}
	p.seenTs, p.lastTsMs = true, ts

	if p.resetPending && ts >= p.resetAtMs {
		p.resetPending = false
		out = p.resetAll(out)
	}

	fx, fy := p.filter.Filter(ts, s.X, s.Y)
	x := clamp(fx+p.settings.CursorOffsetX, 0, p.screen.Width-1)
	y := clamp(fy+p.settings.CursorOffsetY, 0, p.screen.Height-1)
	p.lastX, p.lastY = x, y
	out = append(out, CursorMoved{X: x, Y: y, At: ts})

	switch edge := p.edge.Update(y, p.screen.Height); edge {
	case edgescroll.EdgeTop:
		action, pulse := p.edge.ProcessTop(ts)
		out = p.edgeStep(out, edge, action, pulse, ts)

	case edgescroll.EdgeBottom:
		action, pulse := p.edge.ProcessBottom(ts)
		out = p.edgeStep(out, edge, action, pulse, ts)

	default:
		clicked := p.dwell.Update(x, y, ts)
		out = p.setProgress(out, p.dwell.Progress(ts))
		out = p.setGlyph(out, edgescroll.EdgeNone, edgescroll.GlyphIdle)
		if clicked {
			out = append(out, Click{X: x, Y: y, At: ts}, FeedbackPulse{Duration: ClickPulse})
		}
	}

	return out
}

func (p *Pipeline) edgeStep(out []Event, edge edgescroll.Edge, action edgescroll.ScrollAction, pulse time.Duration, ts int64) []Event {
	if pulse > 0 {
		out = append(out, FeedbackPulse{Duration: pulse})
	}
	out = p.setGlyph(out, edge, p.edge.StateIndicator(ts))

	if action == edgescroll.ScrollNone {
		return out
	}

	if p.cooldown.AllowN(time.UnixMilli(ts), 1) {
		out = append(out, Scroll{Direction: action, Count: p.settings.ContinuousScrollCount, At: ts})
	} else {
		out = append(out, ScrollSuppressed{Direction: action, At: ts})
	}
	p.resetPending = true
	p.resetAtMs = ts + ResetAfterScroll.Milliseconds()
	return out
}

// Reset clears the filter, both detectors and the dwell progress. The next
// sample starts the filter afresh, whatever its timestamp.
func (p *Pipeline) Reset() []Event {
	return p.restart(nil)
}

func (p *Pipeline) restart(out []Event) []Event {
	p.filter.Reset()
	p.seenTs = false
	p.resetPending = false
	return p.resetAll(out)
}

func (p *Pipeline) resetAll(out []Event) []Event {
	p.edge.ResetAll()
	p.dwell.Reset()
	out = p.setGlyph(out, edgescroll.EdgeNone, edgescroll.GlyphIdle)
	return p.setProgress(out, 0)
}

func (p *Pipeline) setGlyph(out []Event, edge edgescroll.Edge, glyph string) []Event {
	if glyph == p.lastGlyph {
		return out
	}
	p.lastGlyph = glyph
	return append(out, EdgeState{Edge: edge, Glyph: glyph})
}

func (p *Pipeline) setProgress(out []Event, v float64) []Event {
	if v == p.lastProgress {
		return out
	}
	p.lastProgress = v
	return append(out, DwellProgress{Progress: v})
}

// StartCalibration begins a one-point offset calibration targeting the screen
// center. Samples are ignored for CalibrationSettleMs, then
// CalibrationSamples raw samples are averaged. No cursor, click or scroll
// events are produced until it finishes.
func (p *Pipeline) StartCalibration(nowMs int64) []Event {
	tx, ty := p.screen.Center()
	p.calib = newOffsetCalibrator(tx, ty, nowMs)
	out := p.resetAll(nil)
	return append(out, CalibrationStarted{TargetX: tx, TargetY: ty, CollectFromMs: p.calib.collectFromMs})
}

// CancelCalibration aborts a calibration in progress, keeping the existing
// offset. It returns nil when no calibration is running.
func (p *Pipeline) CancelCalibration(reason string) []Event {
	if p.calib == nil {
		return nil
	}
	n := p.calib.count
	p.calib = nil
	return []Event{CalibrationFinished{
		Accepted: false,
		OffsetX:  p.settings.CursorOffsetX,
		OffsetY:  p.settings.CursorOffsetY,
		Samples:  n,
		Reason:   reason,
		Settings: p.settings,
	}}
}

func (p *Pipeline) collectCalibration(s GazeSample) []Event {
	if !p.calib.add(s.X, s.Y, s.TimestampMs) {
		return nil
	}

	ox, oy := p.calib.integrate(p.settings.CursorOffsetX, p.settings.CursorOffsetY)
	n := p.calib.count
	p.calib = nil

	if !offsetWithinLimit(ox, oy, p.screen) {
		return []Event{CalibrationFinished{
			Accepted: false,
			OffsetX:  ox,
			OffsetY:  oy,
			Samples:  n,
			Reason:   ReasonOutOfRange,
			Settings: p.settings,
		}}
	}

	p.Reconfigure(p.settings.With(settings.WithCursorOffset(ox, oy)))
	return []Event{CalibrationFinished{
		Accepted: true,
		OffsetX:  ox,
		OffsetY:  oy,
		Samples:  n,
		Settings: p.settings,
	}}
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(v, hi))
}

func isNonFinite(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
