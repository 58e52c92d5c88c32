package pipeline

import (
	"fmt"
	"time"

	"github.com/eorua8801/restructured-cursor/internal/edgescroll"
	"github.com/eorua8801/restructured-cursor/internal/settings"
)

// Event is an output of ProcessSample. The set is closed: only this package
// defines events.
type Event interface {
	pipelineEvent()
	String() string
}

// CursorMoved carries the filtered, offset and clamped cursor position.
type CursorMoved struct {
	X, Y float64
	At   int64
}

func (CursorMoved) pipelineEvent() {}
func (e CursorMoved) String() string {
	return fmt.Sprintf("CursorMoved(x=%.1f, y=%.1f)", e.X, e.Y)
}

// DwellProgress reports dwell completion in [0, 1]. Emitted only on change.
type DwellProgress struct {
	Progress float64
}

func (DwellProgress) pipelineEvent() {}
func (e DwellProgress) String() string {
	return fmt.Sprintf("DwellProgress(%.2f)", e.Progress)
}

// Click requests a primary click at the cursor position.
type Click struct {
	X, Y float64
	At   int64
}

func (Click) pipelineEvent() {}
func (e Click) String() string {
	return fmt.Sprintf("Click(x=%.1f, y=%.1f)", e.X, e.Y)
}

// EdgeState reports the active edge and its status glyph. Emitted only on
// change.
type EdgeState struct {
	Edge  edgescroll.Edge
	Glyph string
}

func (EdgeState) pipelineEvent() {}
func (e EdgeState) String() string {
	return fmt.Sprintf("EdgeState(edge=%s, glyph=%s)", e.Edge, e.Glyph)
}

// Scroll requests Count consecutive scroll gestures in Direction.
type Scroll struct {
	Direction edgescroll.ScrollAction
	Count     int
	At        int64
}

func (Scroll) pipelineEvent() {}
func (e Scroll) String() string {
	return fmt.Sprintf("Scroll(dir=%s, count=%d)", e.Direction, e.Count)
}

// ScrollSuppressed reports a scroll trigger swallowed by the cooldown.
type ScrollSuppressed struct {
	Direction edgescroll.ScrollAction
	At        int64
}

func (ScrollSuppressed) pipelineEvent() {}
func (e ScrollSuppressed) String() string {
	return fmt.Sprintf("ScrollSuppressed(dir=%s)", e.Direction)
}

// FeedbackPulse requests a haptic/visual pulse of the given length.
type FeedbackPulse struct {
	Duration time.Duration
}

func (FeedbackPulse) pipelineEvent() {}
func (e FeedbackPulse) String() string {
	return fmt.Sprintf("FeedbackPulse(%s)", e.Duration)
}

// CalibrationStarted marks the beginning of a one-point offset calibration.
// The user should look at (TargetX, TargetY).
type CalibrationStarted struct {
	TargetX, TargetY float64
	CollectFromMs    int64
}

func (CalibrationStarted) pipelineEvent() {}
func (e CalibrationStarted) String() string {
	return fmt.Sprintf("CalibrationStarted(target=%.0f,%.0f)", e.TargetX, e.TargetY)
}

// CalibrationFinished reports the outcome of an offset calibration. Settings
// is the snapshot in effect afterwards (unchanged when rejected).
type CalibrationFinished struct {
	Accepted bool
	OffsetX  float64
	OffsetY  float64
	Samples  int
	Reason   string
	Settings settings.UserSettings
}

func (CalibrationFinished) pipelineEvent() {}
func (e CalibrationFinished) String() string {
	return fmt.Sprintf("CalibrationFinished(accepted=%v, offset=%.1f,%.1f, reason=%q)", e.Accepted, e.OffsetX, e.OffsetY, e.Reason)
}
