package pipeline

import (
	"math"
	"testing"

	"github.com/eorua8801/restructured-cursor/internal/edgescroll"
	"github.com/eorua8801/restructured-cursor/internal/settings"
)

var testScreen = Screen{Width: 1000, Height: 1000}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func newTestPipeline(t *testing.T, opts ...settings.Option) *Pipeline {
	t.Helper()
	s := settings.New(opts...)
	if err := s.Validate(); err != nil {
		t.Fatalf("invalid test settings: %v", err)
	}
	return New(s, testScreen)
}

// feed sends a constant gaze point every 33ms for samples [from, to) and
// returns all events.
func feed(t *testing.T, p *Pipeline, x, y float64, from, to int) []Event {
	t.Helper()
	var out []Event
	for i := from; i < to; i++ {
		out = append(out, p.ProcessSample(GazeSample{X: x, Y: y, TimestampMs: int64(i * 33), Valid: true})...)
	}
	return out
}

func countOf[T Event](events []Event) (n int, all []T) {
	for _, ev := range events {
		if e, ok := ev.(T); ok {
			n++
			all = append(all, e)
		}
	}
	return n, all
}

func TestProcessSample_InvalidProducesNothing(t *testing.T) {
	p := newTestPipeline(t)

	cases := []GazeSample{
		{X: 100, Y: 100, TimestampMs: 0, Valid: false},
		{X: math.NaN(), Y: 100, TimestampMs: 33, Valid: true},
		{X: 100, Y: math.Inf(1), TimestampMs: 66, Valid: true},
	}
	for _, s := range cases {
		if ev := p.ProcessSample(s); len(ev) != 0 {
			t.Fatalf("sample %+v: expected no events, got %v", s, ev)
		}
	}
}

func TestProcessSample_ClampsToScreen(t *testing.T) {
	p := newTestPipeline(t, settings.WithClickEnabled(false))

	ev := p.ProcessSample(GazeSample{X: 5000, Y: -300, TimestampMs: 0, Valid: true})
	if len(ev) == 0 {
		t.Fatalf("expected events")
	}
	moved, ok := ev[0].(CursorMoved)
	if !ok {
		t.Fatalf("first event must be CursorMoved, got %v", ev[0])
	}
	if moved.X != testScreen.Width-1 || moved.Y != 0 {
		t.Fatalf("expected clamp to (%v, 0), got (%v, %v)", testScreen.Width-1, moved.X, moved.Y)
	}
}

func TestProcessSample_AppliesOffset(t *testing.T) {
	p := newTestPipeline(t, settings.WithCursorOffset(20, -10))

	ev := p.ProcessSample(GazeSample{X: 400, Y: 400, TimestampMs: 0, Valid: true})
	moved := ev[0].(CursorMoved)
	if moved.X != 420 || moved.Y != 390 {
		t.Fatalf("expected offset cursor (420, 390), got (%v, %v)", moved.X, moved.Y)
	}
}

func TestProcessSample_DwellClick(t *testing.T) {
	p := newTestPipeline(t)

	events := feed(t, p, 500, 500, 0, 45)

	n, clicks := countOf[Click](events)
	if n != 1 {
		t.Fatalf("expected one click within 1.5s, got %d", n)
	}
	if clicks[0].At != 1023 {
		t.Fatalf("expected click at first sample >= 1000ms (1023), got %d", clicks[0].At)
	}
	if !near(clicks[0].X, 500) || !near(clicks[0].Y, 500) {
		t.Fatalf("click at wrong position: %v", clicks[0])
	}

	// The click is followed by its feedback pulse.
	for i, ev := range events {
		if _, ok := ev.(Click); ok {
			if i+1 >= len(events) {
				t.Fatalf("click is the last event")
			}
			pulse, ok := events[i+1].(FeedbackPulse)
			if !ok || pulse.Duration != ClickPulse {
				t.Fatalf("expected click pulse after click, got %v", events[i+1])
			}
		}
	}

	_, progress := countOf[DwellProgress](events)
	var prev float64
	for _, dp := range progress {
		if dp.Progress < 0 || dp.Progress > 1 {
			t.Fatalf("progress out of range: %v", dp.Progress)
		}
		if dp.Progress == prev {
			t.Fatalf("progress emitted without change: %v", dp.Progress)
		}
		prev = dp.Progress
	}
}

func TestProcessSample_ClickDisabled(t *testing.T) {
	p := newTestPipeline(t, settings.WithClickEnabled(false))

	if n, _ := countOf[Click](feed(t, p, 500, 500, 0, 100)); n != 0 {
		t.Fatalf("expected no clicks while disabled, got %d", n)
	}
}

func TestProcessSample_TopEdgeScrollsDownOnce(t *testing.T) {
	p := newTestPipeline(t)

	events := feed(t, p, 500, 5, 0, 122) // ~4s

	n, scrolls := countOf[Scroll](events)
	if n != 1 {
		t.Fatalf("expected exactly one scroll, got %d (%v)", n, scrolls)
	}
	if scrolls[0].Direction != edgescroll.ScrollDown {
		t.Fatalf("top edge must scroll down, got %v", scrolls[0].Direction)
	}
	if scrolls[0].Count != settings.Default().ContinuousScrollCount {
		t.Fatalf("scroll count: got %d", scrolls[0].Count)
	}
	if c, _ := countOf[Click](events); c != 0 {
		t.Fatalf("dwell must not click while an edge is engaged, got %d", c)
	}
	if c, _ := countOf[DwellProgress](events); c != 0 {
		t.Fatalf("dwell must not progress while an edge is engaged, got %d", c)
	}

	_, states := countOf[EdgeState](events)
	var sawTriggered bool
	for _, st := range states {
		if st.Glyph == edgescroll.GlyphTriggered {
			sawTriggered = true
		}
	}
	if !sawTriggered {
		t.Fatalf("expected triggered glyph among %v", states)
	}
}

func TestProcessSample_ResetAfterScroll(t *testing.T) {
	p := newTestPipeline(t, settings.WithEdgeTrigger(500))

	// Trigger fires at 660ms; the reset is due at 1160ms.
	feed(t, p, 500, 5, 0, 21)
	if p.Glyph() != edgescroll.GlyphTriggered {
		t.Fatalf("expected triggered glyph, got %q", p.Glyph())
	}

	// The first sample at or past the reset deadline clears both detectors
	// before re-entering the top zone.
	ev := feed(t, p, 500, 5, 21, 37)
	var sawIdle bool
	for _, e := range ev {
		if st, ok := e.(EdgeState); ok && st.Glyph == edgescroll.GlyphIdle {
			sawIdle = true
		}
	}
	if !sawIdle {
		t.Fatalf("expected idle glyph from delayed reset, got %v", ev)
	}
	if p.Glyph() != edgescroll.GlyphTop {
		t.Fatalf("expected re-armed top glyph, got %q", p.Glyph())
	}
}

func TestProcessSample_ScrollCooldown(t *testing.T) {
	p := newTestPipeline(t, settings.WithEdgeTrigger(500), settings.WithClickEnabled(false))

	events := feed(t, p, 500, 5, 0, 95)

	_, scrolls := countOf[Scroll](events)
	_, suppressed := countOf[ScrollSuppressed](events)

	if len(scrolls) != 2 || len(suppressed) != 1 {
		t.Fatalf("expected 2 scrolls and 1 suppressed, got %v / %v", scrolls, suppressed)
	}
	if scrolls[0].At != 660 || suppressed[0].At != 1848 || scrolls[1].At != 3036 {
		t.Fatalf("unexpected timing: scrolls=%v suppressed=%v", scrolls, suppressed)
	}
	if scrolls[1].At-scrolls[0].At < ScrollCooldown.Milliseconds() {
		t.Fatalf("scrolls closer than cooldown")
	}
}

func TestCalibration_Accepted(t *testing.T) {
	p := newTestPipeline(t)

	ev := p.StartCalibration(0)
	_, started := countOf[CalibrationStarted](ev)
	if len(started) != 1 || started[0].TargetX != 500 || started[0].TargetY != 500 {
		t.Fatalf("expected start at screen center, got %v", ev)
	}
	if !p.Calibrating() {
		t.Fatalf("expected calibrating")
	}

	// Settle period: everything is swallowed.
	for ts := int64(0); ts < CalibrationSettleMs; ts += 100 {
		if out := p.ProcessSample(GazeSample{X: 900, Y: 900, TimestampMs: ts, Valid: true}); out != nil {
			t.Fatalf("expected no events during settle, got %v", out)
		}
	}

	var finished []CalibrationFinished
	for i := 0; i < CalibrationSamples; i++ {
		out := p.ProcessSample(GazeSample{X: 480, Y: 510, TimestampMs: int64(CalibrationSettleMs + i*33), Valid: true})
		if i < CalibrationSamples-1 && out != nil {
			t.Fatalf("sample %d: expected no events while collecting, got %v", i, out)
		}
		_, f := countOf[CalibrationFinished](out)
		finished = append(finished, f...)
	}
	if len(finished) != 1 {
		t.Fatalf("expected one CalibrationFinished, got %d", len(finished))
	}
	got := finished[0]
	if !got.Accepted || got.OffsetX != 20 || got.OffsetY != -10 || got.Samples != CalibrationSamples {
		t.Fatalf("unexpected result: %+v", got)
	}
	if p.Calibrating() {
		t.Fatalf("calibration must end after the last sample")
	}
	if s := p.Settings(); s.CursorOffsetX != 20 || s.CursorOffsetY != -10 {
		t.Fatalf("offset not applied to settings: %v,%v", s.CursorOffsetX, s.CursorOffsetY)
	}

	out := p.ProcessSample(GazeSample{X: 480, Y: 510, TimestampMs: 2000, Valid: true})
	moved := out[0].(CursorMoved)
	if moved.X != 500 || moved.Y != 500 {
		t.Fatalf("expected corrected cursor at center, got (%v, %v)", moved.X, moved.Y)
	}
}

func TestCalibration_IntegratesExistingOffset(t *testing.T) {
	p := newTestPipeline(t, settings.WithCursorOffset(10, 10))

	p.StartCalibration(0)
	var res []CalibrationFinished
	for i := 0; i < CalibrationSamples; i++ {
		_, f := countOf[CalibrationFinished](p.ProcessSample(GazeSample{X: 490, Y: 490, TimestampMs: int64(1000 + i), Valid: true}))
		res = append(res, f...)
	}
	if len(res) != 1 || res[0].OffsetX != 20 || res[0].OffsetY != 20 {
		t.Fatalf("expected integrated offset (20, 20), got %+v", res)
	}
}

func TestCalibration_RejectsLargeOffset(t *testing.T) {
	p := newTestPipeline(t)

	p.StartCalibration(0)
	var res []CalibrationFinished
	for i := 0; i < CalibrationSamples; i++ {
		_, f := countOf[CalibrationFinished](p.ProcessSample(GazeSample{X: 100, Y: 100, TimestampMs: int64(1000 + i*33), Valid: true}))
		res = append(res, f...)
	}
	if len(res) != 1 {
		t.Fatalf("expected one result, got %d", len(res))
	}
	if res[0].Accepted || res[0].Reason != ReasonOutOfRange {
		t.Fatalf("expected rejection, got %+v", res[0])
	}
	if s := p.Settings(); s.CursorOffsetX != 0 || s.CursorOffsetY != 0 {
		t.Fatalf("rejected calibration must keep old offset, got %v,%v", s.CursorOffsetX, s.CursorOffsetY)
	}
}

func TestCancelCalibration(t *testing.T) {
	p := newTestPipeline(t)

	if ev := p.CancelCalibration(ReasonCancelled); ev != nil {
		t.Fatalf("cancel while idle must be a no-op, got %v", ev)
	}

	p.StartCalibration(0)
	p.ProcessSample(GazeSample{X: 500, Y: 500, TimestampMs: 1000, Valid: true})
	ev := p.CancelCalibration(ReasonTimeout)
	if len(ev) != 1 {
		t.Fatalf("expected one event, got %v", ev)
	}
	f := ev[0].(CalibrationFinished)
	if f.Accepted || f.Reason != ReasonTimeout || f.Samples != 1 {
		t.Fatalf("unexpected cancel result: %+v", f)
	}
	if p.Calibrating() {
		t.Fatalf("expected idle after cancel")
	}
}

func TestReconfigure_RebuildsDetectors(t *testing.T) {
	p := newTestPipeline(t)

	feed(t, p, 500, 500, 0, 20)
	if p.Progress() == 0 {
		t.Fatalf("precondition: dwell in progress")
	}

	p.Reconfigure(p.Settings().With(settings.WithPreset(settings.PresetStability)))
	if p.Progress() != 0 {
		t.Fatalf("expected progress cleared after reconfigure")
	}
	if got := p.Settings().Preset; got != settings.PresetStability {
		t.Fatalf("preset not applied: %v", got)
	}
}

func TestReset(t *testing.T) {
	p := newTestPipeline(t)

	feed(t, p, 500, 5, 0, 10)
	if p.Edge() != edgescroll.EdgeTop {
		t.Fatalf("precondition: top engaged")
	}
	ev := p.Reset()
	if p.Edge() != edgescroll.EdgeNone || p.Glyph() != edgescroll.GlyphIdle {
		t.Fatalf("expected idle after reset")
	}
	if n, _ := countOf[EdgeState](ev); n != 1 {
		t.Fatalf("expected one EdgeState from reset, got %v", ev)
	}
}

func TestReset_RestartsFilterForRestartedTimestamps(t *testing.T) {
	p := newTestPipeline(t)

	for i := 0; i < 15; i++ {
		p.ProcessSample(GazeSample{X: 500, Y: 500, TimestampMs: int64(100000 + i*33), Valid: true})
	}
	p.Reset()

	// The source comes back with its clock starting from zero.
	var events []Event
	for ts := int64(0); ts < 3000; ts += 33 {
		events = append(events, p.ProcessSample(GazeSample{X: 700, Y: 800, TimestampMs: ts, Valid: true})...)
	}

	x, y := p.Cursor()
	if !near(x, 700) || !near(y, 800) {
		t.Fatalf("expected cursor to follow the new samples to (700, 800), got (%v, %v)", x, y)
	}
	_, clicks := countOf[Click](events)
	for _, c := range clicks {
		if near(c.X, 500) && near(c.Y, 500) {
			t.Fatalf("click fired at the stale position: %v", c)
		}
	}
	if len(clicks) == 0 {
		t.Fatalf("expected dwell clicks at the new position")
	}
}

func TestProcessSample_TimestampRewindRestartsFilter(t *testing.T) {
	p := newTestPipeline(t, settings.WithClickEnabled(false))

	for i := 0; i < 15; i++ {
		p.ProcessSample(GazeSample{X: 500, Y: 500, TimestampMs: int64(100000 + i*33), Valid: true})
	}

	// No Reset: the rewind alone must unfreeze the filter.
	ev := p.ProcessSample(GazeSample{X: 700, Y: 800, TimestampMs: 0, Valid: true})
	n, all := countOf[CursorMoved](ev)
	if n != 1 {
		t.Fatalf("expected one CursorMoved, got %v", ev)
	}
	if moved := all[0]; moved.X != 700 || moved.Y != 800 {
		t.Fatalf("expected first sample after rewind to pass through, got (%v, %v)", moved.X, moved.Y)
	}
}

func TestProcessSample_SmallJitterKeepsFilterState(t *testing.T) {
	p := newTestPipeline(t, settings.WithClickEnabled(false))

	p.ProcessSample(GazeSample{X: 500, Y: 500, TimestampMs: 1000, Valid: true})
	p.ProcessSample(GazeSample{X: 500, Y: 500, TimestampMs: 1033, Valid: true})

	// Out of order by less than TimestampRewind: the filter holds its value.
	ev := p.ProcessSample(GazeSample{X: 900, Y: 900, TimestampMs: 1020, Valid: true})
	_, all := countOf[CursorMoved](ev)
	if len(all) != 1 {
		t.Fatalf("expected one CursorMoved, got %v", ev)
	}
	if moved := all[0]; moved.X != 500 || moved.Y != 500 {
		t.Fatalf("expected held value (500, 500), got (%v, %v)", moved.X, moved.Y)
	}
}
