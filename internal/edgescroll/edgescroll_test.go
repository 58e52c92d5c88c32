package edgescroll

import (
	"testing"
	"time"

	"github.com/eorua8801/restructured-cursor/internal/settings"
)

const screenH = 1000.0

func newTestDetector(t *testing.T, opts ...settings.Option) *Detector {
	t.Helper()
	return New(settings.New(opts...))
}

// feedTop runs one Update + ProcessTop step.
func feedTop(t *testing.T, d *Detector, y float64, nowMs int64) (ScrollAction, time.Duration) {
	t.Helper()
	if e := d.Update(y, screenH); e != EdgeTop {
		t.Fatalf("expected top edge at y=%v, got %v", y, e)
	}
	return d.ProcessTop(nowMs)
}

func TestUpdate_Zones(t *testing.T) {
	d := newTestDetector(t)

	if e := d.Update(5, screenH); e != EdgeTop {
		t.Fatalf("y=5: got %v, want top", e)
	}
	if e := d.Update(995, screenH); e != EdgeBottom {
		t.Fatalf("y=995: got %v, want bottom", e)
	}
	if e := d.Update(500, screenH); e != EdgeNone {
		t.Fatalf("y=500: got %v, want none", e)
	}
	// Boundaries are exclusive.
	if e := d.Update(10, screenH); e != EdgeNone {
		t.Fatalf("y=10 (margin): got %v, want none", e)
	}
	if e := d.Update(990, screenH); e != EdgeNone {
		t.Fatalf("y=990 (1-margin): got %v, want none", e)
	}
	if d.IsActive() {
		t.Fatalf("expected inactive in neutral zone")
	}
}

func TestProcess_DebounceNeedsFiveFrames(t *testing.T) {
	d := newTestDetector(t)

	for i := 0; i < ThresholdFrames-1; i++ {
		action, pulse := feedTop(t, d, 5, int64(i*33))
		if action != ScrollNone || pulse != 0 {
			t.Fatalf("frame %d: expected nothing, got %v/%v", i+1, action, pulse)
		}
		if d.TimerStarted(EdgeTop) {
			t.Fatalf("timer started after only %d frames", i+1)
		}
	}

	action, pulse := feedTop(t, d, 5, 4*33)
	if action != ScrollNone || pulse != PulseArmed {
		t.Fatalf("5th frame: expected armed pulse, got %v/%v", action, pulse)
	}
	if !d.TimerStarted(EdgeTop) {
		t.Fatalf("expected timer to start on 5th consecutive frame")
	}
}

func TestProcess_LeavingZoneResetsCounter(t *testing.T) {
	d := newTestDetector(t)

	for i := 0; i < 4; i++ {
		feedTop(t, d, 5, int64(i*33))
	}
	d.Update(500, screenH)
	if d.Frames(EdgeTop) != 0 {
		t.Fatalf("expected frame counter reset after leaving zone, got %d", d.Frames(EdgeTop))
	}

	action, pulse := feedTop(t, d, 5, 200)
	if pulse != 0 || action != ScrollNone || d.TimerStarted(EdgeTop) {
		t.Fatalf("a single frame after re-entry must not start the timer")
	}
}

func TestUpdate_MutualExclusion(t *testing.T) {
	d := newTestDetector(t)

	for i := 0; i < 10; i++ {
		feedTop(t, d, 5, int64(i*33))
	}
	if !d.TimerStarted(EdgeTop) {
		t.Fatalf("precondition: top timer running")
	}

	if e := d.Update(995, screenH); e != EdgeBottom {
		t.Fatalf("expected bottom, got %v", e)
	}
	if d.Frames(EdgeTop) != 0 || d.TimerStarted(EdgeTop) {
		t.Fatalf("entering bottom must clear top state: frames=%d started=%v", d.Frames(EdgeTop), d.TimerStarted(EdgeTop))
	}
	if d.Frames(EdgeBottom) != 0 {
		t.Fatalf("bottom must begin counting from zero, got %d", d.Frames(EdgeBottom))
	}
}

func TestProcess_SingleFireStages(t *testing.T) {
	d := newTestDetector(t, settings.WithEdgeTrigger(3000))

	var (
		armed, stages, triggers int
		scrolls                 []ScrollAction
	)

	// 4 debounce frames, then the timer starts at t=0 and we keep gazing for 6s.
	ts := int64(-4 * 33)
	for ts <= 6000 {
		action, pulse := feedTop(t, d, 5, ts)
		switch pulse {
		case PulseArmed:
			armed++
		case PulseStage:
			stages++
		case PulseTriggered:
			triggers++
		}
		if action != ScrollNone {
			scrolls = append(scrolls, action)
		}
		ts += 33
	}

	if armed != 1 || stages != 2 || triggers != 1 {
		t.Fatalf("expected 1 armed, 2 stage and 1 trigger pulse, got %d/%d/%d", armed, stages, triggers)
	}
	if len(scrolls) != 1 || scrolls[0] != ScrollDown {
		t.Fatalf("expected exactly one ScrollDown, got %v", scrolls)
	}
}

func TestProcess_StagePulsesAtExactBoundaries(t *testing.T) {
	d := newTestDetector(t, settings.WithEdgeTrigger(3000))

	for i := 0; i < ThresholdFrames; i++ {
		feedTop(t, d, 5, 0)
	}
	if !d.TimerStarted(EdgeTop) {
		t.Fatalf("precondition: timer started at t=0")
	}

	steps := []struct {
		at     int64
		pulse  time.Duration
		action ScrollAction
	}{
		{999, 0, ScrollNone},
		{1000, PulseStage, ScrollNone},
		{1999, 0, ScrollNone},
		{2000, PulseStage, ScrollNone},
		{2999, 0, ScrollNone},
		{3000, PulseTriggered, ScrollDown},
		{3001, 0, ScrollNone},
	}
	for _, st := range steps {
		action, pulse := feedTop(t, d, 5, st.at)
		if action != st.action || pulse != st.pulse {
			t.Fatalf("at %dms: got %v/%v, want %v/%v", st.at, action, pulse, st.action, st.pulse)
		}
	}
}

func TestEndToEnd_TopEdgeScrollsDownOnce(t *testing.T) {
	d := newTestDetector(t, settings.WithEdgeMarginRatio(0.01), settings.WithEdgeTrigger(3000))

	var downs int
	var firedAt int64 = -1
	for ts := int64(0); ts <= 4000; ts += 33 {
		if d.Update(5, screenH) != EdgeTop {
			t.Fatalf("expected top edge")
		}
		action, _ := d.ProcessTop(ts)
		if action == ScrollDown {
			downs++
			firedAt = ts
		}
		if action == ScrollUp {
			t.Fatalf("top edge must never scroll up")
		}
	}

	if downs != 1 {
		t.Fatalf("expected exactly one ScrollDown, got %d", downs)
	}
	// Timer starts on the 5th frame (t=132ms); trigger needs >= 3000ms after that.
	if firedAt < 132+3000 {
		t.Fatalf("scroll fired too early at %dms", firedAt)
	}
}

func TestProcessBottom_ScrollsUp(t *testing.T) {
	d := newTestDetector(t, settings.WithEdgeTrigger(1500))

	var got []ScrollAction
	for ts := int64(0); ts <= 4000; ts += 50 {
		if d.Update(999, screenH) != EdgeBottom {
			t.Fatalf("expected bottom edge")
		}
		if action, _ := d.ProcessBottom(ts); action != ScrollNone {
			got = append(got, action)
		}
	}
	if len(got) != 1 || got[0] != ScrollUp {
		t.Fatalf("expected exactly one ScrollUp, got %v", got)
	}
}

func TestStateIndicator(t *testing.T) {
	d := newTestDetector(t, settings.WithEdgeTrigger(3000))

	if g := d.StateIndicator(0); g != GlyphIdle {
		t.Fatalf("idle glyph: got %q", g)
	}

	for i := 0; i < ThresholdFrames; i++ {
		feedTop(t, d, 5, 0)
	}
	cases := []struct {
		at   int64
		want string
	}{
		{500, GlyphTop},
		{999, GlyphTop},
		{1000, GlyphStage1},
		{1999, GlyphStage1},
		{2000, GlyphStage2},
	}
	for _, tc := range cases {
		if g := d.StateIndicator(tc.at); g != tc.want {
			t.Errorf("at %dms: got %q, want %q", tc.at, g, tc.want)
		}
	}

	// Drive through the stages to trigger.
	for ts := int64(1001); ts <= 3100; ts += 100 {
		feedTop(t, d, 5, ts)
	}
	if g := d.StateIndicator(3100); g != GlyphTriggered {
		t.Fatalf("expected triggered glyph, got %q", g)
	}

	d.Update(995, screenH)
	if g := d.StateIndicator(3100); g != GlyphBottom {
		t.Fatalf("expected bottom armed glyph, got %q", g)
	}
}

func TestUpdate_DisabledFlagsClearState(t *testing.T) {
	for name, opt := range map[string]settings.Option{
		"scroll":      settings.WithScrollEnabled(false),
		"edge scroll": settings.WithEdgeScrollEnabled(false),
	} {
		d := newTestDetector(t, opt)
		for ts := int64(0); ts < 5000; ts += 33 {
			if e := d.Update(1, screenH); e != EdgeNone {
				t.Fatalf("%s disabled: expected no edge, got %v", name, e)
			}
		}
		if d.IsActive() {
			t.Fatalf("%s disabled: detector must stay inactive", name)
		}
	}
}

func TestResetAll(t *testing.T) {
	d := newTestDetector(t)
	for i := 0; i < 8; i++ {
		feedTop(t, d, 5, int64(i*33))
	}
	d.ResetAll()
	if d.IsActive() || d.Frames(EdgeTop) != 0 || d.TimerStarted(EdgeTop) {
		t.Fatalf("expected clean state after ResetAll")
	}
}
