package actuator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/eorua8801/restructured-cursor/internal/edgescroll"
)

var _ Actuator = (*Worker)(nil)

type call struct {
	op string
	x  int32
	y  int32
	g  Gesture
	at time.Time
}

type fakeDevice struct {
	mu        sync.Mutex
	calls     []call
	scrollErr error
	closed    bool
}

func (d *fakeDevice) record(c call) {
	d.mu.Lock()
	c.at = time.Now()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
}

func (d *fakeDevice) MoveTo(x, y int32) error {
	d.record(call{op: "move", x: x, y: y})
	return nil
}

func (d *fakeDevice) Click(x, y int32) error {
	d.record(call{op: "click", x: x, y: y})
	return nil
}

func (d *fakeDevice) Scroll(ctx context.Context, g Gesture) error {
	d.record(call{op: "scroll", g: g})
	return d.scrollErr
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) snapshot(op string) []call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []call
	for _, c := range d.calls {
		if op == "" || c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func newTestWorker(t *testing.T, dev *fakeDevice, cfg WorkerConfig) *Worker {
	t.Helper()
	if cfg.ScreenWidth == 0 {
		cfg.ScreenWidth, cfg.ScreenHeight = 1000, 1000
	}
	w := NewWorker(dev, cfg, testLogger())
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestWorker_MoveAndClick(t *testing.T) {
	dev := &fakeDevice{}
	w := newTestWorker(t, dev, WorkerConfig{ClickGuard: 10 * time.Millisecond})

	if err := w.Move(10.4, 20.6); err != nil {
		t.Fatalf("Move: %v", err)
	}
	waitUntil(t, time.Second, func() bool { return len(dev.snapshot("move")) == 1 })
	if m := dev.snapshot("move")[0]; m.x != 10 || m.y != 21 {
		t.Fatalf("expected rounded move (10, 21), got (%d, %d)", m.x, m.y)
	}

	if err := w.Click(100, 200); err != nil {
		t.Fatalf("Click: %v", err)
	}
	waitUntil(t, time.Second, func() bool { return len(dev.snapshot("click")) == 1 })
	waitUntil(t, time.Second, func() bool { return !w.Busy() })
}

func TestWorker_ClickGuardDropsSecondClick(t *testing.T) {
	dev := &fakeDevice{}
	w := newTestWorker(t, dev, WorkerConfig{ClickGuard: time.Second})

	if err := w.Click(1, 1); err != nil {
		t.Fatalf("first click: %v", err)
	}
	if err := w.Click(2, 2); !errors.Is(err, ErrGestureInProgress) {
		t.Fatalf("expected ErrGestureInProgress, got %v", err)
	}

	waitUntil(t, time.Second, func() bool { return len(dev.snapshot("click")) == 1 })
	// Still inside the guard window after execution.
	if err := w.Click(3, 3); !errors.Is(err, ErrGestureInProgress) {
		t.Fatalf("expected guard to reject click, got %v", err)
	}
	if n := len(dev.snapshot("click")); n != 1 {
		t.Fatalf("expected exactly one executed click, got %d", n)
	}
}

func TestWorker_ContinuousScrollIsPaced(t *testing.T) {
	dev := &fakeDevice{}
	spacing := 80 * time.Millisecond
	w := newTestWorker(t, dev, WorkerConfig{ScrollSpacing: spacing, ScrollGuard: 10 * time.Millisecond})

	if err := w.Scroll(edgescroll.ScrollDown, 3); err != nil {
		t.Fatalf("Scroll: %v", err)
	}
	if !w.Busy() {
		t.Fatalf("expected worker busy during scroll")
	}
	if err := w.Click(5, 5); !errors.Is(err, ErrGestureInProgress) {
		t.Fatalf("click during scroll must be rejected, got %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool { return len(dev.snapshot("scroll")) == 3 })

	scrolls := dev.snapshot("scroll")
	for i := 1; i < len(scrolls); i++ {
		gap := scrolls[i].at.Sub(scrolls[i-1].at)
		// Allow a little scheduler slack below the nominal spacing.
		if gap < spacing-10*time.Millisecond {
			t.Fatalf("gesture %d started %v after previous, want >= %v", i, gap, spacing)
		}
	}
	if g := scrolls[0].g; g.Direction != edgescroll.ScrollDown || g.Notches <= 0 {
		t.Fatalf("unexpected gesture: %+v", g)
	}

	waitUntil(t, time.Second, func() bool { return !w.Busy() })
}

func TestWorker_MovesDroppedDuringGesture(t *testing.T) {
	dev := &fakeDevice{}
	w := newTestWorker(t, dev, WorkerConfig{ScrollSpacing: 200 * time.Millisecond, ScrollGuard: 10 * time.Millisecond})

	if err := w.Scroll(edgescroll.ScrollUp, 2); err != nil {
		t.Fatalf("Scroll: %v", err)
	}
	for i := 0; i < 5; i++ {
		_ = w.Move(float64(i), float64(i))
	}
	waitUntil(t, 2*time.Second, func() bool { return !w.Busy() })

	if n := len(dev.snapshot("move")); n != 0 {
		t.Fatalf("expected moves during a scroll to be dropped, got %d", n)
	}
}

func TestWorker_ReportsDeviceErrors(t *testing.T) {
	boom := errors.New("boom")
	dev := &fakeDevice{scrollErr: boom}

	var (
		mu  sync.Mutex
		got []error
	)
	w := newTestWorker(t, dev, WorkerConfig{
		ScrollGuard: 10 * time.Millisecond,
		OnError: func(op string, err error) {
			mu.Lock()
			got = append(got, err)
			mu.Unlock()
		},
	})

	if err := w.Scroll(edgescroll.ScrollUp, 3); err != nil {
		t.Fatalf("Scroll: %v", err)
	}
	waitUntil(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	if n := len(dev.snapshot("scroll")); n != 1 {
		t.Fatalf("scroll sequence must stop at the first error, got %d gestures", n)
	}
	waitUntil(t, time.Second, func() bool { return !w.Busy() })
}

func TestWorker_Close(t *testing.T) {
	dev := &fakeDevice{}
	w := NewWorker(dev, WorkerConfig{ScreenWidth: 100, ScreenHeight: 100}, testLogger())

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !dev.closed {
		t.Fatalf("expected device closed")
	}
	if err := w.Click(1, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
