package actuator

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/eorua8801/restructured-cursor/internal/edgescroll"
)

var (
	// ErrGestureInProgress is returned when a click or scroll arrives while
	// another gesture is still running or inside its guard window.
	ErrGestureInProgress = errors.New("gesture in progress")

	// ErrQueueFull is returned when the worker cannot accept more jobs.
	ErrQueueFull = errors.New("actuator queue full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("actuator closed")
)

// Timing defaults.
const (
	DefaultScrollSpacing = 500 * time.Millisecond
	DefaultClickGuard    = 100 * time.Millisecond
	DefaultScrollGuard   = 300 * time.Millisecond

	defaultQueueSize = 32
)

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	ScreenWidth  float64
	ScreenHeight float64

	Amount       ScrollAmount
	WheelNotches int

	// ScrollSpacing is the minimum time between consecutive gestures of one
	// continuous scroll.
	ScrollSpacing time.Duration

	ClickGuard  time.Duration
	ScrollGuard time.Duration

	// OnError is called from the worker goroutine when the device fails.
	OnError func(op string, err error)
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Amount <= 0 {
		c.Amount = AmountMedium
	}
	if c.WheelNotches <= 0 {
		c.WheelNotches = 3
	}
	if c.ScrollSpacing <= 0 {
		c.ScrollSpacing = DefaultScrollSpacing
	}
	if c.ClickGuard <= 0 {
		c.ClickGuard = DefaultClickGuard
	}
	if c.ScrollGuard <= 0 {
		c.ScrollGuard = DefaultScrollGuard
	}
	return c
}

type jobKind int

const (
	jobMove jobKind = iota
	jobClick
	jobScroll
)

type job struct {
	kind  jobKind
	x, y  int32
	dir   edgescroll.ScrollAction
	count int
}

// Worker serializes Device access on one goroutine.
//
// Moves are dropped while a click or scroll is running. A click or scroll is
// rejected with ErrGestureInProgress while another gesture runs and until
// its guard window (ClickGuard / ScrollGuard) has elapsed.
type Worker struct {
	dev    Device
	cfg    WorkerConfig
	logger *slog.Logger

	jobs chan job
	pace *rate.Limiter

	mu         sync.Mutex
	inGesture  bool
	guardUntil time.Time
	closed     bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker starts a worker goroutine that owns dev.
func NewWorker(dev Device, cfg WorkerConfig, logger *slog.Logger) *Worker {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		dev:    dev,
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan job, defaultQueueSize),
		pace:   rate.NewLimiter(rate.Every(cfg.ScrollSpacing), 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

// SetScreen updates the geometry used for scroll gestures.
func (w *Worker) SetScreen(width, height float64) {
	w.mu.Lock()
	w.cfg.ScreenWidth = width
	w.cfg.ScreenHeight = height
	w.mu.Unlock()
}

// Busy reports whether a gesture is running or guarded.
func (w *Worker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busyLocked(time.Now())
}

func (w *Worker) busyLocked(now time.Time) bool {
	return w.inGesture || now.Before(w.guardUntil)
}

// Move queues a pointer warp. It is silently dropped during a gesture.
func (w *Worker) Move(x, y float64) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.inGesture {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	select {
	case w.jobs <- job{kind: jobMove, x: round(x), y: round(y)}:
		return nil
	default:
		// Moves are superseded by the next sample anyway.
		return nil
	}
}

// Click queues a left click at (x, y).
func (w *Worker) Click(x, y float64) error {
	return w.submitGesture(job{kind: jobClick, x: round(x), y: round(y)})
}

// Scroll queues count gestures in dir, spaced by ScrollSpacing.
func (w *Worker) Scroll(dir edgescroll.ScrollAction, count int) error {
	if dir == edgescroll.ScrollNone || count < 1 {
		return nil
	}
	return w.submitGesture(job{kind: jobScroll, dir: dir, count: count})
}

func (w *Worker) submitGesture(j job) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.busyLocked(time.Now()) {
		return ErrGestureInProgress
	}
	select {
	case w.jobs <- j:
		w.inGesture = true
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the worker, waits for the goroutine and closes the device.
func (w *Worker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	<-w.done
	return w.dev.Close()
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-w.jobs:
			w.exec(ctx, j)
		}
	}
}

func (w *Worker) exec(ctx context.Context, j job) {
	switch j.kind {
	case jobMove:
		if err := w.dev.MoveTo(j.x, j.y); err != nil {
			w.fail("move", err)
		}

	case jobClick:
		err := w.dev.Click(j.x, j.y)
		w.finishGesture(w.cfg.ClickGuard)
		if err != nil {
			w.fail("click", err)
		}

	case jobScroll:
		err := w.scroll(ctx, j.dir, j.count)
		w.finishGesture(w.cfg.ScrollGuard)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.fail("scroll", err)
		}
	}
}

func (w *Worker) scroll(ctx context.Context, dir edgescroll.ScrollAction, count int) error {
	w.mu.Lock()
	g := NewGesture(dir, w.cfg.Amount, w.cfg.ScreenWidth, w.cfg.ScreenHeight, w.cfg.WheelNotches)
	w.mu.Unlock()

	for i := 0; i < count; i++ {
		if err := w.pace.Wait(ctx); err != nil {
			return err
		}
		if err := w.dev.Scroll(ctx, g); err != nil {
			return err
		}
		w.logger.Debug("scroll gesture done", "direction", dir.String(), "n", i+1, "of", count)
	}
	return nil
}

func (w *Worker) finishGesture(guard time.Duration) {
	w.mu.Lock()
	w.inGesture = false
	w.guardUntil = time.Now().Add(guard)
	w.mu.Unlock()
}

func (w *Worker) fail(op string, err error) {
	w.logger.Warn("actuator failed", "op", op, "error", err)
	if w.cfg.OnError != nil {
		w.cfg.OnError(op, err)
	}
}

func round(v float64) int32 {
	return int32(math.Round(v))
}
