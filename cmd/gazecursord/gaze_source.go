package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Gaze source: tracker frames over WebSocket
// ============================================================================
//
// The tracker publishes JSON frames, either one object per message or an
// array of objects:
//
//	{"x": 812.4, "y": 377.0, "timestamp_ms": 1712345678901, "state": "SUCCESS"}
//
// A frame is valid when "valid" is true or, if "valid" is absent, when
// "state" is "SUCCESS". Frames without a timestamp are stamped on arrival.
//
// Two transports are supported:
//   - dial:   the daemon connects to the tracker and reconnects with backoff
//   - listen: the tracker connects to the daemon's HTTP server
//
// ============================================================================

const (
	sourceBackoffMin = 500 * time.Millisecond
	sourceBackoffMax = 5 * time.Second
)

// trackingStateSuccess is the tracker state for a usable gaze point.
const trackingStateSuccess = "SUCCESS"

type gazeFrame struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	TimestampMs int64   `json:"timestamp_ms"`
	Timestamp   int64   `json:"timestamp"`
	Valid       *bool   `json:"valid"`
	State       string  `json:"state"`
}

func (f gazeFrame) sample(now time.Time) GazeSampleReceived {
	ts := f.TimestampMs
	if ts == 0 {
		ts = f.Timestamp
	}
	if ts == 0 {
		ts = now.UnixMilli()
	}
	valid := f.State == trackingStateSuccess
	if f.Valid != nil {
		valid = *f.Valid
	}
	return GazeSampleReceived{X: f.X, Y: f.Y, TimestampMs: ts, Valid: valid}
}

// parseGazeFrames decodes one websocket message into samples.
func parseGazeFrames(data []byte, now time.Time) ([]GazeSampleReceived, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty gaze frame")
	}

	if data[0] == '[' {
		var frames []gazeFrame
		if err := json.Unmarshal(data, &frames); err != nil {
			return nil, fmt.Errorf("decode gaze frames: %w", err)
		}
		out := make([]GazeSampleReceived, 0, len(frames))
		for _, f := range frames {
			out = append(out, f.sample(now))
		}
		return out, nil
	}

	var f gazeFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode gaze frame: %w", err)
	}
	return []GazeSampleReceived{f.sample(now)}, nil
}

// gazePump reads frames from one connection into the event queue.
type gazePump struct {
	events  chan<- Event
	timeout time.Duration
	logger  *slog.Logger

	dropped atomic.Uint64
}

// run blocks until the connection fails, goes silent for longer than timeout,
// or ctx is canceled.
func (p *gazePump) run(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		if p.timeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(p.timeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		samples, err := parseGazeFrames(data, time.Now())
		if err != nil {
			p.logger.Debug("gaze frame rejected", "error", err)
			continue
		}
		for _, s := range samples {
			select {
			case p.events <- s:
			default:
				// A stale sample is worthless; the next one supersedes it.
				if n := p.dropped.Add(1); n%100 == 1 {
					p.logger.Warn("event queue full, dropping gaze samples", "dropped", n)
				}
			}
		}
	}
}

func sendEvent(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// runGazeDial connects to the tracker at rawURL and keeps reconnecting until
// ctx is canceled.
func runGazeDial(ctx context.Context, rawURL string, timeout time.Duration, events chan<- Event, logger *slog.Logger) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid gaze source url: %w", err)
	}

	d := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	pump := &gazePump{events: events, timeout: timeout, logger: logger}
	backoff := sourceBackoffMin

	for {
		conn, _, err := d.DialContext(ctx, u.String(), nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("gaze source connect failed; retrying...", "url", u.String(), "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, sourceBackoffMax)
			continue
		}

		backoff = sourceBackoffMin
		logger.Info("gaze source connected", "url", u.String())
		sendEvent(ctx, events, SourceConnected{Remote: u.String()})

		err = pump.run(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("gaze source disconnected", "url", u.String(), "error", err)
		sendEvent(ctx, events, SourceDisconnected{Err: err})
	}
}

// gazeIngest accepts tracker connections on the daemon's HTTP server.
type gazeIngest struct {
	ctx     context.Context
	pump    *gazePump
	logger  *slog.Logger
	active  atomic.Int32
	upgrade websocket.Upgrader
}

func newGazeIngest(ctx context.Context, events chan<- Event, timeout time.Duration, logger *slog.Logger) *gazeIngest {
	return &gazeIngest{
		ctx:    ctx,
		pump:   &gazePump{events: events, timeout: timeout, logger: logger},
		logger: logger,
		upgrade: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP runs the pump for the life of the connection.
func (g *gazeIngest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrade.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("gaze ingest upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	n := g.active.Add(1)
	defer g.active.Add(-1)
	if n > 1 {
		g.logger.Warn("multiple gaze sources connected; samples will interleave", "sources", n)
	}

	g.logger.Info("gaze source connected", "remote_addr", r.RemoteAddr)
	sendEvent(g.ctx, g.pump.events, SourceConnected{Remote: r.RemoteAddr})

	err = g.pump.run(g.ctx, conn)
	if g.ctx.Err() != nil {
		return
	}
	g.logger.Warn("gaze source disconnected", "remote_addr", r.RemoteAddr, "error", err)
	sendEvent(g.ctx, g.pump.events, SourceDisconnected{Err: err})
}
