package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// Overlay and monitor clients connect here to render the cursor, dwell ring,
// edge glyph and calibration target.
//
// Design constraints:
//   - DaemonState remains daemon-owned; never expose *DaemonState to other goroutines.
//   - Initial state snapshot on connect goes through the event loop.
//   - WS broadcasts originate from reducer-emitted broadcasts (ReduceResult.Broadcasts).
//   - Slow clients are disconnected when their send buffer fills.
//
// Messages are JSON text frames with an envelope: {type, ts, data}. The
// first message on connect is "state_init".
//
// ============================================================================

// wsMessageSnapshot is the JSON `data` payload for "state_init".
type wsMessageSnapshot struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`

	Paused      bool `json:"paused"`
	Calibrating bool `json:"calibrating"`

	CursorX     float64 `json:"cursor_x"`
	CursorY     float64 `json:"cursor_y"`
	CursorKnown bool    `json:"cursor_known"`

	Edge     string  `json:"edge"`
	Glyph    string  `json:"glyph"`
	Progress float64 `json:"progress"`

	ScreenWidth  float64 `json:"screen_width"`
	ScreenHeight float64 `json:"screen_height"`

	Preset         string            `json:"preset"`
	Settings       map[string]string `json:"settings"`
	SettingsOrigin string            `json:"settings_origin"`

	SourceConnected bool   `json:"source_connected"`
	SourceRemote    string `json:"source_remote,omitempty"`

	Stats wsStats `json:"stats"`
}

type wsStats struct {
	Samples          uint64 `json:"samples"`
	InvalidSamples   uint64 `json:"invalid_samples"`
	DroppedPaused    uint64 `json:"dropped_paused"`
	Clicks           uint64 `json:"clicks"`
	Scrolls          uint64 `json:"scrolls"`
	ScrollSuppressed uint64 `json:"scroll_suppressed"`
	ActuatorErrors   uint64 `json:"actuator_errors"`
}

type wsCursorData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type wsDwellProgressData struct {
	Progress float64 `json:"progress"`
}

type wsEdgeStateData struct {
	Edge  string `json:"edge"`
	Glyph string `json:"glyph"`
}

type wsScrollData struct {
	Direction  string `json:"direction"`
	Count      int    `json:"count,omitempty"`
	Suppressed bool   `json:"suppressed,omitempty"`
}

type wsFeedbackPulseData struct {
	DurationMs int64 `json:"duration_ms"`
}

type wsCalibrationData struct {
	Phase    string  `json:"phase"`
	TargetX  float64 `json:"target_x,omitempty"`
	TargetY  float64 `json:"target_y,omitempty"`
	Accepted bool    `json:"accepted"`
	OffsetX  float64 `json:"offset_x"`
	OffsetY  float64 `json:"offset_y"`
	Samples  int     `json:"samples,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

type wsSettingsData struct {
	Preset   string            `json:"preset"`
	Settings map[string]string `json:"settings"`
	Origin   string            `json:"origin"`
}

type wsSettingsRejectedData struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Error string `json:"error"`
}

type wsPausedData struct {
	Paused bool `json:"paused"`
}

type wsSourceData struct {
	Connected bool   `json:"connected"`
	Remote    string `json:"remote,omitempty"`
	Error     string `json:"error,omitempty"`
}

// wsOutboundEvent is a pre-typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means use now
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero means 64.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size. Zero means 256.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 64
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 256
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 64
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// wsCoalesceWindow bounds how often high-rate updates (cursor position, dwell
// progress) reach clients. Latest value wins within a window.
const wsCoalesceWindow = 50 * time.Millisecond

// coalescedTypes are flushed in this order.
var coalescedTypes = []string{"cursor_moved", "dwell_progress"}

// closeStatus extracts a human-readable websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", "write error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", "ping error", err)
				return
			}
		}
	}
}

// readPump reads and discards incoming messages to detect disconnects and
// handle control frames. It exits on read error, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", "read error", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

func (c *Client) logExit(pump, what string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting ("+what+")", "remote_addr", c.remoteAddr, "error", err)
}

// ============================================================================
// HTTP Handler + server wiring helpers
// ============================================================================

type Server struct {
	logger *slog.Logger

	hub *Hub

	// Required for the initial snapshot request on connect.
	events chan<- Event
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the WS state server components. Call Register on a mux,
// start hub.Run(ctx), and start the broadcaster loop.
func NewServer(logger *slog.Logger, events chan<- Event, cfg ServerConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg.Hub),
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	// Local overlay clients only; the listener binds to loopback by default.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Register client first so broadcasts can reach it.
	s.hub.register <- client

	// Pumps must outlive the handler: net/http cancels r.Context() on return.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	if s.events == nil {
		return
	}

	reply := make(chan StateSnapshot, 1)
	select {
	case <-r.Context().Done():
		return
	case s.events <- RequestStateSnapshot{Reply: reply}:
	}

	waitCtx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	select {
	case <-waitCtx.Done():
		if !errors.Is(waitCtx.Err(), context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", waitCtx.Err())
		}
		return

	case snap := <-reply:
		now := time.Now().UTC()
		initMsg, mErr := json.Marshal(envelope{
			Type: "state_init",
			Ts:   &now,
			Data: snapshotPayload(snap),
		})
		if mErr != nil {
			s.logger.Warn("ws snapshot marshal failed", "error", mErr)
			return
		}
		// If the client is already slow, disconnect.
		select {
		case client.send <- initMsg:
		default:
			s.hub.unregister <- client
		}
	}
}

func snapshotPayload(snap StateSnapshot) wsMessageSnapshot {
	return wsMessageSnapshot{
		SessionID:       snap.SessionID,
		StartedAt:       snap.StartedAt,
		Paused:          snap.Paused,
		Calibrating:     snap.Calibrating,
		CursorX:         snap.CursorX,
		CursorY:         snap.CursorY,
		CursorKnown:     snap.CursorKnown,
		Edge:            snap.Edge,
		Glyph:           snap.Glyph,
		Progress:        snap.Progress,
		ScreenWidth:     snap.ScreenWidth,
		ScreenHeight:    snap.ScreenHeight,
		Preset:          snap.Preset,
		Settings:        snap.Settings,
		SettingsOrigin:  snap.SettingsOrigin,
		SourceConnected: snap.SourceConnected,
		SourceRemote:    snap.SourceRemote,
		Stats: wsStats{
			Samples:          snap.Stats.Samples,
			InvalidSamples:   snap.Stats.InvalidSamples,
			DroppedPaused:    snap.Stats.DroppedPaused,
			Clicks:           snap.Stats.Clicks,
			Scrolls:          snap.Stats.Scrolls,
			ScrollSuppressed: snap.Stats.ScrollSuppressed,
			ActuatorErrors:   snap.Stats.ActuatorErrors,
		},
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads reducer-emitted StateBroadcast events, marshals them,
// and broadcasts them to all hub clients. Intended to run as a single goroutine.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	// Latest pending value per coalesced type. Flushed at most once every
	// wsCoalesceWindow, even if updates keep arriving (no debounce-on-silence).
	pending := make(map[string]wsOutboundEvent, len(coalescedTypes))
	var timer *time.Timer
	var timerCh <-chan time.Time

	send := func(ev wsOutboundEvent) {
		ts := ev.At
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		msg, err := json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushPending := func() {
		for _, typ := range coalescedTypes {
			if ev, ok := pending[typ]; ok {
				delete(pending, typ)
				send(ev)
			}
		}
	}

	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
		timerCh = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushPending()
			stopTimer()
			return

		case <-timerCh:
			flushPending()
			timer = nil
			timerCh = nil

		case b, ok := <-src:
			if !ok {
				flushPending()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if isCoalesced(ev.Type) {
				pending[ev.Type] = ev
				if timer == nil {
					timer = time.NewTimer(wsCoalesceWindow)
					timerCh = timer.C
				}
				continue
			}

			// Discrete event: flush pending state first so clients observe
			// the cursor position that produced it.
			flushPending()
			stopTimer()
			send(ev)
		}
	}
}

func isCoalesced(typ string) bool {
	for _, t := range coalescedTypes {
		if t == typ {
			return true
		}
	}
	return false
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastCursorMoved:
		return wsOutboundEvent{Type: "cursor_moved", Data: wsCursorData{X: ev.X, Y: ev.Y}, At: ev.At}, true

	case BroadcastDwellProgress:
		return wsOutboundEvent{Type: "dwell_progress", Data: wsDwellProgressData{Progress: ev.Progress}, At: ev.At}, true

	case BroadcastEdgeState:
		return wsOutboundEvent{
			Type: "edge_state",
			Data: wsEdgeStateData{Edge: ev.Edge.String(), Glyph: ev.Glyph},
			At:   ev.At,
		}, true

	case BroadcastClick:
		return wsOutboundEvent{Type: "click", Data: wsCursorData{X: ev.X, Y: ev.Y}, At: ev.At}, true

	case BroadcastScroll:
		return wsOutboundEvent{
			Type: "scroll",
			Data: wsScrollData{Direction: ev.Direction.String(), Count: ev.Count, Suppressed: ev.Suppressed},
			At:   ev.At,
		}, true

	case BroadcastFeedbackPulse:
		return wsOutboundEvent{
			Type: "feedback_pulse",
			Data: wsFeedbackPulseData{DurationMs: ev.Duration.Milliseconds()},
			At:   ev.At,
		}, true

	case BroadcastCalibration:
		return wsOutboundEvent{
			Type: "calibration",
			Data: wsCalibrationData{
				Phase:    ev.Phase,
				TargetX:  ev.TargetX,
				TargetY:  ev.TargetY,
				Accepted: ev.Accepted,
				OffsetX:  ev.OffsetX,
				OffsetY:  ev.OffsetY,
				Samples:  ev.Samples,
				Reason:   ev.Reason,
			},
			At: ev.At,
		}, true

	case BroadcastSettingsChanged:
		return wsOutboundEvent{
			Type: "settings_changed",
			Data: wsSettingsData{Preset: ev.Preset, Settings: ev.Settings, Origin: ev.Origin},
			At:   ev.At,
		}, true

	case BroadcastSettingsRejected:
		return wsOutboundEvent{
			Type: "settings_rejected",
			Data: wsSettingsRejectedData{Key: ev.Key, Value: ev.Value, Error: ev.Error},
			At:   ev.At,
		}, true

	case BroadcastTrackingPaused:
		return wsOutboundEvent{Type: "tracking_paused", Data: wsPausedData{Paused: ev.Paused}, At: ev.At}, true

	case BroadcastSourceStatus:
		return wsOutboundEvent{
			Type: "source_status",
			Data: wsSourceData{Connected: ev.Connected, Remote: ev.Remote, Error: ev.Error},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
