package main

import (
	"context"
	"encoding/json"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const (
	backoffMin = 500 * time.Millisecond
	backoffMax = 5 * time.Second
)

// frameMsg is one state websocket message.
type frameMsg struct {
	Type string
	Ts   time.Time
	Data json.RawMessage
}

// connMsg reports the link to the daemon.
type connMsg struct {
	Connected bool
	Err       error
}

type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func decodeFrame(raw []byte) (frameMsg, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return frameMsg{}, err
	}
	f := frameMsg{Type: env.Type, Data: env.Data}
	if env.Ts != nil {
		f.Ts = *env.Ts
	}
	return f, nil
}

// stream connects to the daemon's state websocket and forwards frames to
// send until ctx is canceled, reconnecting with backoff.
func stream(ctx context.Context, url string, send func(tea.Msg)) {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	backoff := backoffMin

	for {
		conn, _, err := d.DialContext(ctx, url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			send(connMsg{Connected: false, Err: err})
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, backoffMax)
			continue
		}

		backoff = backoffMin
		send(connMsg{Connected: true})

		err = readFrames(ctx, conn, send)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		send(connMsg{Connected: false, Err: err})
	}
}

func readFrames(ctx context.Context, conn *websocket.Conn, send func(tea.Msg)) error {
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
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f, err := decodeFrame(raw)
		if err != nil {
			continue
		}
		send(f)
	}
}
