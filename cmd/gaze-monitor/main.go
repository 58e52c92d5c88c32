package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:8765/ws/state", "gazecursord state websocket URL")
		raw   = flag.Bool("raw", false, "Print frames as JSON instead of the interactive view")
		quiet = flag.Bool("quiet", false, "With -raw, skip cursor_moved and dwell_progress frames")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	if *raw {
		runRaw(u.String(), *quiet)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	program := tea.NewProgram(NewModel(u.String()), tea.WithAltScreen())
	go stream(ctx, u.String(), program.Send)

	if _, err := program.Run(); err != nil {
		log.Printf("Error running program: %v", err)
		os.Exit(1)
	}
}

// runRaw prints every frame until interrupted.
func runRaw(url string, quiet bool) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	log.Printf("connecting to %s...", url)
	conn, _, err := d.Dial(url, nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("connected! (press Ctrl+C to exit)")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			printFrame(message, quiet)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

func printFrame(message []byte, quiet bool) {
	f, err := decodeFrame(message)
	if err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}
	if quiet && (f.Type == "cursor_moved" || f.Type == "dwell_progress") {
		return
	}

	var data any
	if len(f.Data) > 0 && json.Unmarshal(f.Data, &data) == nil {
		pretty, _ := json.MarshalIndent(data, "", "  ")
		fmt.Printf("[%s]\n%s\n\n", f.Type, string(pretty))
		return
	}
	fmt.Printf("[%s]\n", f.Type)
}
