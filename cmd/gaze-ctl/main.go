package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strings"
	"time"
)

// ============================================================================
// gaze-ctl - Command-line IPC Client
// ============================================================================
// This tool sends commands to the gazecursord daemon via IPC.
//
// Usage:
//   gaze-ctl pause
//   gaze-ctl calibrate
//   gaze-ctl preset responsive
//   gaze-ctl set fixation_duration 800
//   gaze-ctl status
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/gazecursord.sock)
//   -json           Print status as JSON
// ============================================================================

const defaultSocketPath = "/tmp/gazecursord.sock"

// request is the line-delimited JSON envelope the daemon reads.
type request struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type setPreset struct {
	Preset string `json:"preset"`
}

type setSetting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// stateView is the subset of the daemon snapshot gaze-ctl prints.
type stateView struct {
	SessionID       string            `json:"session_id"`
	StartedAt       time.Time         `json:"started_at"`
	Paused          bool              `json:"paused"`
	Calibrating     bool              `json:"calibrating"`
	CursorX         float64           `json:"cursor_x"`
	CursorY         float64           `json:"cursor_y"`
	CursorKnown     bool              `json:"cursor_known"`
	Edge            string            `json:"edge"`
	Glyph           string            `json:"glyph"`
	Progress        float64           `json:"progress"`
	Preset          string            `json:"preset"`
	Settings        map[string]string `json:"settings"`
	SettingsOrigin  string            `json:"settings_origin"`
	SourceConnected bool              `json:"source_connected"`
	SourceRemote    string            `json:"source_remote"`
	Stats           map[string]uint64 `json:"stats"`
}

// response represents the daemon's response
type response struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

var errUsage = errors.New("usage")

func main() {
	socketPath := defaultSocketPath
	jsonOut := false

	args := os.Args[1:]
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		switch args[0] {
		case "-socket", "--socket":
			if len(args) < 2 {
				fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
				os.Exit(1)
			}
			socketPath = args[1]
			args = args[2:]
		case "-json", "--json":
			jsonOut = true
			args = args[1:]
		case "-h", "--help":
			printUsage()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "error: unknown option: %s\n", args[0])
			printUsage()
			os.Exit(1)
		}
	}

	req, err := buildRequest(args)
	if errors.Is(err, errUsage) {
		printUsage()
		if len(args) > 0 && args[0] == "help" {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	resp, err := send(socketPath, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if req.Type != "get_state" {
		fmt.Println("ok")
		return
	}
	if jsonOut {
		fmt.Println(string(resp.State))
		return
	}
	var st stateView
	if err := json.Unmarshal(resp.State, &st); err != nil {
		fmt.Fprintf(os.Stderr, "error: decode state: %v\n", err)
		os.Exit(1)
	}
	printState(os.Stdout, st)
}

// buildRequest maps command-line arguments to a daemon request.
func buildRequest(args []string) (request, error) {
	if len(args) == 0 {
		return request{}, errUsage
	}

	switch args[0] {
	case "pause":
		return request{Type: "pause_tracking"}, nil
	case "resume":
		return request{Type: "resume_tracking"}, nil
	case "toggle":
		return request{Type: "toggle_pause"}, nil
	case "calibrate":
		return request{Type: "start_calibration"}, nil
	case "cancel":
		return request{Type: "cancel_calibration"}, nil
	case "reset":
		return request{Type: "reset_detectors"}, nil
	case "status", "state":
		return request{Type: "get_state"}, nil

	case "preset":
		if len(args) < 2 {
			return request{}, fmt.Errorf("preset requires a name (stability, balanced, responsive, high_responsive)")
		}
		return withData("set_preset", setPreset{Preset: args[1]})

	case "set":
		if len(args) < 3 {
			return request{}, fmt.Errorf("set requires a key and a value")
		}
		return withData("set_setting", setSetting{Key: args[1], Value: args[2]})

	case "help":
		return request{}, errUsage

	default:
		return request{}, fmt.Errorf("unknown command: %s", args[0])
	}
}

func withData(typ string, v any) (request, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return request{}, fmt.Errorf("marshal %s: %w", typ, err)
	}
	return request{Type: typ, Data: data}, nil
}

func send(socketPath string, req request) (response, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return response{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	data, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("marshal request: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return response{}, fmt.Errorf("send request: %w", err)
	}

	var resp response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status == "error" {
		return resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}

func printState(w io.Writer, st stateView) {
	state := "tracking"
	switch {
	case st.Paused:
		state = "paused"
	case st.Calibrating:
		state = "calibrating"
	}
	source := "disconnected"
	if st.SourceConnected {
		source = "connected " + st.SourceRemote
	}

	fmt.Fprintf(w, "state:    %s\n", state)
	fmt.Fprintf(w, "session:  %s (up %s)\n", st.SessionID, time.Since(st.StartedAt).Truncate(time.Second))
	fmt.Fprintf(w, "source:   %s\n", source)
	if st.CursorKnown {
		fmt.Fprintf(w, "cursor:   %.0f, %.0f\n", st.CursorX, st.CursorY)
	} else {
		fmt.Fprintf(w, "cursor:   unknown\n")
	}
	fmt.Fprintf(w, "edge:     %s %s\n", st.Edge, st.Glyph)
	fmt.Fprintf(w, "dwell:    %.0f%%\n", st.Progress*100)
	fmt.Fprintf(w, "preset:   %s (from %s)\n", st.Preset, st.SettingsOrigin)

	if len(st.Stats) > 0 {
		fmt.Fprintln(w, "stats:")
		for _, k := range sortedKeys(st.Stats) {
			fmt.Fprintf(w, "  %-18s %d\n", k, st.Stats[k])
		}
	}
	if len(st.Settings) > 0 {
		fmt.Fprintln(w, "settings:")
		for _, k := range sortedKeys(st.Settings) {
			fmt.Fprintf(w, "  %-34s %s\n", k, st.Settings[k])
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `gaze-ctl - Control the gazecursord daemon via IPC

Usage:
  gaze-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/gazecursord.sock)
  -json           Print status as JSON

Commands:
  pause                   Stop moving the pointer
  resume                  Resume tracking
  toggle                  Toggle pause
  calibrate               Start a one-point calibration (look at the screen center)
  cancel                  Cancel a running calibration
  reset                   Reset dwell and edge detectors
  preset <name>           Select a smoothing preset
  set <key> <value>       Change one setting (e.g. fixation_duration 800)
  status                  Show daemon state
  help, -h, --help        Show this help message

Examples:
  gaze-ctl preset high_responsive
  gaze-ctl set edge_trigger_ms 2000
  gaze-ctl -socket /run/gazecursord.sock status
`)
}
