package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxRecent = 10

// Snapshot and event payloads published by gazecursord.
type snapshotData struct {
	SessionID       string            `json:"session_id"`
	Paused          bool              `json:"paused"`
	Calibrating     bool              `json:"calibrating"`
	CursorX         float64           `json:"cursor_x"`
	CursorY         float64           `json:"cursor_y"`
	CursorKnown     bool              `json:"cursor_known"`
	Edge            string            `json:"edge"`
	Glyph           string            `json:"glyph"`
	Progress        float64           `json:"progress"`
	ScreenWidth     float64           `json:"screen_width"`
	ScreenHeight    float64           `json:"screen_height"`
	Preset          string            `json:"preset"`
	Settings        map[string]string `json:"settings"`
	SettingsOrigin  string            `json:"settings_origin"`
	SourceConnected bool              `json:"source_connected"`
	SourceRemote    string            `json:"source_remote"`
	Stats           struct {
		Clicks  uint64 `json:"clicks"`
		Scrolls uint64 `json:"scrolls"`
	} `json:"stats"`
}

type pointData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type progressData struct {
	Progress float64 `json:"progress"`
}

type edgeData struct {
	Edge  string `json:"edge"`
	Glyph string `json:"glyph"`
}

type scrollData struct {
	Direction  string `json:"direction"`
	Count      int    `json:"count"`
	Suppressed bool   `json:"suppressed"`
}

type calibrationData struct {
	Phase    string  `json:"phase"`
	TargetX  float64 `json:"target_x"`
	TargetY  float64 `json:"target_y"`
	Accepted bool    `json:"accepted"`
	OffsetX  float64 `json:"offset_x"`
	OffsetY  float64 `json:"offset_y"`
	Samples  int     `json:"samples"`
	Reason   string  `json:"reason"`
}

type settingsData struct {
	Preset   string            `json:"preset"`
	Settings map[string]string `json:"settings"`
	Origin   string            `json:"origin"`
}

type rejectedData struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Error string `json:"error"`
}

type pausedData struct {
	Paused bool `json:"paused"`
}

type sourceData struct {
	Connected bool   `json:"connected"`
	Remote    string `json:"remote"`
	Error     string `json:"error"`
}

// Model is the monitor's Bubble Tea model.
type Model struct {
	url    string
	styles Styles
	bar    progress.Model
	width  int

	connected bool
	connErr   string

	session      string
	paused       bool
	calibrating  bool
	cursorKnown  bool
	cursorX      float64
	cursorY      float64
	screenW      float64
	screenH      float64
	edge         string
	glyph        string
	dwell        float64
	preset       string
	origin       string
	settings     map[string]string
	showSettings bool

	sourceConnected bool
	sourceRemote    string

	clicks  uint64
	scrolls uint64

	recent []string
}

// NewModel creates a monitor for the daemon at url.
func NewModel(url string) Model {
	return Model{
		url:    url,
		styles: DefaultStyles(),
		bar: progress.New(
			progress.WithGradient(string(ColorCyan), string(ColorPink)),
			progress.WithoutPercentage(),
		),
		width: 80,
		edge:  "none",
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "s":
			m.showSettings = !m.showSettings
		case "c":
			m.recent = nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case connMsg:
		m.connected = msg.Connected
		m.connErr = ""
		if msg.Err != nil {
			m.connErr = msg.Err.Error()
		}

	case frameMsg:
		m = m.apply(msg)
	}
	return m, nil
}

// apply folds one state frame into the model.
func (m Model) apply(f frameMsg) Model {
	switch f.Type {
	case "state_init":
		var d snapshotData
		if json.Unmarshal(f.Data, &d) != nil {
			return m
		}
		m.session = d.SessionID
		m.paused = d.Paused
		m.calibrating = d.Calibrating
		m.cursorKnown = d.CursorKnown
		m.cursorX, m.cursorY = d.CursorX, d.CursorY
		m.screenW, m.screenH = d.ScreenWidth, d.ScreenHeight
		m.edge, m.glyph = d.Edge, d.Glyph
		m.dwell = d.Progress
		m.preset, m.origin = d.Preset, d.SettingsOrigin
		m.settings = d.Settings
		m.sourceConnected, m.sourceRemote = d.SourceConnected, d.SourceRemote
		m.clicks, m.scrolls = d.Stats.Clicks, d.Stats.Scrolls
		m = m.log(f.Ts, "connected to session %s", shortID(d.SessionID))

	case "cursor_moved":
		var d pointData
		if json.Unmarshal(f.Data, &d) == nil {
			m.cursorKnown = true
			m.cursorX, m.cursorY = d.X, d.Y
		}

	case "dwell_progress":
		var d progressData
		if json.Unmarshal(f.Data, &d) == nil {
			m.dwell = d.Progress
		}

	case "edge_state":
		var d edgeData
		if json.Unmarshal(f.Data, &d) == nil {
			m.edge, m.glyph = d.Edge, d.Glyph
		}

	case "click":
		var d pointData
		if json.Unmarshal(f.Data, &d) == nil {
			m.clicks++
			m = m.log(f.Ts, "click at %.0f, %.0f", d.X, d.Y)
		}

	case "scroll":
		var d scrollData
		if json.Unmarshal(f.Data, &d) != nil {
			return m
		}
		if d.Suppressed {
			m = m.log(f.Ts, "scroll %s suppressed (cooldown)", d.Direction)
			return m
		}
		m.scrolls++
		m = m.log(f.Ts, "scroll %s x%d", d.Direction, d.Count)

	case "calibration":
		var d calibrationData
		if json.Unmarshal(f.Data, &d) != nil {
			return m
		}
		switch d.Phase {
		case "started":
			m.calibrating = true
			m = m.log(f.Ts, "calibration started: look at %.0f, %.0f", d.TargetX, d.TargetY)
		case "finished":
			m.calibrating = false
			if d.Accepted {
				m = m.log(f.Ts, "calibration accepted: offset %+.1f, %+.1f (%d samples)", d.OffsetX, d.OffsetY, d.Samples)
			} else {
				m = m.log(f.Ts, "calibration rejected: %s", d.Reason)
			}
		}

	case "settings_changed":
		var d settingsData
		if json.Unmarshal(f.Data, &d) == nil {
			m.preset, m.origin, m.settings = d.Preset, d.Origin, d.Settings
			m = m.log(f.Ts, "settings changed (%s, preset %s)", d.Origin, d.Preset)
		}

	case "settings_rejected":
		var d rejectedData
		if json.Unmarshal(f.Data, &d) == nil {
			m = m.log(f.Ts, "rejected %s=%s: %s", d.Key, d.Value, d.Error)
		}

	case "tracking_paused":
		var d pausedData
		if json.Unmarshal(f.Data, &d) == nil {
			m.paused = d.Paused
			if d.Paused {
				m = m.log(f.Ts, "tracking paused")
			} else {
				m = m.log(f.Ts, "tracking resumed")
			}
		}

	case "source_status":
		var d sourceData
		if json.Unmarshal(f.Data, &d) == nil {
			m.sourceConnected, m.sourceRemote = d.Connected, d.Remote
			if d.Connected {
				m = m.log(f.Ts, "tracker connected %s", d.Remote)
			} else if d.Error != "" {
				m = m.log(f.Ts, "tracker lost: %s", d.Error)
			} else {
				m = m.log(f.Ts, "tracker lost")
			}
		}
	}
	return m
}

func (m Model) log(ts time.Time, format string, args ...any) Model {
	if ts.IsZero() {
		ts = time.Now()
	}
	line := ts.Local().Format("15:04:05") + "  " + fmt.Sprintf(format, args...)
	recent := append([]string{line}, m.recent...)
	if len(recent) > maxRecent {
		recent = recent[:maxRecent]
	}
	m.recent = recent
	return m
}

func (m Model) View() string {
	s := m.styles
	var b strings.Builder

	b.WriteString(s.Title.Render("GAZE MONITOR"))
	b.WriteString(s.Dim.Render(m.url))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(s.Label.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	switch {
	case !m.connected:
		msg := "daemon unreachable"
		if m.connErr != "" {
			msg += ": " + m.connErr
		}
		row("daemon", s.Bad.Render(msg))
	case m.paused:
		row("state", s.Warn.Render("PAUSED"))
	case m.calibrating:
		row("state", s.Warn.Render("CALIBRATING"))
	default:
		row("state", s.Good.Render("TRACKING"))
	}

	if m.sourceConnected {
		row("tracker", s.Good.Render("connected")+" "+s.Dim.Render(m.sourceRemote))
	} else {
		row("tracker", s.Bad.Render("disconnected"))
	}

	if m.cursorKnown {
		pos := fmt.Sprintf("%6.0f, %-6.0f", m.cursorX, m.cursorY)
		if m.screenW > 0 {
			pos += s.Dim.Render(fmt.Sprintf(" of %.0fx%.0f", m.screenW, m.screenH))
		}
		row("cursor", s.Value.Render(pos))
	} else {
		row("cursor", s.Dim.Render("unknown"))
	}

	edge := s.Value.Render(m.edge)
	if m.glyph != "" {
		edge += " " + s.Glyph.Render(m.glyph)
	}
	row("edge", edge)

	barWidth := m.width - 20
	if barWidth < 10 {
		barWidth = 10
	}
	m.bar.Width = barWidth
	row("dwell", m.bar.ViewAs(m.dwell)+s.Dim.Render(fmt.Sprintf(" %3.0f%%", m.dwell*100)))

	row("preset", s.Value.Render(m.preset)+s.Dim.Render(" from "+m.origin))
	row("counts", s.Value.Render(fmt.Sprintf("%d clicks  %d scrolls", m.clicks, m.scrolls)))

	if m.showSettings && len(m.settings) > 0 {
		b.WriteString("\n")
		b.WriteString(s.Panel.Render(m.settingsView()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	events := s.Dim.Render("no events yet")
	if len(m.recent) > 0 {
		events = s.Event.Render(strings.Join(m.recent, "\n"))
	}
	b.WriteString(s.Panel.Width(max(m.width-4, 20)).Render(events))
	b.WriteString("\n")

	b.WriteString(s.Footer.Render("q quit  s settings  c clear"))
	return lipgloss.NewStyle().Render(b.String())
}

func (m Model) settingsView() string {
	keys := make([]string, 0, len(m.settings))
	for k := range m.settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%-34s %s", k, m.settings[k])
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
