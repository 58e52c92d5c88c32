package main

import (
	"math"
	"time"

	"github.com/eorua8801/restructured-cursor/internal/pipeline"
	"github.com/eorua8801/restructured-cursor/internal/settings"
)

// This file implements the reducer-style architecture building blocks:
//
//   - Events: inputs to the reducer (IPC actions, gaze samples, ticks, effect observations)
//   - Commands: side effects requested by the reducer (pointer actuation, persistence)
//   - Broadcasts: externally visible state changes for the state websocket
//   - Reduce(): computes next state + commands, without performing I/O
//
// The gaze pipeline lives inside DaemonState and is only driven from here, so
// every sample, timer and settings change is serialized through one goroutine.

// ==============================
// Events
// ==============================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// Tick is emitted by the daemon loop at a fixed cadence.
// Dt is wall-clock delta in seconds between ticks.
type Tick struct {
	Now time.Time
	Dt  float64
}

func (Tick) eventMarker() {}

// TimedEvent stamps an event with its arrival time.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// SettingsLoaded replaces the active settings. Origin is "store", "profile"
// or "default".
type SettingsLoaded struct {
	Settings settings.UserSettings
	Origin   string
}

func (SettingsLoaded) eventMarker() {}

// SettingsSaved is emitted after a CmdSaveSettings completes.
type SettingsSaved struct {
	At  time.Time
	Err error
}

func (SettingsSaved) eventMarker() {}

// ActuatorFailed is emitted when a pointer command fails.
type ActuatorFailed struct {
	Op  string
	Err error
	At  time.Time
}

func (ActuatorFailed) eventMarker() {}

// RequestStateSnapshot asks the daemon for a StateSnapshot.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// SourceConnected is emitted when a tracker stream attaches.
type SourceConnected struct {
	Remote string
}

func (SourceConnected) eventMarker() {}

// SourceDisconnected is emitted when the tracker stream ends.
type SourceDisconnected struct {
	Err error
}

func (SourceDisconnected) eventMarker() {}

// ==============================
// Reducer input/output
// ==============================

// ReduceConfig holds host policy the reducer needs.
type ReduceConfig struct {
	// CalibrationTimeout aborts a calibration that has not collected enough
	// samples. Zero disables the timeout.
	CalibrationTimeout time.Duration
}

// ReduceResult is the output of Reduce(): next state plus Commands to execute
// and Broadcasts to publish.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

type reduction struct {
	s   *DaemonState
	cfg ReduceConfig
	at  time.Time

	cmds   []Command
	bcasts []StateBroadcast
}

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the returned state
//
// The daemon loop must:
// - execute Commands
// - translate outcomes into Events
// - feed those Events back into Reduce()
func Reduce(s *DaemonState, e Event, cfg ReduceConfig) ReduceResult {
	if s == nil {
		s = NewDaemonState(settings.Default(), pipeline.Screen{Width: defaultScreenWidth, Height: defaultScreenHeight}, "", time.Now(), autoCalibrationDelay)
	}

	r := &reduction{s: s, cfg: cfg}
	if te, ok := e.(TimedEvent); ok {
		e = te.Event
		r.at = te.At
	}
	if r.at.IsZero() {
		if t, ok := e.(Tick); ok {
			r.at = t.Now
		} else {
			r.at = time.Now()
		}
	}

	switch ev := e.(type) {
	case Tick:
		r.tick()

	case GazeSampleReceived:
		r.sample(ev)

	case PauseTracking:
		r.setPaused(true)

	case ResumeTracking:
		r.setPaused(false)

	case TogglePause:
		r.setPaused(!s.Paused)

	case StartCalibration:
		// Ignored while paused: no samples would arrive to finish it.
		if !s.Paused && !s.Pipeline.Calibrating() {
			r.startCalibration()
		}

	case CancelCalibration:
		r.apply(s.Pipeline.CancelCalibration(pipeline.ReasonCancelled))

	case ResetDetectors:
		r.apply(s.Pipeline.Reset())

	case SetPreset:
		p := settings.ParsePreset(ev.Preset)
		r.replaceSettings(s.Pipeline.Settings().With(settings.WithPreset(p)), "ipc", true)

	case SetSetting:
		next, err := s.Pipeline.Settings().Set(ev.Key, ev.Value)
		if err == nil {
			err = next.Validate()
		}
		if err != nil {
			r.bcasts = append(r.bcasts, BroadcastSettingsRejected{
				Key:   ev.Key,
				Value: ev.Value,
				Error: err.Error(),
				At:    r.at,
			})
			break
		}
		r.replaceSettings(next, "ipc", true)

	case SettingsLoaded:
		// Profile edits are mirrored into the store; store loads are not
		// written back.
		r.replaceSettings(ev.Settings, ev.Origin, ev.Origin == "profile")

	case SettingsSaved:
		if ev.Err == nil {
			s.SettingsSavedAt = ev.At
		}

	case ActuatorFailed:
		s.Stats.ActuatorErrors++

	case SourceConnected:
		s.Source = SourceState{Connected: true, Remote: ev.Remote, At: r.at}
		r.bcasts = append(r.bcasts, BroadcastSourceStatus{Connected: true, Remote: ev.Remote, At: r.at})

	case SourceDisconnected:
		remote := s.Source.Remote
		s.Source = SourceState{Connected: false, Remote: remote, At: r.at}
		r.apply(s.Pipeline.Reset())
		b := BroadcastSourceStatus{Connected: false, Remote: remote, At: r.at}
		if ev.Err != nil {
			b.Error = ev.Err.Error()
		}
		r.bcasts = append(r.bcasts, b)

	case RequestStateSnapshot:
		r.cmds = append(r.cmds, CmdPublishStateSnapshot{Reply: ev.Reply, Snapshot: s.Snapshot()})

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{
		State:      s,
		Commands:   r.cmds,
		Broadcasts: r.bcasts,
	}
}

func (r *reduction) tick() {
	s := r.s
	now := r.at

	if s.Pipeline.Calibrating() && !s.Calibration.Deadline.IsZero() && !now.Before(s.Calibration.Deadline) {
		r.apply(s.Pipeline.CancelCalibration(pipeline.ReasonTimeout))
	}

	if !s.Calibration.AutoAt.IsZero() && !s.Calibration.AutoDone && !now.Before(s.Calibration.AutoAt) && !s.Paused {
		s.Calibration.AutoDone = true
		if s.Pipeline.Settings().AutoOnePointCalibration && !s.Pipeline.Calibrating() {
			r.startCalibration()
		}
	}
}

func (r *reduction) sample(ev GazeSampleReceived) {
	s := r.s
	if s.Paused {
		s.Stats.DroppedPaused++
		return
	}
	if !ev.Valid || math.IsNaN(ev.X) || math.IsNaN(ev.Y) || math.IsInf(ev.X, 0) || math.IsInf(ev.Y, 0) {
		s.Stats.InvalidSamples++
		return
	}

	s.Stats.Samples++
	s.LastSampleMs = ev.TimestampMs
	s.LastSampleAt = r.at

	r.apply(s.Pipeline.ProcessSample(pipeline.GazeSample{
		X:           ev.X,
		Y:           ev.Y,
		TimestampMs: ev.TimestampMs,
		Valid:       true,
	}))
}

func (r *reduction) setPaused(paused bool) {
	s := r.s
	if s.Paused == paused {
		return
	}
	s.Paused = paused
	if paused {
		r.apply(s.Pipeline.CancelCalibration(pipeline.ReasonCancelled))
		r.apply(s.Pipeline.Reset())
	}
	r.bcasts = append(r.bcasts, BroadcastTrackingPaused{Paused: paused, At: r.at})
}

func (r *reduction) startCalibration() {
	r.apply(r.s.Pipeline.StartCalibration(r.s.sampleClock(r.at)))
}

func (r *reduction) replaceSettings(next settings.UserSettings, origin string, persist bool) {
	s := r.s
	s.Pipeline.Reconfigure(next)
	s.SettingsOrigin = origin
	if persist {
		r.cmds = append(r.cmds, CmdSaveSettings{Settings: next})
	}
	r.bcasts = append(r.bcasts, BroadcastSettingsChanged{
		Preset:   string(next.Preset),
		Settings: next.Entries(),
		Origin:   origin,
		At:       r.at,
	})
}

// apply translates pipeline output into commands, broadcasts and state.
func (r *reduction) apply(events []pipeline.Event) {
	s := r.s
	at := r.at

	for _, pe := range events {
		switch ev := pe.(type) {
		case pipeline.CursorMoved:
			s.CursorKnown = true
			r.cmds = append(r.cmds, CmdMoveCursor{X: ev.X, Y: ev.Y})
			r.bcasts = append(r.bcasts, BroadcastCursorMoved{X: ev.X, Y: ev.Y, At: at})

		case pipeline.DwellProgress:
			r.bcasts = append(r.bcasts, BroadcastDwellProgress{Progress: ev.Progress, At: at})

		case pipeline.EdgeState:
			r.bcasts = append(r.bcasts, BroadcastEdgeState{Edge: ev.Edge, Glyph: ev.Glyph, At: at})

		case pipeline.Click:
			s.Stats.Clicks++
			r.cmds = append(r.cmds, CmdClick{X: ev.X, Y: ev.Y})
			r.bcasts = append(r.bcasts, BroadcastClick{X: ev.X, Y: ev.Y, At: at})

		case pipeline.Scroll:
			s.Stats.Scrolls++
			r.cmds = append(r.cmds, CmdScroll{Direction: ev.Direction, Count: ev.Count})
			r.bcasts = append(r.bcasts, BroadcastScroll{Direction: ev.Direction, Count: ev.Count, At: at})

		case pipeline.ScrollSuppressed:
			s.Stats.ScrollSuppressed++
			r.bcasts = append(r.bcasts, BroadcastScroll{Direction: ev.Direction, Suppressed: true, At: at})

		case pipeline.FeedbackPulse:
			r.cmds = append(r.cmds, CmdFeedbackPulse{Duration: ev.Duration})
			r.bcasts = append(r.bcasts, BroadcastFeedbackPulse{Duration: ev.Duration, At: at})

		case pipeline.CalibrationStarted:
			s.Calibration.Deadline = time.Time{}
			if r.cfg.CalibrationTimeout > 0 {
				s.Calibration.Deadline = at.Add(r.cfg.CalibrationTimeout)
			}
			r.bcasts = append(r.bcasts, BroadcastCalibration{
				Phase:   "started",
				TargetX: ev.TargetX,
				TargetY: ev.TargetY,
				At:      at,
			})

		case pipeline.CalibrationFinished:
			s.Calibration.Deadline = time.Time{}
			s.Calibration.LastAccepted = ev.Accepted
			s.Calibration.LastOffsetX = ev.OffsetX
			s.Calibration.LastOffsetY = ev.OffsetY
			s.Calibration.LastAt = at

			r.cmds = append(r.cmds, CmdRecordCalibration{Record: settings.CalibrationRecord{
				SessionID: s.SessionID,
				Accepted:  ev.Accepted,
				OffsetX:   ev.OffsetX,
				OffsetY:   ev.OffsetY,
				Reason:    ev.Reason,
				CreatedAt: at,
			}})
			r.bcasts = append(r.bcasts, BroadcastCalibration{
				Phase:    "finished",
				Accepted: ev.Accepted,
				OffsetX:  ev.OffsetX,
				OffsetY:  ev.OffsetY,
				Samples:  ev.Samples,
				Reason:   ev.Reason,
				At:       at,
			})

			if ev.Accepted {
				s.SettingsOrigin = "calibration"
				r.cmds = append(r.cmds, CmdSaveSettings{Settings: ev.Settings})
				r.bcasts = append(r.bcasts, BroadcastSettingsChanged{
					Preset:   string(ev.Settings.Preset),
					Settings: ev.Settings.Entries(),
					Origin:   "calibration",
					At:       at,
				})
			}
		}
	}
}
