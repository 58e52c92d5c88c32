package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/eorua8801/restructured-cursor/internal/actuator"
	"github.com/eorua8801/restructured-cursor/internal/settings"
)

// settingsStore is the persistence surface the effects layer needs.
// *settings.Store satisfies it.
type settingsStore interface {
	Save(us settings.UserSettings) error
	RecordCalibration(rec settings.CalibrationRecord) (settings.CalibrationRecord, error)
}

// effectEnv bundles the external systems commands run against. Either field
// may be nil: a nil Actuator reports failures, a nil Store skips persistence.
type effectEnv struct {
	Actuator actuator.Actuator
	Store    settingsStore
}

// runEffect executes a single reducer-emitted Command (side effect) and emits
// an observation Event via onEvent.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events to be reduced by the daemon loop.
// - Actuator calls only enqueue work; they never block on the device.
func runEffect(
	env effectEnv,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		return
	}

	now := time.Now()

	switch c := cmd.(type) {
	case CmdMoveCursor:
		if env.Actuator == nil {
			onEvent(ActuatorFailed{Op: "move", Err: errNoActuator{}, At: now})
			return
		}
		if err := env.Actuator.Move(c.X, c.Y); err != nil {
			actuatorError(logger, "move", err, now, onEvent)
		}

	case CmdClick:
		if env.Actuator == nil {
			onEvent(ActuatorFailed{Op: "click", Err: errNoActuator{}, At: now})
			return
		}
		logger.Info("dwell click", "x", c.X, "y", c.Y)
		if err := env.Actuator.Click(c.X, c.Y); err != nil {
			actuatorError(logger, "click", err, now, onEvent)
		}

	case CmdScroll:
		if env.Actuator == nil {
			onEvent(ActuatorFailed{Op: "scroll", Err: errNoActuator{}, At: now})
			return
		}
		logger.Info("edge scroll", "direction", c.Direction.String(), "count", c.Count)
		if err := env.Actuator.Scroll(c.Direction, c.Count); err != nil {
			actuatorError(logger, "scroll", err, now, onEvent)
		}

	case CmdFeedbackPulse:
		// No haptics on this host; state websocket clients render the pulse.
		logger.Debug("feedback pulse", "duration", c.Duration)

	case CmdSaveSettings:
		if env.Store == nil {
			logger.Debug("settings store disabled; not saving")
			return
		}
		err := env.Store.Save(c.Settings)
		if err != nil {
			logger.Error("save settings failed", "error", err)
		}
		onEvent(SettingsSaved{At: now, Err: err})

	case CmdRecordCalibration:
		if env.Store == nil {
			return
		}
		rec, err := env.Store.RecordCalibration(c.Record)
		if err != nil {
			logger.Error("record calibration failed", "error", err)
			return
		}
		logger.Info("calibration recorded",
			"id", rec.ID,
			"accepted", rec.Accepted,
			"offset_x", rec.OffsetX,
			"offset_y", rec.OffsetY,
			"reason", rec.Reason,
		)

	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the daemon loop.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(ActuatorFailed{Op: "unknown", Err: errUnknownCommand{cmd: cmd}, At: now})
	}
}

// actuatorError reports a failed actuator submission. A gesture rejected by
// the in-progress guard is expected behavior and only logged at debug.
func actuatorError(logger *slog.Logger, op string, err error, at time.Time, onEvent func(Event)) {
	if errors.Is(err, actuator.ErrGestureInProgress) {
		logger.Debug("actuator busy; gesture dropped", "op", op)
		return
	}
	logger.Warn("actuator submit failed", "op", op, "error", err)
	onEvent(ActuatorFailed{Op: op, Err: err, At: at})
}

// errNoActuator indicates a pointer command was issued with no actuator configured.
type errNoActuator struct{}

func (errNoActuator) Error() string { return "no actuator" }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
