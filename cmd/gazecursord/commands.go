package main

import (
	"fmt"
	"time"

	"github.com/eorua8801/restructured-cursor/internal/edgescroll"
	"github.com/eorua8801/restructured-cursor/internal/settings"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop:
// pointer actuation and settings persistence.
type Command interface {
	commandMarker()
	String() string
}

// CmdMoveCursor warps the pointer.
type CmdMoveCursor struct {
	X, Y float64
}

func (CmdMoveCursor) commandMarker() {}
func (c CmdMoveCursor) String() string {
	return fmt.Sprintf("CmdMoveCursor(x=%.1f, y=%.1f)", c.X, c.Y)
}

// CmdClick performs a left click.
type CmdClick struct {
	X, Y float64
}

func (CmdClick) commandMarker() {}
func (c CmdClick) String() string {
	return fmt.Sprintf("CmdClick(x=%.1f, y=%.1f)", c.X, c.Y)
}

// CmdScroll performs Count scroll gestures.
type CmdScroll struct {
	Direction edgescroll.ScrollAction
	Count     int
}

func (CmdScroll) commandMarker() {}
func (c CmdScroll) String() string {
	return fmt.Sprintf("CmdScroll(dir=%s, count=%d)", c.Direction, c.Count)
}

// CmdFeedbackPulse signals a haptic/visual pulse.
type CmdFeedbackPulse struct {
	Duration time.Duration
}

func (CmdFeedbackPulse) commandMarker() {}
func (c CmdFeedbackPulse) String() string {
	return fmt.Sprintf("CmdFeedbackPulse(%s)", c.Duration)
}

// CmdSaveSettings persists the settings snapshot.
type CmdSaveSettings struct {
	Settings settings.UserSettings
}

func (CmdSaveSettings) commandMarker() {}
func (c CmdSaveSettings) String() string {
	return fmt.Sprintf("CmdSaveSettings(preset=%s)", c.Settings.Preset)
}

// CmdRecordCalibration appends a calibration attempt to the history.
type CmdRecordCalibration struct {
	Record settings.CalibrationRecord
}

func (CmdRecordCalibration) commandMarker() {}
func (c CmdRecordCalibration) String() string {
	return fmt.Sprintf("CmdRecordCalibration(accepted=%v)", c.Record.Accepted)
}

// CmdPublishStateSnapshot delivers a snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan<- StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }
