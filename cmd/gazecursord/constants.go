package main

import "time"

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01

	KEY_ESC   = 1
	KEY_F11   = 87
	KEY_F12   = 88
	KEY_PAUSE = 119
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Daemon defaults
const (
	defaultTickHz        = 20 // host timer resolution (Hz)
	defaultScreenWidth   = 1920
	defaultScreenHeight  = 1080
	defaultSocketPath    = "/tmp/gazecursord.sock"
	defaultHTTPAddr      = "127.0.0.1:8765"
	defaultSourceURL     = "ws://127.0.0.1:8766/gaze"
	defaultSourcePath    = "/ws/gaze"
	defaultStatePath     = "/ws/state"
	defaultSourceTimeout = 3000 // ms without a frame before the tracker link is considered dead
	defaultWheelNotches  = 3
	defaultDBPath        = "~/.local/share/gazecursord/settings.db"
	defaultProfilePath   = "~/.config/gazecursord/profile.toml"

	// One-point calibration host policy.
	calibrationTimeout   = 5 * time.Second
	autoCalibrationDelay = 3 * time.Second

	// profileDebounce collapses editor write bursts into one reload.
	profileDebounce = 500 * time.Millisecond
)
