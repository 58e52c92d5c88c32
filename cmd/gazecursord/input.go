package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// keyNames maps hotkey names accepted in config to Linux key codes.
var keyNames = map[string]uint16{
	"ESC":   KEY_ESC,
	"F9":    67,
	"F10":   68,
	"F11":   KEY_F11,
	"F12":   KEY_F12,
	"PAUSE": KEY_PAUSE,
}

// parseKeyCode accepts a name from keyNames (with or without a KEY_ prefix)
// or a decimal key code.
func parseKeyCode(s string) (uint16, error) {
	name := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "KEY_")
	if code, ok := keyNames[name]; ok {
		return code, nil
	}
	n, err := strconv.ParseUint(name, 10, 16)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("unknown key %q", s)
	}
	return uint16(n), nil
}

// hotkeyMap binds key codes to daemon actions.
type hotkeyMap map[uint16]Event

func newHotkeyMap(cfg HotkeysConfig) (hotkeyMap, error) {
	m := hotkeyMap{}
	bind := func(key string, ev Event) error {
		if key == "" {
			return nil
		}
		code, err := parseKeyCode(key)
		if err != nil {
			return err
		}
		if _, dup := m[code]; dup {
			return fmt.Errorf("key %q bound twice", key)
		}
		m[code] = ev
		return nil
	}
	if err := bind(cfg.TogglePause, TogglePause{}); err != nil {
		return nil, fmt.Errorf("hotkeys.pause_key: %w", err)
	}
	if err := bind(cfg.Calibrate, StartCalibration{}); err != nil {
		return nil, fmt.Errorf("hotkeys.calibrate_key: %w", err)
	}
	if err := bind(cfg.Cancel, CancelCalibration{}); err != nil {
		return nil, fmt.Errorf("hotkeys.cancel_key: %w", err)
	}
	return m, nil
}

// translate turns a key press into an action. Releases and autorepeat are
// ignored.
func (m hotkeyMap) translate(ev inputEvent) (Event, bool) {
	if ev.Type != EV_KEY || ev.Value != evValuePress {
		return nil, false
	}
	a, ok := m[ev.Code]
	return a, ok
}

// runHotkeys reads the given input devices and forwards bound key presses to
// the daemon until ctx is canceled or a device fails.
func runHotkeys(ctx context.Context, devices []string, keys hotkeyMap, events chan<- Event, logger *slog.Logger) error {
	files := make([]*os.File, 0, len(devices))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, path := range devices {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input device %s: %w", path, err)
		}
		files = append(files, f)
	}

	raw := make(chan inputEvent, 64)
	readErr := make(chan error, 1)
	go readInputEventsEpoll(ctx, files, raw, readErr)

	logger.Info("hotkeys enabled", "devices", devices)

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			return fmt.Errorf("input reader stopped: %w", err)

		case ev := <-raw:
			a, ok := keys.translate(ev)
			if !ok {
				continue
			}
			logger.Debug("hotkey", "code", ev.Code, "action", fmt.Sprintf("%T", a))
			select {
			case events <- a:
			default:
				logger.Warn("event queue full, dropping hotkey", "code", ev.Code)
			}
		}
	}
}
