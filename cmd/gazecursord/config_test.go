package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if got := cfg.ToReduceConfig().CalibrationTimeout; got != calibrationTimeout {
		t.Fatalf("calibration timeout: got %v, want %v", got, calibrationTimeout)
	}
}

func TestLoadConfigFile_MergesOntoDefaults(t *testing.T) {
	path := writeConfig(t, `
screen:
  width: 2560
  height: 1440
source:
  mode: listen
actuator:
  kind: log
  scroll_amount: large
settings:
  fixation_duration: "1200"
  one_euro_preset: STABILITY
logging:
  level: debug
`)

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Screen.Width != 2560 || cfg.Screen.Height != 1440 {
		t.Fatalf("screen not loaded: %+v", cfg.Screen)
	}
	if cfg.Source.ListenPath != defaultSourcePath {
		t.Fatalf("expected default listen path, got %q", cfg.Source.ListenPath)
	}
	if cfg.IPC.SocketPath != defaultSocketPath {
		t.Fatalf("expected default socket path, got %q", cfg.IPC.SocketPath)
	}

	us, err := cfg.SeedSettings()
	if err != nil {
		t.Fatalf("SeedSettings: %v", err)
	}
	if us.FixationDurationMS != 1200 || us.Preset != "STABILITY" {
		t.Fatalf("unexpected seeded settings: %+v", us)
	}

	if s := cfg.PipelineScreen(); s.Width != 2560 || s.Height != 1440 {
		t.Fatalf("pipeline screen: %+v", s)
	}
}

func TestLoadConfigFile_RejectsUnknownField(t *testing.T) {
	path := writeConfig(t, "screen:\n  widht: 100\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestLoadConfigFile_RejectsTrailingDocument(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n---\n{}\n")
	_, err := LoadConfigFile(path)
	if err == nil || !strings.Contains(err.Error(), "trailing document") {
		t.Fatalf("expected trailing document error, got %v", err)
	}
}

func TestLoadConfigFile_EmptyPath(t *testing.T) {
	if _, err := LoadConfigFile(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero width", func(c *Config) { c.Screen.Width = 0 }, "screen.width must be > 0"},
		{"bad source mode", func(c *Config) { c.Source.Mode = "carrier-pigeon" }, "source.mode"},
		{"dial without url", func(c *Config) { c.Source.URL = "" }, "source.url"},
		{"listen path clash", func(c *Config) {
			c.Source.Mode = sourceModeListen
			c.Source.ListenPath = c.HTTP.StatePath
		}, "must differ"},
		{"bad actuator", func(c *Config) { c.Actuator.Kind = "robot-arm" }, "actuator.kind"},
		{"bad scroll mode", func(c *Config) { c.Actuator.ScrollMode = "fling" }, "actuator.scroll_mode"},
		{"bad scroll amount", func(c *Config) { c.Actuator.ScrollAmount = "huge" }, "actuator.scroll_amount"},
		{"no notches", func(c *Config) { c.Actuator.WheelNotches = 0 }, "wheel_notches"},
		{"duplicate hotkey", func(c *Config) { c.Hotkeys.Calibrate = "PAUSE" }, "bound twice"},
		{"unknown hotkey", func(c *Config) { c.Hotkeys.Cancel = "HYPER" }, "hotkeys.cancel_key"},
		{"watch without profile", func(c *Config) { c.Storage.ProfilePath = "" }, "watch_profile"},
		{"negative timeout", func(c *Config) { c.Calibration.TimeoutMS = -1 }, "calibration.timeout_ms"},
		{"unknown setting", func(c *Config) { c.Settings = map[string]string{"warp": "9"} }, "unknown keys warp"},
		{"invalid setting", func(c *Config) { c.Settings = map[string]string{"aoi_radius": "0"} }, "aoi_radius must be > 0"},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()

	width := 800
	mode := sourceModeOff
	devices := " /dev/input/event3, ,/dev/input/event7 "
	db := ""
	FlagOverrides{
		ScreenWidth:   &width,
		SourceMode:    &mode,
		HotkeyDevices: &devices,
		DBPath:        &db,
	}.Apply(&cfg)

	if cfg.Screen.Width != 800 {
		t.Fatalf("width not overridden: %d", cfg.Screen.Width)
	}
	if cfg.Screen.Height != defaultScreenHeight {
		t.Fatalf("height must keep its default, got %d", cfg.Screen.Height)
	}
	if cfg.Source.Mode != sourceModeOff {
		t.Fatalf("source mode not overridden: %q", cfg.Source.Mode)
	}
	if len(cfg.Hotkeys.Devices) != 2 || cfg.Hotkeys.Devices[1] != "/dev/input/event7" {
		t.Fatalf("unexpected devices: %q", cfg.Hotkeys.Devices)
	}
	// A non-nil pointer applies even when it holds the zero value.
	if cfg.Storage.DBPath != "" {
		t.Fatalf("expected db path cleared, got %q", cfg.Storage.DBPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	FlagOverrides{}.Apply(nil)
}

func TestCalibrationConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if time.Duration(cfg.Calibration.AutoDelayMS)*time.Millisecond != autoCalibrationDelay {
		t.Fatalf("auto delay: got %dms", cfg.Calibration.AutoDelayMS)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/x/y.db"); got != filepath.Join(home, "x/y.db") {
		t.Fatalf("ExpandPath: got %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Fatalf("absolute path changed: %q", got)
	}
	if got := ExpandPath("~user/x"); got != "~user/x" {
		t.Fatalf("~user must be left alone, got %q", got)
	}
}
