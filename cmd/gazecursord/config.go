package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eorua8801/restructured-cursor/internal/actuator"
	"github.com/eorua8801/restructured-cursor/internal/pipeline"
	"github.com/eorua8801/restructured-cursor/internal/settings"
)

// Config is the top-level YAML configuration for the gazecursord daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config.
type Config struct {
	Screen      ScreenConfig      `yaml:"screen"`
	Source      SourceConfig      `yaml:"source"`
	HTTP        HTTPConfig        `yaml:"http"`
	IPC         IPCConfig         `yaml:"ipc"`
	Actuator    ActuatorConfig    `yaml:"actuator"`
	Hotkeys     HotkeysConfig     `yaml:"hotkeys"`
	Storage     StorageConfig     `yaml:"storage"`
	Calibration CalibrationConfig `yaml:"calibration"`

	// Settings seeds the user settings by persistent key (for example
	// fixation_duration: 1200). The store and profile override it.
	Settings map[string]string `yaml:"settings,omitempty"`

	Logging LoggingConfig `yaml:"logging"`
}

type ScreenConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Source modes.
const (
	sourceModeDial   = "dial"
	sourceModeListen = "listen"
	sourceModeOff    = "off"
)

type SourceConfig struct {
	Mode       string `yaml:"mode"` // dial | listen | off
	URL        string `yaml:"url"`
	ListenPath string `yaml:"listen_path"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type HTTPConfig struct {
	Addr      string `yaml:"addr"`
	StatePath string `yaml:"state_path"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

// Actuator kinds.
const (
	actuatorKindUinput = "uinput"
	actuatorKindLog    = "log"
)

type ActuatorConfig struct {
	Kind         string `yaml:"kind"` // uinput | log
	Device       string `yaml:"device"`
	Name         string `yaml:"name"`
	ScrollMode   string `yaml:"scroll_mode"`   // wheel | drag
	ScrollAmount string `yaml:"scroll_amount"` // small | medium | large
	WheelNotches int    `yaml:"wheel_notches"`
}

type HotkeysConfig struct {
	Devices     []string `yaml:"devices,omitempty"`
	TogglePause string   `yaml:"pause_key"`
	Calibrate   string   `yaml:"calibrate_key"`
	Cancel      string   `yaml:"cancel_key,omitempty"`
}

type StorageConfig struct {
	// DBPath is the sqlite store. Empty disables persistence.
	DBPath       string `yaml:"db_path"`
	ProfilePath  string `yaml:"profile_path"`
	WatchProfile bool   `yaml:"watch_profile"`
}

type CalibrationConfig struct {
	TimeoutMS   int `yaml:"timeout_ms"`
	AutoDelayMS int `yaml:"auto_delay_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Screen: ScreenConfig{
			Width:  defaultScreenWidth,
			Height: defaultScreenHeight,
		},
		Source: SourceConfig{
			Mode:       sourceModeDial,
			URL:        defaultSourceURL,
			ListenPath: defaultSourcePath,
			TimeoutMS:  defaultSourceTimeout,
		},
		HTTP: HTTPConfig{
			Addr:      defaultHTTPAddr,
			StatePath: defaultStatePath,
		},
		IPC: IPCConfig{
			SocketPath: defaultSocketPath,
		},
		Actuator: ActuatorConfig{
			Kind:         actuatorKindUinput,
			Device:       actuator.DefaultUinputPath,
			Name:         "gazecursor",
			ScrollMode:   string(actuator.ScrollModeWheel),
			ScrollAmount: "medium",
			WheelNotches: defaultWheelNotches,
		},
		Hotkeys: HotkeysConfig{
			TogglePause: "PAUSE",
			Calibrate:   "F12",
		},
		Storage: StorageConfig{
			DBPath:       defaultDBPath,
			ProfilePath:  defaultProfilePath,
			WatchProfile: true,
		},
		Calibration: CalibrationConfig{
			TimeoutMS:   int(calibrationTimeout / time.Millisecond),
			AutoDelayMS: int(autoCalibrationDelay / time.Millisecond),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies command-line overrides on top of a loaded config.
// Each override is applied only if its pointer is non-nil.
type FlagOverrides struct {
	ScreenWidth  *int
	ScreenHeight *int

	SourceMode *string
	SourceURL  *string

	HTTPAddr      *string
	IPCSocketPath *string

	ActuatorKind       *string
	ActuatorDevice     *string
	ActuatorScrollMode *string

	HotkeyDevices *string // comma-separated

	DBPath      *string
	ProfilePath *string

	LogLevel *string
}

// Apply merges the overrides into cfg. A non-nil pointer is applied even if
// it holds a zero value.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.ScreenWidth != nil {
		cfg.Screen.Width = *o.ScreenWidth
	}
	if o.ScreenHeight != nil {
		cfg.Screen.Height = *o.ScreenHeight
	}

	if o.SourceMode != nil {
		cfg.Source.Mode = *o.SourceMode
	}
	if o.SourceURL != nil {
		cfg.Source.URL = *o.SourceURL
	}

	if o.HTTPAddr != nil {
		cfg.HTTP.Addr = *o.HTTPAddr
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}

	if o.ActuatorKind != nil {
		cfg.Actuator.Kind = *o.ActuatorKind
	}
	if o.ActuatorDevice != nil {
		cfg.Actuator.Device = *o.ActuatorDevice
	}
	if o.ActuatorScrollMode != nil {
		cfg.Actuator.ScrollMode = *o.ActuatorScrollMode
	}

	if o.HotkeyDevices != nil {
		cfg.Hotkeys.Devices = splitList(*o.HotkeyDevices)
	}

	if o.DBPath != nil {
		cfg.Storage.DBPath = *o.DBPath
	}
	if o.ProfilePath != nil {
		cfg.Storage.ProfilePath = *o.ProfilePath
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Screen
	if c.Screen.Width <= 0 {
		return errors.New("screen.width must be > 0")
	}
	if c.Screen.Height <= 0 {
		return errors.New("screen.height must be > 0")
	}

	// Source
	switch c.Source.Mode {
	case sourceModeDial:
		if c.Source.URL == "" {
			return errors.New("source.url must not be empty when source.mode is dial")
		}
	case sourceModeListen:
		if c.HTTP.Addr == "" {
			return errors.New("http.addr must not be empty when source.mode is listen")
		}
		if !strings.HasPrefix(c.Source.ListenPath, "/") {
			return errors.New("source.listen_path must start with /")
		}
	case sourceModeOff:
	default:
		return fmt.Errorf("source.mode must be %q, %q or %q", sourceModeDial, sourceModeListen, sourceModeOff)
	}
	if c.Source.TimeoutMS < 0 {
		return errors.New("source.timeout_ms must be >= 0")
	}

	// HTTP
	if c.HTTP.Addr != "" && !strings.HasPrefix(c.HTTP.StatePath, "/") {
		return errors.New("http.state_path must start with /")
	}
	if c.Source.Mode == sourceModeListen && c.Source.ListenPath == c.HTTP.StatePath {
		return errors.New("source.listen_path must differ from http.state_path")
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// Actuator
	switch c.Actuator.Kind {
	case actuatorKindUinput:
		if c.Actuator.Device == "" {
			return errors.New("actuator.device must not be empty when actuator.kind is uinput")
		}
	case actuatorKindLog:
	default:
		return fmt.Errorf("actuator.kind must be %q or %q", actuatorKindUinput, actuatorKindLog)
	}
	if _, err := actuator.ParseScrollMode(c.Actuator.ScrollMode); err != nil {
		return fmt.Errorf("actuator.scroll_mode: %w", err)
	}
	if _, err := parseScrollAmount(c.Actuator.ScrollAmount); err != nil {
		return fmt.Errorf("actuator.scroll_amount: %w", err)
	}
	if c.Actuator.WheelNotches < 1 {
		return errors.New("actuator.wheel_notches must be >= 1")
	}

	// Hotkeys
	for i, dev := range c.Hotkeys.Devices {
		if dev == "" {
			return fmt.Errorf("hotkeys.devices[%d] is empty", i)
		}
	}
	if _, err := newHotkeyMap(c.Hotkeys); err != nil {
		return err
	}

	// Storage
	if c.Storage.WatchProfile && c.Storage.ProfilePath == "" {
		return errors.New("storage.watch_profile requires storage.profile_path")
	}

	// Calibration
	if c.Calibration.TimeoutMS < 0 {
		return errors.New("calibration.timeout_ms must be >= 0")
	}
	if c.Calibration.AutoDelayMS < 0 {
		return errors.New("calibration.auto_delay_ms must be >= 0")
	}

	// Settings seed
	if _, err := c.SeedSettings(); err != nil {
		return err
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// SeedSettings applies the settings section on top of settings.Default.
func (c *Config) SeedSettings() (settings.UserSettings, error) {
	us, ignored, err := settings.FromEntries(settings.Default(), c.Settings)
	if err != nil {
		return settings.UserSettings{}, fmt.Errorf("settings: %w", err)
	}
	if len(ignored) > 0 {
		return settings.UserSettings{}, fmt.Errorf("settings: unknown keys %s", strings.Join(ignored, ", "))
	}
	if err := us.Validate(); err != nil {
		return settings.UserSettings{}, fmt.Errorf("settings: %w", err)
	}
	return us, nil
}

// PipelineScreen converts the screen section.
func (c *Config) PipelineScreen() pipeline.Screen {
	return pipeline.Screen{Width: float64(c.Screen.Width), Height: float64(c.Screen.Height)}
}

// ToReduceConfig extracts reducer policy.
func (c *Config) ToReduceConfig() ReduceConfig {
	return ReduceConfig{
		CalibrationTimeout: time.Duration(c.Calibration.TimeoutMS) * time.Millisecond,
	}
}

func parseScrollAmount(s string) (actuator.ScrollAmount, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "small":
		return actuator.AmountSmall, nil
	case "", "medium":
		return actuator.AmountMedium, nil
	case "large":
		return actuator.AmountLarge, nil
	default:
		return 0, fmt.Errorf("unknown scroll amount %q (want small, medium or large)", s)
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
