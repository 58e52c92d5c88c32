// Package settings holds the user-facing tuning model shared by the filter,
// the dwell click detector and the edge scroll detector.
//
// UserSettings is a value type. Components receive a copy at construction and
// are rebuilt when settings change; nothing mutates a live snapshot.
package settings

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/eorua8801/restructured-cursor/internal/filter"
)

// Preset names a canned set of filter parameters.
type Preset string

const (
	PresetStability      Preset = "STABILITY"
	PresetBalanced       Preset = "BALANCED"
	PresetResponsive     Preset = "RESPONSIVE"
	PresetHighResponsive Preset = "HIGH_RESPONSIVE"
	PresetCustom         Preset = "CUSTOM"
)

// Presets lists every preset in display order.
var Presets = []Preset{
	PresetStability,
	PresetBalanced,
	PresetResponsive,
	PresetHighResponsive,
	PresetCustom,
}

var presetParams = map[Preset]filter.Params{
	PresetStability:      {FrequencyHz: 30, MinCutoff: 0.5, Beta: 0.0, DerivativeCutoff: 1.0},
	PresetBalanced:       {FrequencyHz: 30, MinCutoff: 1.0, Beta: 0.0, DerivativeCutoff: 1.0},
	PresetResponsive:     {FrequencyHz: 30, MinCutoff: 1.5, Beta: 0.1, DerivativeCutoff: 1.0},
	PresetHighResponsive: {FrequencyHz: 30, MinCutoff: 2.0, Beta: 0.2, DerivativeCutoff: 1.0},
}

// ParsePreset resolves a preset by name (case-insensitive). Unknown names
// fall back to BALANCED.
func ParsePreset(name string) Preset {
	p := Preset(strings.ToUpper(strings.TrimSpace(name)))
	for _, known := range Presets {
		if p == known {
			return p
		}
	}
	return PresetBalanced
}

// Params returns the canned parameters of p. For CUSTOM (or unknown) presets
// ok is false.
func (p Preset) Params() (filter.Params, bool) {
	params, ok := presetParams[p]
	return params, ok
}

// Description is a short human-readable explanation of the preset.
func (p Preset) Description() string {
	switch p {
	case PresetStability:
		return "very smooth, minimal jitter"
	case PresetBalanced:
		return "balance between stability and responsiveness"
	case PresetResponsive:
		return "fast response, some jitter"
	case PresetHighResponsive:
		return "very fast response, more jitter"
	case PresetCustom:
		return "user-defined parameters"
	default:
		return ""
	}
}

// UserSettings is an immutable configuration snapshot.
type UserSettings struct {
	// Dwell click
	FixationDurationMS int     `json:"fixation_duration_ms" toml:"fixation_duration_ms"`
	AOIRadius          float64 `json:"aoi_radius" toml:"aoi_radius"`
	ClickEnabled       bool    `json:"click_enabled" toml:"click_enabled"`

	// Edge scroll
	ScrollEnabled         bool    `json:"scroll_enabled" toml:"scroll_enabled"`
	EdgeScrollEnabled     bool    `json:"edge_scroll_enabled" toml:"edge_scroll_enabled"`
	EdgeMarginRatio       float64 `json:"edge_margin_ratio" toml:"edge_margin_ratio"`
	EdgeTriggerMS         int     `json:"edge_trigger_ms" toml:"edge_trigger_ms"`
	ContinuousScrollCount int     `json:"continuous_scroll_count" toml:"continuous_scroll_count"`

	// Reserved; stored and round-tripped but has no effect on the pipeline.
	BlinkDetectionEnabled bool `json:"blink_detection_enabled" toml:"blink_detection_enabled"`

	// Calibration
	AutoOnePointCalibration bool    `json:"auto_one_point_calibration" toml:"auto_one_point_calibration"`
	CursorOffsetX           float64 `json:"cursor_offset_x" toml:"cursor_offset_x"`
	CursorOffsetY           float64 `json:"cursor_offset_y" toml:"cursor_offset_y"`

	// Smoothing. Filter holds the custom values; they only take effect when
	// Preset is CUSTOM.
	Preset Preset        `json:"preset" toml:"preset"`
	Filter filter.Params `json:"filter" toml:"filter"`
}

// Default returns the stock settings.
func Default() UserSettings {
	return UserSettings{
		FixationDurationMS:      1000,
		AOIRadius:               40,
		ClickEnabled:            true,
		ScrollEnabled:           true,
		EdgeScrollEnabled:       true,
		EdgeMarginRatio:         0.01,
		EdgeTriggerMS:           3000,
		ContinuousScrollCount:   2,
		BlinkDetectionEnabled:   false,
		AutoOnePointCalibration: true,
		CursorOffsetX:           0,
		CursorOffsetY:           0,
		Preset:                  PresetBalanced,
		Filter:                  filter.DefaultParams(),
	}
}

// Option modifies a settings value under construction.
type Option func(*UserSettings)

// New builds settings from Default() with opts applied in order.
func New(opts ...Option) UserSettings {
	s := Default()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func WithFixationDuration(ms int) Option {
	return func(s *UserSettings) { s.FixationDurationMS = ms }
}

func WithAOIRadius(px float64) Option {
	return func(s *UserSettings) { s.AOIRadius = px }
}

func WithClickEnabled(on bool) Option {
	return func(s *UserSettings) { s.ClickEnabled = on }
}

func WithScrollEnabled(on bool) Option {
	return func(s *UserSettings) { s.ScrollEnabled = on }
}

func WithEdgeScrollEnabled(on bool) Option {
	return func(s *UserSettings) { s.EdgeScrollEnabled = on }
}

func WithEdgeMarginRatio(r float64) Option {
	return func(s *UserSettings) { s.EdgeMarginRatio = r }
}

func WithEdgeTrigger(ms int) Option {
	return func(s *UserSettings) { s.EdgeTriggerMS = ms }
}

func WithContinuousScrollCount(n int) Option {
	return func(s *UserSettings) { s.ContinuousScrollCount = n }
}

func WithAutoOnePointCalibration(on bool) Option {
	return func(s *UserSettings) { s.AutoOnePointCalibration = on }
}

func WithCursorOffset(x, y float64) Option {
	return func(s *UserSettings) {
		s.CursorOffsetX = x
		s.CursorOffsetY = y
	}
}

func WithPreset(p Preset) Option {
	return func(s *UserSettings) { s.Preset = p }
}

// WithCustomFilter selects the CUSTOM preset with the given parameters.
func WithCustomFilter(p filter.Params) Option {
	return func(s *UserSettings) {
		s.Preset = PresetCustom
		s.Filter = p
	}
}

// With returns a copy of s with opts applied.
func (s UserSettings) With(opts ...Option) UserSettings {
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// EffectiveFilter resolves the preset into concrete filter parameters.
func (s UserSettings) EffectiveFilter() filter.Params {
	if p, ok := s.Preset.Params(); ok {
		return p
	}
	return s.Filter
}

// Validate checks that the settings are usable and returns a user-facing error.
func (s UserSettings) Validate() error {
	if s.FixationDurationMS <= 0 {
		return errors.New("fixation_duration must be > 0")
	}
	if !(s.AOIRadius > 0) || math.IsInf(s.AOIRadius, 0) {
		return errors.New("aoi_radius must be > 0")
	}
	if !(s.EdgeMarginRatio >= 0 && s.EdgeMarginRatio < 0.5) {
		return errors.New("edge_margin_ratio must be in [0, 0.5)")
	}
	if s.EdgeTriggerMS <= 0 {
		return errors.New("edge_trigger_ms must be > 0")
	}
	if s.ContinuousScrollCount < 1 {
		return errors.New("continuous_scroll_count must be >= 1")
	}
	if isNonFinite(s.CursorOffsetX) || isNonFinite(s.CursorOffsetY) {
		return errors.New("cursor offset must be finite")
	}

	switch s.Preset {
	case PresetStability, PresetBalanced, PresetResponsive, PresetHighResponsive:
	case PresetCustom:
		f := s.Filter
		if !(f.FrequencyHz > 0) {
			return errors.New("one_euro_freq must be > 0")
		}
		if !(f.MinCutoff > 0) {
			return errors.New("one_euro_min_cutoff must be > 0")
		}
		if !(f.Beta >= 0) {
			return errors.New("one_euro_beta must be >= 0")
		}
		if !(f.DerivativeCutoff > 0) {
			return errors.New("one_euro_d_cutoff must be > 0")
		}
	default:
		return fmt.Errorf("unknown preset %q", s.Preset)
	}
	return nil
}

func isNonFinite(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
