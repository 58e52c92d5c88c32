package settings

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Persistent keys. The first block matches the preference names the settings
// screen has always used so exported stores stay readable.
const (
	KeyFixationDuration      = "fixation_duration"
	KeyAOIRadius             = "aoi_radius"
	KeyScrollEnabled         = "scroll_enabled"
	KeyEdgeMarginRatio       = "edge_margin_ratio"
	KeyEdgeTriggerMS         = "edge_trigger_ms"
	KeyContinuousScrollCount = "continuous_scroll_count"
	KeyClickEnabled          = "click_enabled"
	KeyEdgeScrollEnabled     = "edge_scroll_enabled"
	KeyBlinkDetectionEnabled = "blink_detection_enabled"

	KeyAutoOnePointCalibration = "auto_one_point_calibration_enabled"
	KeyCursorOffsetX           = "cursor_offset_x"
	KeyCursorOffsetY           = "cursor_offset_y"
	KeyPreset                  = "one_euro_preset"
	KeyFilterFreq              = "one_euro_freq"
	KeyFilterMinCutoff         = "one_euro_min_cutoff"
	KeyFilterBeta              = "one_euro_beta"
	KeyFilterDCutoff           = "one_euro_d_cutoff"
)

// ErrUnknownKey is returned by Set for keys that are not part of the model.
var ErrUnknownKey = errors.New("unknown setting")

// Keys returns every persistent key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(Default().Entries()))
	for k := range Default().Entries() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries flattens s into string key/value pairs.
func (s UserSettings) Entries() map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return map[string]string{
		KeyFixationDuration:        strconv.Itoa(s.FixationDurationMS),
		KeyAOIRadius:               f(s.AOIRadius),
		KeyScrollEnabled:           strconv.FormatBool(s.ScrollEnabled),
		KeyEdgeMarginRatio:         f(s.EdgeMarginRatio),
		KeyEdgeTriggerMS:           strconv.Itoa(s.EdgeTriggerMS),
		KeyContinuousScrollCount:   strconv.Itoa(s.ContinuousScrollCount),
		KeyClickEnabled:            strconv.FormatBool(s.ClickEnabled),
		KeyEdgeScrollEnabled:       strconv.FormatBool(s.EdgeScrollEnabled),
		KeyBlinkDetectionEnabled:   strconv.FormatBool(s.BlinkDetectionEnabled),
		KeyAutoOnePointCalibration: strconv.FormatBool(s.AutoOnePointCalibration),
		KeyCursorOffsetX:           f(s.CursorOffsetX),
		KeyCursorOffsetY:           f(s.CursorOffsetY),
		KeyPreset:                  string(s.Preset),
		KeyFilterFreq:              f(s.Filter.FrequencyHz),
		KeyFilterMinCutoff:         f(s.Filter.MinCutoff),
		KeyFilterBeta:              f(s.Filter.Beta),
		KeyFilterDCutoff:           f(s.Filter.DerivativeCutoff),
	}
}

// Set returns a copy of s with one key changed. The result is not validated.
func (s UserSettings) Set(key, value string) (UserSettings, error) {
	value = strings.TrimSpace(value)
	orig := s

	var err error
	switch key {
	case KeyFixationDuration:
		// Older stores wrote this as a float.
		var v float64
		v, err = strconv.ParseFloat(value, 64)
		s.FixationDurationMS = int(v)
	case KeyAOIRadius:
		s.AOIRadius, err = strconv.ParseFloat(value, 64)
	case KeyScrollEnabled:
		s.ScrollEnabled, err = strconv.ParseBool(value)
	case KeyEdgeMarginRatio:
		s.EdgeMarginRatio, err = strconv.ParseFloat(value, 64)
	case KeyEdgeTriggerMS:
		s.EdgeTriggerMS, err = strconv.Atoi(value)
	case KeyContinuousScrollCount:
		s.ContinuousScrollCount, err = strconv.Atoi(value)
	case KeyClickEnabled:
		s.ClickEnabled, err = strconv.ParseBool(value)
	case KeyEdgeScrollEnabled:
		s.EdgeScrollEnabled, err = strconv.ParseBool(value)
	case KeyBlinkDetectionEnabled:
		s.BlinkDetectionEnabled, err = strconv.ParseBool(value)
	case KeyAutoOnePointCalibration:
		s.AutoOnePointCalibration, err = strconv.ParseBool(value)
	case KeyCursorOffsetX:
		s.CursorOffsetX, err = strconv.ParseFloat(value, 64)
	case KeyCursorOffsetY:
		s.CursorOffsetY, err = strconv.ParseFloat(value, 64)
	case KeyPreset:
		s.Preset = ParsePreset(value)
	case KeyFilterFreq:
		s.Filter.FrequencyHz, err = strconv.ParseFloat(value, 64)
	case KeyFilterMinCutoff:
		s.Filter.MinCutoff, err = strconv.ParseFloat(value, 64)
	case KeyFilterBeta:
		s.Filter.Beta, err = strconv.ParseFloat(value, 64)
	case KeyFilterDCutoff:
		s.Filter.DerivativeCutoff, err = strconv.ParseFloat(value, 64)
	default:
		return orig, fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
	if err != nil {
		return orig, fmt.Errorf("parse %s: %w", key, err)
	}
	return s, nil
}

// FromEntries applies entries on top of base. Unknown keys are returned in
// ignored rather than failing, so a newer store can be read by an older build.
func FromEntries(base UserSettings, entries map[string]string) (s UserSettings, ignored []string, err error) {
	s = base
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		next, setErr := s.Set(k, entries[k])
		if setErr != nil {
			if errors.Is(setErr, ErrUnknownKey) {
				ignored = append(ignored, k)
				continue
			}
			return base, ignored, setErr
		}
		s = next
	}
	return s, ignored, nil
}
