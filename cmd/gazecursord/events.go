package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Action Types
// ============================================================================
// Actions represent intent from external sources (IPC, hotkeys, tracker).
// They implement the reducer's Event marker so they can be reduced directly.
// ============================================================================

// PauseTracking stops sample processing and resets the detectors.
type PauseTracking struct{}

func (PauseTracking) eventMarker() {}

// ResumeTracking re-enables sample processing.
type ResumeTracking struct{}

func (ResumeTracking) eventMarker() {}

// TogglePause flips the paused state (hotkey).
type TogglePause struct{}

func (TogglePause) eventMarker() {}

// StartCalibration begins a one-point offset calibration at the screen center.
type StartCalibration struct{}

func (StartCalibration) eventMarker() {}

// CancelCalibration aborts a running calibration.
type CancelCalibration struct{}

func (CancelCalibration) eventMarker() {}

// ResetDetectors clears the edge and dwell detectors.
type ResetDetectors struct{}

func (ResetDetectors) eventMarker() {}

// SetPreset selects a smoothing preset by name. Unknown names fall back to
// BALANCED.
type SetPreset struct {
	Preset string `json:"preset"`
}

func (SetPreset) eventMarker() {}

// SetSetting changes one setting by its storage key.
type SetSetting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (SetSetting) eventMarker() {}

// GazeSampleReceived is one tracker reading.
type GazeSampleReceived struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	TimestampMs int64   `json:"timestamp_ms"`
	Valid       bool    `json:"valid"`
}

func (GazeSampleReceived) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "pause_tracking":
		return PauseTracking{}, nil
	case "resume_tracking":
		return ResumeTracking{}, nil
	case "toggle_pause":
		return TogglePause{}, nil
	case "start_calibration":
		return StartCalibration{}, nil
	case "cancel_calibration":
		return CancelCalibration{}, nil
	case "reset_detectors":
		return ResetDetectors{}, nil

	case "set_preset":
		var a SetPreset
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetPreset: %w", err)
		}
		return a, nil

	case "set_setting":
		var a SetSetting
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetSetting: %w", err)
		}
		if a.Key == "" {
			return nil, fmt.Errorf("unmarshal SetSetting: key is empty")
		}
		return a, nil

	case "gaze_sample":
		var a GazeSampleReceived
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal GazeSampleReceived: %w", err)
		}
		return a, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case PauseTracking:
		env.Type = "pause_tracking"
	case ResumeTracking:
		env.Type = "resume_tracking"
	case TogglePause:
		env.Type = "toggle_pause"
	case StartCalibration:
		env.Type = "start_calibration"
	case CancelCalibration:
		env.Type = "cancel_calibration"
	case ResetDetectors:
		env.Type = "reset_detectors"

	case SetPreset:
		env.Type = "set_preset"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetPreset: %w", err)
		}
		env.Data = data

	case SetSetting:
		env.Type = "set_setting"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetSetting: %w", err)
		}
		env.Data = data

	case GazeSampleReceived:
		env.Type = "gaze_sample"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal GazeSampleReceived: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
