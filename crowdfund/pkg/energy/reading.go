// Package energy anchors solar panel readings on chain and rewards sensors
// with tokens as their production accumulates.
package energy

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"
)

type Reading struct {
	DeviceID string `json:"device_id"`
	// Energy is in kWh, rounded to 3 decimals.
	Energy float64 `json:"energy"`
	// Timestamp is unix seconds.
	Timestamp int64 `json:"timestamp"`
}

type Record struct {
	DeviceID  string  `json:"device_id"`
	Energy    float64 `json:"energy"`
	Timestamp int64   `json:"timestamp"`
	TxLink    string  `json:"tx_link"`
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

const (
	msgNotObject       = "Invalid JSON data. Expected a JSON object with device_id, energy, and timestamp fields."
	msgDeviceID        = "Missing or invalid device_id. Must be a non-empty string."
	msgEnergy          = "Missing or invalid energy. Must be a number (kWh)."
	msgMissingTime     = "Missing timestamp. Must be a number (Unix timestamp) or ISO string."
	msgInvalidTimeForm = "Invalid timestamp format. Must be a valid Unix timestamp (number) or ISO date string."
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Normalize validates a raw reading and returns it in canonical form.
func Normalize(raw []byte) (Reading, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Reading{}, &ValidationError{Message: msgNotObject}
	}

	var deviceID string
	if err := json.Unmarshal(fields["device_id"], &deviceID); err != nil || strings.TrimSpace(deviceID) == "" {
		return Reading{}, &ValidationError{Message: msgDeviceID}
	}

	var energy float64
	if !isJSONNumber(fields["energy"]) {
		return Reading{}, &ValidationError{Message: msgEnergy}
	}
	if err := json.Unmarshal(fields["energy"], &energy); err != nil || math.IsNaN(energy) || math.IsInf(energy, 0) {
		return Reading{}, &ValidationError{Message: msgEnergy}
	}

	ts, err := normalizeTimestamp(fields["timestamp"])
	if err != nil {
		return Reading{}, err
	}

	return Reading{
		DeviceID:  strings.TrimSpace(deviceID),
		Energy:    Round3(energy),
		Timestamp: ts,
	}, nil
}

func normalizeTimestamp(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, &ValidationError{Message: msgMissingTime}
	}
	if isJSONNumber(raw) {
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return 0, &ValidationError{Message: msgInvalidTimeForm}
		}
		return int64(math.Floor(f)), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, &ValidationError{Message: msgInvalidTimeForm}
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return int64(math.Floor(float64(t.UnixMilli()) / 1000)), nil
		}
	}
	return 0, &ValidationError{Message: msgInvalidTimeForm}
}

func isJSONNumber(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	c := raw[0]
	return c == '-' || (c >= '0' && c <= '9')
}

// Round3 rounds to 3 decimal places.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
