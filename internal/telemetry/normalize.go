package telemetry

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"embroidery-telemetry-backend/internal/model"
)

// ErrMissingDeviceID is returned when a payload carries no device identifier.
// Such payloads are rejected before any storage is touched.
var ErrMissingDeviceID = errors.New("payload is missing deviceId")

// RawPayload is the wire shape shared by the device channel and the request
// endpoint. Counter fields are declared as `any` because the firmware sends
// them inconsistently as JSON numbers or numeric strings.
type RawPayload struct {
	DeviceID      string `json:"deviceId"`
	Stitches      any    `json:"stitches"`
	AlterStitches any    `json:"alterStitches"`
	ThreadBreak   any    `json:"threadBreak"`
	Status        string `json:"status"`
	Event         string `json:"event"`
	EventTime     string `json:"eventTime"`
}

// Event is a normalized telemetry observation, ready for the registry upsert
// and the event-store append. EventTime may come from the device clock;
// ObservedAt is always the server's ingestion clock, which keeps the
// registry's last_seen moving forward even when devices report stale
// timestamps.
type Event struct {
	DeviceUID        string
	StitchCount      int64
	AlterStitchCount int64
	ThreadBreak      int64
	Status           string
	EventType        string
	EventTime        time.Time
	ObservedAt       time.Time
}

// Normalize validates and coerces a raw payload into an Event. It is a pure
// function: now is the caller's clock reading, used only when the payload
// does not carry its own timestamp.
func Normalize(raw RawPayload, now time.Time) (Event, error) {
	uid := strings.TrimSpace(raw.DeviceID)
	if uid == "" {
		return Event{}, ErrMissingDeviceID
	}

	status := raw.Status
	if status == "" {
		status = model.StatusUnknown
	}

	eventType := raw.Event
	if eventType == "" {
		eventType = model.EventTypeHeartbeat
	}

	eventTime := now
	if raw.EventTime != "" {
		if ts, err := parseEventTime(raw.EventTime); err == nil {
			eventTime = ts
		}
	}

	return Event{
		DeviceUID:        uid,
		StitchCount:      coerceCount(raw.Stitches),
		AlterStitchCount: coerceCount(raw.AlterStitches),
		ThreadBreak:      coerceCount(raw.ThreadBreak),
		Status:           status,
		EventType:        eventType,
		EventTime:        eventTime,
		ObservedAt:       now,
	}, nil
}

// coerceCount turns a loosely typed counter value into a non-negative
// integer. Non-numeric and negative inputs collapse to 0 so that a partially
// malformed payload still ingests.
func coerceCount(v any) int64 {
	var n int64
	switch t := v.(type) {
	case nil:
		return 0
	case float64: // encoding/json decodes all numbers into float64
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		n = int64(t)
	case int64:
		n = t
	case int:
		n = int64(t)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0
		}
		n = parsed
	default:
		return 0
	}

	if n < 0 {
		return 0
	}
	return n
}

// parseEventTime accepts RFC3339 timestamps or unix seconds.
func parseEventTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}
