package model

import "time"

// Event types carried in telemetry payloads.
const (
	EventTypeHeartbeat   = "heartbeat"
	EventTypeStateChange = "state-change"
)

// MachineEvent is one immutable telemetry fact. Rows are append-only; the
// aggregator reads them back in event_time order.
type MachineEvent struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MachineID        int64     `gorm:"index:idx_machine_events_machine_time;not null" json:"machineId"`
	StitchCount      int64     `gorm:"not null" json:"stitchCount"`
	AlterStitchCount int64     `gorm:"not null" json:"alterStitchCount"`
	ThreadBreak      int64     `gorm:"not null" json:"threadBreak"`
	Status           string    `gorm:"size:16;not null" json:"status"`
	EventType        string    `gorm:"size:32;not null" json:"eventType"`
	EventTime        time.Time `gorm:"index:idx_machine_events_machine_time;not null" json:"eventTime"`
}
