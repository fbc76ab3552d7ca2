package model

import "time"

// Machine status values as reported by the devices.
const (
	StatusRunning = "RUNNING"
	StatusOff     = "OFF"
	// StatusUnknown is the default when a payload omits the status field.
	// Legacy firmware defaulted to OFF; UNKNOWN matches the current devices.
	StatusUnknown = "UNKNOWN"
)

// Machine represents the authoritative current state of one embroidery machine.
type Machine struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	UID              string    `gorm:"uniqueIndex;size:64;not null" json:"uid"`
	Status           string    `gorm:"size:16;not null" json:"status"`
	TotalStitches    int64     `gorm:"not null" json:"totalStitches"`
	AlterStitches    int64     `gorm:"not null" json:"alterStitches"`
	ThreadBreakCount int64     `gorm:"not null" json:"threadBreakCount"`
	TargetStitches   int       `gorm:"not null" json:"targetStitches"`
	LastSeen         time.Time `gorm:"not null" json:"lastSeen"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
