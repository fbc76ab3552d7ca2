package model

import "time"

// EfficiencyRecord is one derived (machine, window) result. Re-running the
// aggregator over the same window appends a fresh row; consumers must
// tolerate duplicates.
type EfficiencyRecord struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MachineID     int64     `gorm:"index;not null" json:"machineId"`
	WindowStart   time.Time `gorm:"not null" json:"windowStart"`
	WindowEnd     time.Time `gorm:"not null" json:"windowEnd"`
	TotalStitches int64     `gorm:"not null" json:"totalStitches"`
	Efficiency    float64   `gorm:"not null" json:"efficiency"`
	CreatedAt     time.Time `json:"createdAt"`
}
