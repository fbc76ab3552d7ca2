package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"embroidery-telemetry-backend/internal/model"
	"embroidery-telemetry-backend/internal/telemetry"
)

var (
	// ErrMachineNotFound is returned by reads for an unknown device UID.
	ErrMachineNotFound = errors.New("machine not found")

	// ErrRegistryUnavailable wraps storage failures on the machine registry.
	ErrRegistryUnavailable = errors.New("machine registry unavailable")

	// ErrStoreUnavailable wraps storage failures on the append-only event log.
	ErrStoreUnavailable = errors.New("event store unavailable")
)

// Store defines the interface for all database operations.
type Store interface {
	UpsertMachine(ctx context.Context, obs telemetry.Event) (*model.Machine, bool, error)
	GetMachine(ctx context.Context, uid string) (*model.Machine, error)
	ListMachines(ctx context.Context) ([]model.Machine, error)
	ResetCounters(ctx context.Context, uid string) error

	AppendEvent(ctx context.Context, event *model.MachineEvent) error
	EventsInRange(ctx context.Context, machineID int64, start, end time.Time) ([]model.MachineEvent, error)

	InsertEfficiency(ctx context.Context, rec *model.EfficiencyRecord) error
	EfficiencyInRange(ctx context.Context, machineID int64, start, end time.Time) ([]model.EfficiencyRecord, error)

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db            *gorm.DB
	defaultTarget int
}

// NewGormStore creates a new GORM-backed store. defaultTarget seeds
// target_stitches for machines created on first contact.
func NewGormStore(db *gorm.DB, defaultTarget int) Store {
	return &gormStore{db: db, defaultTarget: defaultTarget}
}

// DB exposes the underlying connection for the alert pool and the
// subscription handlers.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// UpsertMachine is the single registry state transition: create-if-absent,
// else overwrite counters, status and last_seen (last-write-wins). The write
// is one ON CONFLICT statement, so concurrent upserts for the same uid cannot
// produce a torn row. The returned bool reports whether the thread-break
// counter advanced past the previously stored value.
func (s *gormStore) UpsertMachine(ctx context.Context, obs telemetry.Event) (*model.Machine, bool, error) {
	var (
		updated    model.Machine
		breakAlert bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev model.Machine
		prevErr := tx.Where("uid = ?", obs.DeviceUID).First(&prev).Error
		if prevErr != nil && !errors.Is(prevErr, gorm.ErrRecordNotFound) {
			return prevErr
		}

		machine := model.Machine{
			UID:              obs.DeviceUID,
			Status:           obs.Status,
			TotalStitches:    obs.StitchCount,
			AlterStitches:    obs.AlterStitchCount,
			ThreadBreakCount: obs.ThreadBreak,
			TargetStitches:   s.defaultTarget,
			LastSeen:         obs.ObservedAt,
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "uid"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "total_stitches", "alter_stitches",
				"thread_break_count", "last_seen", "updated_at",
			}),
		}).Create(&machine).Error; err != nil {
			return err
		}

		// Re-read: on conflict-update gorm does not backfill the existing
		// primary key into the inserted struct.
		if err := tx.Where("uid = ?", obs.DeviceUID).First(&updated).Error; err != nil {
			return err
		}

		if errors.Is(prevErr, gorm.ErrRecordNotFound) {
			breakAlert = obs.ThreadBreak > 0
		} else {
			breakAlert = obs.ThreadBreak > prev.ThreadBreakCount
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	return &updated, breakAlert, nil
}

// GetMachine returns the current snapshot for a device UID.
func (s *gormStore) GetMachine(ctx context.Context, uid string) (*model.Machine, error) {
	var machine model.Machine
	if err := s.db.WithContext(ctx).Where("uid = ?", uid).First(&machine).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMachineNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	return &machine, nil
}

// ListMachines returns a snapshot of every known machine.
func (s *gormStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	return machines, nil
}

// ResetCounters zeroes the three device counters for a machine. Used by the
// operator reset endpoint after a physical counter reset.
func (s *gormStore) ResetCounters(ctx context.Context, uid string) error {
	res := s.db.WithContext(ctx).Model(&model.Machine{}).
		Where("uid = ?", uid).
		Updates(map[string]any{
			"total_stitches":     0,
			"alter_stitches":     0,
			"thread_break_count": 0,
		})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrRegistryUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrMachineNotFound
	}
	return nil
}

// AppendEvent appends one immutable telemetry event. Existing rows are never
// updated or deleted.
func (s *gormStore) AppendEvent(ctx context.Context, event *model.MachineEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// EventsInRange returns a machine's events with event_time in [start, end),
// ascending. An empty range yields an empty slice.
func (s *gormStore) EventsInRange(ctx context.Context, machineID int64, start, end time.Time) ([]model.MachineEvent, error) {
	var events []model.MachineEvent
	err := s.db.WithContext(ctx).
		Where("machine_id = ? AND event_time >= ? AND event_time < ?", machineID, start, end).
		Order("event_time ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return events, nil
}

// InsertEfficiency appends one derived efficiency record.
func (s *gormStore) InsertEfficiency(ctx context.Context, rec *model.EfficiencyRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// EfficiencyInRange returns efficiency records whose window_start falls in
// [start, end), ascending by window_start.
func (s *gormStore) EfficiencyInRange(ctx context.Context, machineID int64, start, end time.Time) ([]model.EfficiencyRecord, error) {
	var records []model.EfficiencyRecord
	err := s.db.WithContext(ctx).
		Where("machine_id = ? AND window_start >= ? AND window_start < ?", machineID, start, end).
		Order("window_start ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return records, nil
}
