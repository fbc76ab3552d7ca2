package aggregator

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"embroidery-telemetry-backend/config"
	"embroidery-telemetry-backend/internal/model"
	"embroidery-telemetry-backend/internal/store"
	"embroidery-telemetry-backend/internal/telemetry"
)

func newTestStore(t *testing.T) (store.Store, *gorm.DB) {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Machine{},
		&model.MachineEvent{},
		&model.EfficiencyRecord{},
	))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return store.NewGormStore(db, 500), db
}

func aggregatorConfig() *config.AggregatorConfig {
	return &config.AggregatorConfig{
		Enabled:               true,
		Interval:              10 * time.Minute,
		DefaultTargetStitches: 500,
	}
}

// seedMachine creates a machine through the registry and returns it.
func seedMachine(t *testing.T, s store.Store, uid string, target int) *model.Machine {
	t.Helper()
	machine, _, err := s.UpsertMachine(context.Background(), telemetry.Event{
		DeviceUID:  uid,
		Status:     model.StatusRunning,
		ObservedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	if target != 500 {
		require.NoError(t, s.DB().Model(machine).Update("target_stitches", target).Error)
		machine.TargetStitches = target
	}
	return machine
}

func appendEvent(t *testing.T, s store.Store, machineID int64, ts time.Time, stitches int64) {
	t.Helper()
	require.NoError(t, s.AppendEvent(context.Background(), &model.MachineEvent{
		MachineID:   machineID,
		StitchCount: stitches,
		Status:      model.StatusRunning,
		EventType:   model.EventTypeHeartbeat,
		EventTime:   ts,
	}))
}

func TestRunOnce_ComputesEfficiency(t *testing.T) {
	s, db := newTestStore(t)
	svc := NewService(aggregatorConfig(), s)
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 9, 10, 0, 0, time.UTC)
	machine := seedMachine(t, s, "EMB-600", 500)
	appendEvent(t, s, machine.ID, now.Add(-10*time.Minute), 100)
	appendEvent(t, s, machine.ID, now.Add(-1*time.Minute), 350)

	svc.RunOnce(ctx, now)

	var records []model.EfficiencyRecord
	require.NoError(t, db.Where("machine_id = ?", machine.ID).Find(&records).Error)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, int64(250), rec.TotalStitches)
	assert.InDelta(t, 50.0, rec.Efficiency, 1e-9)
	assert.Equal(t, now.Add(-10*time.Minute).Unix(), rec.WindowStart.Unix())
	assert.Equal(t, now.Unix(), rec.WindowEnd.Unix())
}

func TestRunOnce_InsufficientData(t *testing.T) {
	s, db := newTestStore(t)
	svc := NewService(aggregatorConfig(), s)
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 9, 10, 0, 0, time.UTC)
	machine := seedMachine(t, s, "EMB-601", 500)
	appendEvent(t, s, machine.ID, now.Add(-5*time.Minute), 100)

	svc.RunOnce(ctx, now)

	var count int64
	db.Model(&model.EfficiencyRecord{}).Where("machine_id = ?", machine.ID).Count(&count)
	assert.Zero(t, count, "a single event in the window must not produce a record")
}

func TestRunOnce_CounterResetYieldsNegativeDelta(t *testing.T) {
	s, db := newTestStore(t)
	svc := NewService(aggregatorConfig(), s)
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 9, 10, 0, 0, time.UTC)
	machine := seedMachine(t, s, "EMB-602", 500)
	appendEvent(t, s, machine.ID, now.Add(-8*time.Minute), 900)
	appendEvent(t, s, machine.ID, now.Add(-2*time.Minute), 50)

	svc.RunOnce(ctx, now)

	var records []model.EfficiencyRecord
	require.NoError(t, db.Where("machine_id = ?", machine.ID).Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, int64(-850), records[0].TotalStitches, "negative delta is stored as computed")
}

func TestRunOnce_ZeroTargetSkipsMachine(t *testing.T) {
	s, db := newTestStore(t)
	svc := NewService(aggregatorConfig(), s)
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 9, 10, 0, 0, time.UTC)
	machine := seedMachine(t, s, "EMB-603", 0)
	appendEvent(t, s, machine.ID, now.Add(-8*time.Minute), 100)
	appendEvent(t, s, machine.ID, now.Add(-2*time.Minute), 300)

	svc.RunOnce(ctx, now)

	var count int64
	db.Model(&model.EfficiencyRecord{}).Where("machine_id = ?", machine.ID).Count(&count)
	assert.Zero(t, count, "zero target must not divide; machine is skipped")
}

func TestRunOnce_EventsOutsideWindowIgnored(t *testing.T) {
	s, db := newTestStore(t)
	svc := NewService(aggregatorConfig(), s)
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 9, 10, 0, 0, time.UTC)
	machine := seedMachine(t, s, "EMB-604", 500)
	appendEvent(t, s, machine.ID, now.Add(-30*time.Minute), 1)     // before window
	appendEvent(t, s, machine.ID, now.Add(-9*time.Minute), 100)
	appendEvent(t, s, machine.ID, now.Add(-1*time.Minute), 400)
	appendEvent(t, s, machine.ID, now.Add(time.Minute), 9999) // after window

	svc.RunOnce(ctx, now)

	var records []model.EfficiencyRecord
	require.NoError(t, db.Where("machine_id = ?", machine.ID).Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, int64(300), records[0].TotalStitches)
}

// A failing machine must not prevent the others from being aggregated.
func TestRunOnce_MachinesAreIndependent(t *testing.T) {
	s, db := newTestStore(t)
	svc := NewService(aggregatorConfig(), s)
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 9, 10, 0, 0, time.UTC)
	broken := seedMachine(t, s, "EMB-605", 0) // config error, will be skipped
	healthy := seedMachine(t, s, "EMB-606", 500)
	appendEvent(t, s, broken.ID, now.Add(-5*time.Minute), 10)
	appendEvent(t, s, broken.ID, now.Add(-4*time.Minute), 20)
	appendEvent(t, s, healthy.ID, now.Add(-5*time.Minute), 100)
	appendEvent(t, s, healthy.ID, now.Add(-4*time.Minute), 200)

	svc.RunOnce(ctx, now)

	var count int64
	db.Model(&model.EfficiencyRecord{}).Where("machine_id = ?", healthy.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

// Re-running the same window appends a second record; duplicates are the
// documented contract.
func TestRunOnce_RerunAppends(t *testing.T) {
	s, db := newTestStore(t)
	svc := NewService(aggregatorConfig(), s)
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 9, 10, 0, 0, time.UTC)
	machine := seedMachine(t, s, "EMB-607", 500)
	appendEvent(t, s, machine.ID, now.Add(-9*time.Minute), 100)
	appendEvent(t, s, machine.ID, now.Add(-1*time.Minute), 350)

	svc.RunOnce(ctx, now)
	svc.RunOnce(ctx, now)

	var count int64
	db.Model(&model.EfficiencyRecord{}).Where("machine_id = ?", machine.ID).Count(&count)
	assert.Equal(t, int64(2), count)
}
