package aggregator

import (
	"context"
	"log"
	"time"

	"embroidery-telemetry-backend/config"
	"embroidery-telemetry-backend/internal/model"
	"embroidery-telemetry-backend/internal/store"
)

// Service computes per-machine efficiency over a trailing fixed window on a
// wall-clock cadence, independent of ingestion traffic.
type Service struct {
	cfg   *config.AggregatorConfig
	store store.Store
	now   func() time.Time
}

// NewService creates an aggregator service.
func NewService(cfg *config.AggregatorConfig, s store.Store) *Service {
	return &Service{
		cfg:   cfg,
		store: s,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Run executes aggregation passes on the configured interval until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Println("Aggregator is disabled. Not starting.")
		return
	}
	log.Printf("Starting efficiency aggregator, interval %s", s.cfg.Interval)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Aggregator shutting down.")
			return
		case <-timer.C:
			s.RunOnce(ctx, s.now())
			timer.Reset(s.cfg.Interval)
		}
	}
}

// RunOnce performs a single aggregation pass with the given clock reading.
// Each machine is an independent unit of work: per-machine failures are
// logged and skipped, never aborting the batch.
func (s *Service) RunOnce(ctx context.Context, now time.Time) {
	machines, err := s.store.ListMachines(ctx)
	if err != nil {
		log.Printf("Aggregation pass aborted, cannot list machines: %v", err)
		return
	}

	windowEnd := now
	windowStart := now.Add(-s.cfg.Interval)

	written := 0
	for _, machine := range machines {
		if s.aggregateMachine(ctx, machine, windowStart, windowEnd) {
			written++
		}
	}
	log.Printf("Aggregation pass complete: %d machines scanned, %d efficiency records written", len(machines), written)
}

// aggregateMachine computes and persists one machine's efficiency record.
// Returns true when a record was written.
func (s *Service) aggregateMachine(ctx context.Context, machine model.Machine, windowStart, windowEnd time.Time) bool {
	if machine.TargetStitches <= 0 {
		log.Printf("Warning: machine %s has target_stitches %d, skipping (configuration error)",
			machine.UID, machine.TargetStitches)
		return false
	}

	events, err := s.store.EventsInRange(ctx, machine.ID, windowStart, windowEnd)
	if err != nil {
		log.Printf("Error fetching events for machine %s: %v", machine.UID, err)
		return false
	}

	// One event gives no delta; skip silently until the next window.
	if len(events) < 2 {
		return false
	}

	first := events[0]
	last := events[len(events)-1]

	// A counter reset mid-window yields a negative delta. It is persisted as
	// computed; interpretation is a downstream concern.
	delta := last.StitchCount - first.StitchCount
	efficiency := float64(delta) / float64(machine.TargetStitches) * 100

	rec := &model.EfficiencyRecord{
		MachineID:     machine.ID,
		WindowStart:   windowStart,
		WindowEnd:     windowEnd,
		TotalStitches: delta,
		Efficiency:    efficiency,
	}
	if err := s.store.InsertEfficiency(ctx, rec); err != nil {
		log.Printf("Error persisting efficiency record for machine %s: %v", machine.UID, err)
		return false
	}
	return true
}
