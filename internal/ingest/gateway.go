package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"embroidery-telemetry-backend/internal/model"
	"embroidery-telemetry-backend/internal/notification"
	"embroidery-telemetry-backend/internal/store"
	"embroidery-telemetry-backend/internal/telemetry"
)

// Source identifies which ingress path delivered a payload. Both paths run
// the same validation and storage steps; the source only shows up in logs.
type Source string

const (
	SourceDeviceChannel Source = "device-channel"
	SourceAPI           Source = "request-endpoint"
)

// PartialIngestError reports that the registry state was updated but the
// event history append failed. Registry state without a backing event breaks
// the aggregator's input, so this is surfaced as its own failure class
// rather than folded into a clean success or failure.
type PartialIngestError struct {
	Machine *model.Machine
	Err     error
}

func (e *PartialIngestError) Error() string {
	return fmt.Sprintf("event ingested partially for machine %s: state updated, history append failed: %v", e.Machine.UID, e.Err)
}

func (e *PartialIngestError) Unwrap() error {
	return e.Err
}

// Gateway is the single ingestion path shared by the device channel and the
// request endpoint.
type Gateway struct {
	store store.Store
	pool  *notification.WorkerPool
	now   func() time.Time
}

// NewGateway creates a gateway. pool may be nil when push alerts are
// disabled.
func NewGateway(s store.Store, pool *notification.WorkerPool) *Gateway {
	return &Gateway{
		store: s,
		pool:  pool,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Ingest normalizes a raw payload, updates the machine registry and appends
// the event to the history log. On success it returns the updated machine
// snapshot. A normalization failure leaves both stores untouched; a history
// append failure after a successful registry write is returned as
// *PartialIngestError.
func (g *Gateway) Ingest(ctx context.Context, raw telemetry.RawPayload, source Source) (*model.Machine, error) {
	ev, err := telemetry.Normalize(raw, g.now())
	if err != nil {
		return nil, err
	}

	machine, breakAlert, err := g.store.UpsertMachine(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("ingest from %s: %w", source, err)
	}

	event := &model.MachineEvent{
		MachineID:        machine.ID,
		StitchCount:      ev.StitchCount,
		AlterStitchCount: ev.AlterStitchCount,
		ThreadBreak:      ev.ThreadBreak,
		Status:           ev.Status,
		EventType:        ev.EventType,
		EventTime:        ev.EventTime,
	}
	if err := g.store.AppendEvent(ctx, event); err != nil {
		return machine, &PartialIngestError{Machine: machine, Err: err}
	}

	if breakAlert && g.pool != nil {
		g.pool.Dispatch(machine.ID)
	}

	log.Printf("Ingested %s event from %s for machine %s", ev.EventType, source, machine.UID)
	return machine, nil
}
