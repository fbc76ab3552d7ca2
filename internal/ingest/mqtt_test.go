package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embroidery-telemetry-backend/config"
	"embroidery-telemetry-backend/internal/model"
)

func TestSubscriber_HandleMessage(t *testing.T) {
	s, db := newTestStore(t)
	sub := NewSubscriber(&config.MQTTConfig{Topic: "machines/+/data"}, NewGateway(s, nil))
	ctx := context.Background()

	t.Run("valid payload is ingested", func(t *testing.T) {
		sub.HandleMessage(ctx, "machines/EMB-900/data",
			[]byte(`{"deviceId":"EMB-900","stitches":321,"threadBreak":"2","status":"RUNNING"}`))

		machine, err := s.GetMachine(ctx, "EMB-900")
		require.NoError(t, err)
		assert.Equal(t, int64(321), machine.TotalStitches)
		assert.Equal(t, int64(2), machine.ThreadBreakCount)

		var eventCount int64
		db.Model(&model.MachineEvent{}).Where("machine_id = ?", machine.ID).Count(&eventCount)
		assert.Equal(t, int64(1), eventCount)
	})

	t.Run("malformed JSON is dropped", func(t *testing.T) {
		sub.HandleMessage(ctx, "machines/EMB-901/data", []byte(`{"deviceId": "EMB-`))

		_, err := s.GetMachine(ctx, "EMB-901")
		assert.Error(t, err)
	})

	t.Run("payload without deviceId is dropped, not stored", func(t *testing.T) {
		var before int64
		db.Model(&model.Machine{}).Count(&before)

		sub.HandleMessage(ctx, "machines/EMB-902/data", []byte(`{"stitches":100}`))

		var after int64
		db.Model(&model.Machine{}).Count(&after)
		assert.Equal(t, before, after)
	})
}
