package persistence

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroll/classroll-bot/internal/domain/attendance"
	"github.com/classroll/classroll-bot/internal/infrastructure/metrics"
)

type countingGateway struct {
	saves    atomic.Int32
	failures int32
}

func (g *countingGateway) Load(context.Context) (*attendance.Snapshot, error) {
	return &attendance.Snapshot{Version: 7}, nil
}

func (g *countingGateway) Save(context.Context, *attendance.Snapshot) error {
	if g.saves.Add(1) <= g.failures {
		return errors.New("disk full")
	}
	return nil
}

func checkpoints(t *testing.T, m *metrics.Metrics, result string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "classroll_checkpoints_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestInstrument_RetriesTransientFailure(t *testing.T) {
	m := metrics.New()
	inner := &countingGateway{failures: 1}
	gw := Instrument(inner, m, nil)

	require.NoError(t, gw.Save(context.Background(), &attendance.Snapshot{Version: 1}))
	assert.Equal(t, int32(2), inner.saves.Load())
	assert.Equal(t, 1.0, checkpoints(t, m, "ok"))
}

func TestInstrument_ReportsPersistentFailure(t *testing.T) {
	m := metrics.New()
	inner := &countingGateway{failures: 100}
	gw := Instrument(inner, m, nil)

	err := gw.Save(context.Background(), &attendance.Snapshot{Version: 1})
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, int32(3), inner.saves.Load())
	assert.Equal(t, 1.0, checkpoints(t, m, "failed"))
}

func TestInstrument_LoadPassesThrough(t *testing.T) {
	gw := Instrument(&countingGateway{}, nil, nil)
	snap, err := gw.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), snap.Version)
}

func TestInstrument_StoreSurfacesDurability(t *testing.T) {
	gw := Instrument(&countingGateway{failures: 100}, nil, nil)
	store := attendance.NewStore(attendance.DefaultStoreConfig(), gw)

	created, err := store.AddTeacher(context.Background(), "t1@c.us", "Dr. Smith")
	assert.True(t, created)
	require.Error(t, err)
	_, ok := store.Teacher("t1@c.us")
	assert.True(t, ok)
}
