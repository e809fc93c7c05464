package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slawatch/slawatch/internal/model"
)

func TestRingBuffer_OverwritesOldest(t *testing.T) {
	ring := newRingBuffer(3)
	for i := 0; i < 5; i++ {
		ring.append(model.Measurement{ID: fmt.Sprintf("m%d", i)})
	}

	snap := ring.snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, "m2", snap[0].ID)
	require.Equal(t, "m3", snap[1].ID)
	require.Equal(t, "m4", snap[2].ID)
}

func TestMeasurementBuffer_Since(t *testing.T) {
	buf := NewMeasurementBuffer(10)
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		buf.Add(model.Measurement{
			ID:        fmt.Sprintf("m%d", i),
			Service:   "finrep_generator",
			Metric:    model.MetricResponseTime,
			Timestamp: now.Add(time.Duration(i-3) * time.Minute),
		})
	}

	// Cutoff keeps the entry at the boundary and everything after it
	got := buf.Since("finrep_generator", model.MetricResponseTime, now.Add(-time.Minute))
	require.Len(t, got, 2)
	require.Equal(t, "m2", got[0].ID)
	require.Equal(t, "m3", got[1].ID)

	require.Nil(t, buf.Since("unknown_service", model.MetricResponseTime, now))
	require.Nil(t, buf.Since("finrep_generator", model.MetricThroughput, now))
}

func TestMeasurementBuffer_SeriesAreIndependent(t *testing.T) {
	buf := NewMeasurementBuffer(10)
	now := time.Now().UTC()

	buf.Add(model.Measurement{ID: "a", Service: "finrep_generator", Metric: model.MetricResponseTime, Timestamp: now})
	buf.Add(model.Measurement{ID: "b", Service: "finrep_generator", Metric: model.MetricErrorRate, Timestamp: now})
	buf.Add(model.Measurement{ID: "c", Service: "sftp_delivery", Metric: model.MetricResponseTime, Timestamp: now})

	require.Equal(t, 1, buf.Len("finrep_generator", model.MetricResponseTime))
	require.Equal(t, 1, buf.Len("finrep_generator", model.MetricErrorRate))
	require.Equal(t, 1, buf.Len("sftp_delivery", model.MetricResponseTime))
	require.Equal(t, 0, buf.Len("sftp_delivery", model.MetricErrorRate))
}
