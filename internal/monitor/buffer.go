package monitor

import (
	"sync"
	"time"

	"github.com/slawatch/slawatch/internal/model"
)

// DefaultBufferCapacity is the per-series ring size when no override is configured
const DefaultBufferCapacity = 10000

type seriesKey struct {
	service string
	metric  model.MetricType
}

// ringBuffer holds a fixed number of measurements, overwriting the oldest
// entry once full
type ringBuffer struct {
	data  []model.Measurement
	next  int
	count int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{data: make([]model.Measurement, capacity)}
}

func (r *ringBuffer) append(m model.Measurement) {
	r.data[r.next] = m
	r.next = (r.next + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// snapshot returns the buffered measurements in insertion order
func (r *ringBuffer) snapshot() []model.Measurement {
	out := make([]model.Measurement, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.data)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.data[(start+i)%len(r.data)])
	}
	return out
}

// MeasurementBuffer keeps the hot measurement window per (service, metric)
// series. It is a cache over the measurement store; evaluation merges both
// sides so buffered entries that aged past the ring capacity are not lost.
type MeasurementBuffer struct {
	mu       sync.RWMutex
	capacity int
	series   map[seriesKey]*ringBuffer
}

// NewMeasurementBuffer creates a buffer with the given per-series capacity
func NewMeasurementBuffer(capacity int) *MeasurementBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &MeasurementBuffer{
		capacity: capacity,
		series:   make(map[seriesKey]*ringBuffer),
	}
}

// Add appends one measurement to its series ring
func (b *MeasurementBuffer) Add(m model.Measurement) {
	key := seriesKey{service: m.Service, metric: m.Metric}

	b.mu.Lock()
	defer b.mu.Unlock()

	ring, ok := b.series[key]
	if !ok {
		ring = newRingBuffer(b.capacity)
		b.series[key] = ring
	}
	ring.append(m)
}

// Since returns buffered measurements for the series with a timestamp at or
// after cutoff, in insertion order.
func (b *MeasurementBuffer) Since(service string, metric model.MetricType, cutoff time.Time) []model.Measurement {
	b.mu.RLock()
	ring, ok := b.series[seriesKey{service: service, metric: metric}]
	if !ok {
		b.mu.RUnlock()
		return nil
	}
	all := ring.snapshot()
	b.mu.RUnlock()

	var out []model.Measurement
	for _, m := range all {
		if !m.Timestamp.Before(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

// Len reports how many measurements the series currently buffers
func (b *MeasurementBuffer) Len(service string, metric model.MetricType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ring, ok := b.series[seriesKey{service: service, metric: metric}]
	if !ok {
		return 0
	}
	return ring.count
}
