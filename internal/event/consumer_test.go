package event

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/model"
	"github.com/slawatch/slawatch/internal/testutil"
)

type recordedSample struct {
	service string
	metric  model.MetricType
	value   float64
	labels  map[string]string
}

type fakeRecorder struct {
	mu      sync.Mutex
	samples []recordedSample
}

// RecordMeasurement implements Recorder.RecordMeasurement.
func (f *fakeRecorder) RecordMeasurement(ctx context.Context, service string, metric model.MetricType, value float64, labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, recordedSample{service: service, metric: metric, value: value, labels: labels})
	return nil
}

func (f *fakeRecorder) all() []recordedSample {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedSample, len(f.samples))
	copy(out, f.samples)
	return out
}

func TestConsumer(t *testing.T) {
	// Setup test environment
	js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	recorder := &fakeRecorder{}
	c := NewConsumer(js, zap.NewNop(), recorder)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	t.Run("Creates Stream", func(t *testing.T) {
		info, err := js.StreamInfo(MeasurementStream)
		require.NoError(t, err)
		assert.Equal(t, []string{SubjectMeasurement}, info.Config.Subjects)
	})

	t.Run("Ingests Measurement", func(t *testing.T) {
		data, err := json.Marshal(map[string]interface{}{
			"service": "finrep_generator",
			"metric":  "response_time",
			"value":   245.5,
			"labels":  map[string]string{"region": "eu"},
		})
		require.NoError(t, err)

		_, err = js.Publish(SubjectMeasurement, data)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return len(recorder.all()) == 1
		}, 2*time.Second, 10*time.Millisecond)

		sample := recorder.all()[0]
		assert.Equal(t, "finrep_generator", sample.service)
		assert.Equal(t, model.MetricResponseTime, sample.metric)
		assert.Equal(t, 245.5, sample.value)
		assert.Equal(t, map[string]string{"region": "eu"}, sample.labels)
	})

	t.Run("Drops Malformed Events", func(t *testing.T) {
		_, err := js.Publish(SubjectMeasurement, []byte("not json"))
		require.NoError(t, err)

		_, err = js.Publish(SubjectMeasurement, []byte(`{"metric":"response_time","value":1}`))
		require.NoError(t, err)

		// Then one valid event to prove the consumer survived
		data, err := json.Marshal(map[string]interface{}{
			"service": "sftp_delivery",
			"metric":  "success_rate",
			"value":   99.9,
		})
		require.NoError(t, err)
		_, err = js.Publish(SubjectMeasurement, data)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return len(recorder.all()) == 2
		}, 2*time.Second, 10*time.Millisecond)

		sample := recorder.all()[1]
		assert.Equal(t, "sftp_delivery", sample.service)
		assert.Nil(t, sample.labels)
	})
}
