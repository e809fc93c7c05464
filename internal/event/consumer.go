package event

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/model"
)

// Measurement ingest stream and subject
const (
	MeasurementStream  = "SLA_MEASUREMENTS"
	SubjectMeasurement = "measurement.recorded"
)

// measurementEvent is the wire form monitored services publish
type measurementEvent struct {
	Service string            `json:"service"`
	Metric  string            `json:"metric"`
	Value   float64           `json:"value"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// Recorder ingests measurements into the evaluation pipeline
type Recorder interface {
	RecordMeasurement(ctx context.Context, service string, metric model.MetricType, value float64, labels map[string]string) error
}

// Consumer feeds measurements published by monitored services into the
// evaluator. Malformed events are logged and dropped; the stream is not a
// work queue worth poisoning with redeliveries.
type Consumer struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	recorder Recorder
	sub      *nats.Subscription
}

// NewConsumer creates a measurement ingest consumer
func NewConsumer(js nats.JetStreamContext, logger *zap.Logger, recorder Recorder) *Consumer {
	return &Consumer{
		logger:   logger.Named("ingest"),
		js:       js,
		recorder: recorder,
	}
}

// Start ensures the ingest stream exists and subscribes to it
func (c *Consumer) Start(ctx context.Context) error {
	info, err := c.js.StreamInfo(MeasurementStream)
	if err != nil && err != nats.ErrStreamNotFound {
		return err
	}
	if info == nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     MeasurementStream,
			Subjects: []string{SubjectMeasurement},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return err
		}
		c.logger.Info("Created stream", zap.String("name", MeasurementStream))
	}

	sub, err := c.js.Subscribe(SubjectMeasurement, c.handle(ctx))
	if err != nil {
		return err
	}
	c.sub = sub

	c.logger.Info("Measurement consumer started", zap.String("subject", SubjectMeasurement))
	return nil
}

// Stop unsubscribes from the ingest stream
func (c *Consumer) Stop() {
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
}

func (c *Consumer) handle(ctx context.Context) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var ev measurementEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			c.logger.Error("Failed to unmarshal measurement", zap.Error(err))
			return
		}
		if ev.Service == "" || ev.Metric == "" {
			c.logger.Warn("Measurement event missing service or metric")
			return
		}

		if err := c.recorder.RecordMeasurement(ctx, ev.Service, model.MetricType(ev.Metric), ev.Value, ev.Labels); err != nil {
			c.logger.Error("Failed to record measurement",
				zap.String("service", ev.Service),
				zap.String("metric", ev.Metric),
				zap.Error(err))
			return
		}

		msg.Ack()
	}
}
