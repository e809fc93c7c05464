package monitor

import (
	"context"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/model"
)

// Recorder accepts measurements for SLA evaluation
type Recorder interface {
	RecordMeasurement(ctx context.Context, service string, metric model.MetricType, value float64, labels map[string]string) error
}

// Saturation thresholds above which the host counts as unavailable for one sample
const (
	cpuSaturatedPct = 95.0
	memSaturatedPct = 95.0
)

// SystemCollector samples host health and feeds availability measurements for
// the engine's own service into the evaluator. Each sample is binary: 100
// when the host is responsive, 0 when CPU or memory is saturated, so the
// window mean reads as availability percent.
type SystemCollector struct {
	logger   *zap.Logger
	recorder Recorder
	service  string
	interval time.Duration
	stop     chan struct{}
}

// NewSystemCollector creates a collector reporting as the given service name
func NewSystemCollector(logger *zap.Logger, recorder Recorder, service string, interval time.Duration) *SystemCollector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SystemCollector{
		logger:   logger.Named("collector"),
		recorder: recorder,
		service:  service,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start launches the sampling loop
func (c *SystemCollector) Start(ctx context.Context) {
	c.logger.Info("System collector started",
		zap.String("service", c.service),
		zap.Duration("interval", c.interval))
	go c.collectLoop(ctx)
}

// Stop stops the sampling loop
func (c *SystemCollector) Stop() {
	close(c.stop)
}

func (c *SystemCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *SystemCollector) collect(ctx context.Context) {
	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		c.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	sample := 100.0
	if cpuPercent[0] >= cpuSaturatedPct || memInfo.UsedPercent >= memSaturatedPct {
		sample = 0.0
	}

	labels := map[string]string{
		"cpu_pct": strconv.FormatFloat(cpuPercent[0], 'f', 1, 64),
		"mem_pct": strconv.FormatFloat(memInfo.UsedPercent, 'f', 1, 64),
	}

	if err := c.recorder.RecordMeasurement(ctx, c.service, model.MetricAvailability, sample, labels); err != nil {
		c.logger.Error("Failed to record availability sample", zap.Error(err))
		return
	}

	c.logger.Debug("Availability sample recorded",
		zap.Float64("sample", sample),
		zap.Float64("cpu_pct", cpuPercent[0]),
		zap.Float64("mem_pct", memInfo.UsedPercent))
}
