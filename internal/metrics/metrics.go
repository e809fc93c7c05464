package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/slawatch/slawatch/internal/model"
)

const namespace = "slawatch"

// Metrics bundles the engine's Prometheus collectors together with plain
// counters readable through Snapshot. The collectors feed scraping; the
// snapshot feeds the query surface.
type Metrics struct {
	measurementsIngested   atomic.Int64
	evaluations            atomic.Int64
	violationsDetected     atomic.Int64
	violationsResolved     atomic.Int64
	violationsAutoResolved atomic.Int64
	incidentsCreated       atomic.Int64
	incidentsEscalated     atomic.Int64
	incidentsAcknowledged  atomic.Int64
	incidentsResolved      atomic.Int64
	incidentsClosed        atomic.Int64
	notificationsSent      atomic.Int64
	notificationsFailed    atomic.Int64
	notificationsRetried   atomic.Int64
	notificationsExhausted atomic.Int64
	recoveryExecuted       atomic.Int64
	recoveryFailed         atomic.Int64

	measurementsTotal  prometheus.Counter
	evaluationsTotal   prometheus.Counter
	violationsTotal    *prometheus.CounterVec
	incidentsTotal     *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	recoveryTotal      *prometheus.CounterVec
	eventsTotal        *prometheus.CounterVec

	activeViolations prometheus.Gauge
	activeIncidents  prometheus.Gauge
	queueDepth       prometheus.Gauge

	evaluationSeconds prometheus.Histogram
	deliverySeconds   prometheus.Histogram
	recoverySeconds   prometheus.Histogram
}

// Snapshot is a point-in-time view of engine activity with derived rates
type Snapshot struct {
	MeasurementsIngested   int64   `json:"measurements_ingested"`
	Evaluations            int64   `json:"evaluations"`
	ViolationsDetected     int64   `json:"violations_detected"`
	ViolationsResolved     int64   `json:"violations_resolved"`
	ViolationsAutoResolved int64   `json:"violations_auto_resolved"`
	IncidentsCreated       int64   `json:"incidents_created"`
	IncidentsEscalated     int64   `json:"incidents_escalated"`
	IncidentsAcknowledged  int64   `json:"incidents_acknowledged"`
	IncidentsResolved      int64   `json:"incidents_resolved"`
	IncidentsClosed        int64   `json:"incidents_closed"`
	NotificationsSent      int64   `json:"notifications_sent"`
	NotificationsFailed    int64   `json:"notifications_failed"`
	NotificationsRetried   int64   `json:"notifications_retried"`
	NotificationsExhausted int64   `json:"notifications_exhausted"`
	RecoveryExecuted       int64   `json:"recovery_executed"`
	RecoveryFailed         int64   `json:"recovery_failed"`
	ViolationRate          float64 `json:"violation_rate"`
	ResolutionRate         float64 `json:"resolution_rate"`
}

// New creates the collector bundle. Register must be called before scraping.
func New() *Metrics {
	return &Metrics{
		measurementsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_total",
			Help:      "Total measurements ingested.",
		}),
		evaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Total SLA evaluation cycles per definition.",
		}),
		violationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Violation transitions, partitioned by outcome.",
		}, []string{"outcome"}),
		incidentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_total",
			Help:      "Incident transitions, partitioned by transition.",
		}, []string{"transition"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries, partitioned by outcome.",
		}, []string{"outcome"}),
		recoveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_actions_total",
			Help:      "Recovery action attempts, partitioned by action and outcome.",
		}, []string{"action", "outcome"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Bus events published, partitioned by outcome.",
		}, []string{"outcome"}),
		activeViolations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_violations",
			Help:      "Currently unresolved violations.",
		}),
		activeIncidents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_incidents",
			Help:      "Currently open incidents.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_queue_depth",
			Help:      "Pending jobs in the delivery queue.",
		}),
		evaluationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_seconds",
			Help:      "SLA evaluation cycle latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		deliverySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_seconds",
			Help:      "Notification delivery latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		recoverySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recovery_seconds",
			Help:      "Recovery action latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// Register attaches all collectors to the supplied registerer
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.measurementsTotal,
		m.evaluationsTotal,
		m.violationsTotal,
		m.incidentsTotal,
		m.notificationsTotal,
		m.recoveryTotal,
		m.eventsTotal,
		m.activeViolations,
		m.activeIncidents,
		m.queueDepth,
		m.evaluationSeconds,
		m.deliverySeconds,
		m.recoverySeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// MeasurementIngested counts one accepted measurement
func (m *Metrics) MeasurementIngested() {
	m.measurementsIngested.Add(1)
	m.measurementsTotal.Inc()
}

// EvaluationCompleted records one per-definition evaluation pass
func (m *Metrics) EvaluationCompleted(seconds float64) {
	m.evaluations.Add(1)
	m.evaluationsTotal.Inc()
	m.evaluationSeconds.Observe(seconds)
}

// ViolationDetected counts one newly opened violation
func (m *Metrics) ViolationDetected() {
	m.violationsDetected.Add(1)
	m.violationsTotal.WithLabelValues("detected").Inc()
}

// ViolationResolved counts one violation closed by compliance return
func (m *Metrics) ViolationResolved() {
	m.violationsResolved.Add(1)
	m.violationsTotal.WithLabelValues("resolved").Inc()
}

// ViolationAutoResolved counts one violation closed by the timeout sweep
func (m *Metrics) ViolationAutoResolved() {
	m.violationsAutoResolved.Add(1)
	m.violationsTotal.WithLabelValues("auto_resolved").Inc()
}

// IncidentTransition counts incident lifecycle transitions
func (m *Metrics) IncidentTransition(transition string) {
	switch transition {
	case "created":
		m.incidentsCreated.Add(1)
	case "escalated":
		m.incidentsEscalated.Add(1)
	case "acknowledged":
		m.incidentsAcknowledged.Add(1)
	case "resolved":
		m.incidentsResolved.Add(1)
	case "closed":
		m.incidentsClosed.Add(1)
	}
	m.incidentsTotal.WithLabelValues(transition).Inc()
}

// NotificationSent records a successful delivery
func (m *Metrics) NotificationSent(seconds float64) {
	m.notificationsSent.Add(1)
	m.notificationsTotal.WithLabelValues("sent").Inc()
	m.deliverySeconds.Observe(seconds)
}

// NotificationFailed records a failed delivery attempt
func (m *Metrics) NotificationFailed() {
	m.notificationsFailed.Add(1)
	m.notificationsTotal.WithLabelValues("failed").Inc()
}

// NotificationRetried records a retry attempt
func (m *Metrics) NotificationRetried() {
	m.notificationsRetried.Add(1)
	m.notificationsTotal.WithLabelValues("retried").Inc()
}

// NotificationExhausted records a notification whose retry budget ran out
func (m *Metrics) NotificationExhausted() {
	m.notificationsExhausted.Add(1)
	m.notificationsTotal.WithLabelValues("exhausted").Inc()
}

// RecoveryExecuted records one remediation attempt
func (m *Metrics) RecoveryExecuted(action model.RecoveryAction, success bool, seconds float64) {
	m.recoveryExecuted.Add(1)
	outcome := "success"
	if !success {
		outcome = "failure"
		m.recoveryFailed.Add(1)
	}
	m.recoveryTotal.WithLabelValues(string(action), outcome).Inc()
	m.recoverySeconds.Observe(seconds)
}

// EventPublished records a bus publish outcome
func (m *Metrics) EventPublished(err error) {
	if err != nil {
		m.eventsTotal.WithLabelValues("error").Inc()
		return
	}
	m.eventsTotal.WithLabelValues("published").Inc()
}

// SetActiveViolations updates the active violation gauge
func (m *Metrics) SetActiveViolations(n int) {
	m.activeViolations.Set(float64(n))
}

// SetActiveIncidents updates the active incident gauge
func (m *Metrics) SetActiveIncidents(n int) {
	m.activeIncidents.Set(float64(n))
}

// SetQueueDepth updates the delivery queue gauge
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// Snapshot returns current counts and derived rates
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		MeasurementsIngested:   m.measurementsIngested.Load(),
		Evaluations:            m.evaluations.Load(),
		ViolationsDetected:     m.violationsDetected.Load(),
		ViolationsResolved:     m.violationsResolved.Load(),
		ViolationsAutoResolved: m.violationsAutoResolved.Load(),
		IncidentsCreated:       m.incidentsCreated.Load(),
		IncidentsEscalated:     m.incidentsEscalated.Load(),
		IncidentsAcknowledged:  m.incidentsAcknowledged.Load(),
		IncidentsResolved:      m.incidentsResolved.Load(),
		IncidentsClosed:        m.incidentsClosed.Load(),
		NotificationsSent:      m.notificationsSent.Load(),
		NotificationsFailed:    m.notificationsFailed.Load(),
		NotificationsRetried:   m.notificationsRetried.Load(),
		NotificationsExhausted: m.notificationsExhausted.Load(),
		RecoveryExecuted:       m.recoveryExecuted.Load(),
		RecoveryFailed:         m.recoveryFailed.Load(),
	}
	if s.Evaluations > 0 {
		s.ViolationRate = float64(s.ViolationsDetected) / float64(s.Evaluations)
	}
	if s.IncidentsCreated > 0 {
		s.ResolutionRate = float64(s.IncidentsResolved+s.IncidentsClosed) / float64(s.IncidentsCreated)
	}
	return s
}
