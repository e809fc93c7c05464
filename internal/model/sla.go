package model

import "time"

// MetricType represents the kind of performance metric an SLA tracks
type MetricType string

const (
	MetricResponseTime   MetricType = "response_time"
	MetricThroughput     MetricType = "throughput"
	MetricAvailability   MetricType = "availability"
	MetricSuccessRate    MetricType = "success_rate"
	MetricErrorRate      MetricType = "error_rate"
	MetricProcessingTime MetricType = "processing_time"
	MetricQueueTime      MetricType = "queue_time"
	MetricDeliveryTime   MetricType = "delivery_time"
	MetricComplianceRate MetricType = "compliance_rate"
)

// HigherIsBetter reports whether larger values of the metric indicate
// healthier behavior. Time- and error-based metrics degrade as they grow.
func (m MetricType) HigherIsBetter() bool {
	switch m {
	case MetricThroughput, MetricAvailability, MetricSuccessRate, MetricComplianceRate:
		return true
	default:
		return false
	}
}

// Operator represents the comparison applied between a measurement and a threshold
type Operator string

const (
	OperatorGreater      Operator = ">"
	OperatorGreaterEqual Operator = ">="
	OperatorLess         Operator = "<"
	OperatorLessEqual    Operator = "<="
	OperatorEqual        Operator = "=="
)

// EqualityTolerance is the numeric tolerance used by OperatorEqual so float
// measurements are never compared with exact equality.
const EqualityTolerance = 0.001

// Compare evaluates value against threshold using the operator. It reports
// whether the measurement satisfies the SLA condition.
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OperatorGreater:
		return value > threshold
	case OperatorGreaterEqual:
		return value >= threshold
	case OperatorLess:
		return value < threshold
	case OperatorLessEqual:
		return value <= threshold
	case OperatorEqual:
		diff := value - threshold
		if diff < 0 {
			diff = -diff
		}
		return diff <= EqualityTolerance
	default:
		return false
	}
}

// Severity represents how serious a breach of an SLA is
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// SLADefinition defines a service-level objective: which metric of which
// service is evaluated, against what threshold, over what window
type SLADefinition struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Service            string        `json:"service"`
	Metric             MetricType    `json:"metric"`
	Threshold          float64       `json:"threshold"`
	Operator           Operator      `json:"operator"`
	Window             time.Duration `json:"window"`
	EvaluationInterval time.Duration `json:"evaluation_interval"`
	BreachThresholdPct float64       `json:"breach_threshold_pct"`
	Severity           Severity      `json:"severity"`
	Enabled            bool          `json:"enabled"`
	Description        string        `json:"description,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Measurement is a single recorded observation of a service metric
type Measurement struct {
	ID        string            `json:"id"`
	SLAID     string            `json:"sla_id,omitempty"`
	Service   string            `json:"service"`
	Metric    MetricType        `json:"metric"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Violation records a detected breach of one SLA definition for one service
type Violation struct {
	ID              string        `json:"id"`
	SLAID           string        `json:"sla_id"`
	Service         string        `json:"service"`
	Metric          MetricType    `json:"metric"`
	Threshold       float64       `json:"threshold"`
	Observed        float64       `json:"observed"`
	BreachPct       float64       `json:"breach_pct"`
	Severity        Severity      `json:"severity"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	Duration        time.Duration `json:"duration,omitempty"`
	Resolved        bool          `json:"resolved"`
	RootCause       string        `json:"root_cause,omitempty"`
	ResolutionNotes string        `json:"resolution_notes,omitempty"`
}

// Key returns the registry key enforcing the one-active-violation-per-pair
// invariant.
func (v *Violation) Key() string {
	return v.SLAID + ":" + v.Service
}
