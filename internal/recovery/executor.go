package recovery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/metrics"
	"github.com/slawatch/slawatch/internal/model"
	"github.com/slawatch/slawatch/internal/storage"
)

// Config tunes the recovery executor
type Config struct {
	Enabled bool
	Timeout time.Duration
	// ServiceClasses overrides or extends the built-in service classification,
	// mapping service name to class name
	ServiceClasses map[string]string
}

func (c *Config) withDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Executor picks remediation actions for an incident from the decision table
// and runs them through registered adapters. Every attempt is persisted,
// successful or not.
type Executor struct {
	logger   *zap.Logger
	cfg      Config
	store    storage.RecoveryStore
	adapters map[model.RecoveryAction]RemediationAdapter
	metrics  *metrics.Metrics
	classes  map[string]model.ServiceClass
}

// NewExecutor creates a recovery executor; adapters are registered separately
func NewExecutor(logger *zap.Logger, cfg Config, store storage.RecoveryStore, m *metrics.Metrics) *Executor {
	cfg.withDefaults()

	classes := builtinClasses()
	for service, class := range cfg.ServiceClasses {
		classes[service] = model.ServiceClass(class)
	}

	return &Executor{
		logger:   logger.Named("recovery"),
		cfg:      cfg,
		store:    store,
		adapters: make(map[model.RecoveryAction]RemediationAdapter),
		metrics:  m,
		classes:  classes,
	}
}

// RegisterAdapter wires a remediation adapter into the executor
func (e *Executor) RegisterAdapter(a RemediationAdapter) {
	e.adapters[a.Action()] = a
}

// Classify returns the service class driving the decision table row
func (e *Executor) Classify(service string) model.ServiceClass {
	if class, ok := e.classes[service]; ok {
		return class
	}
	return model.ClassUnclassified
}

// Execute implements incident.Recoverer. It runs the decision table's actions
// in order and returns every attempt; callers decide what to do with failures.
func (e *Executor) Execute(ctx context.Context, inc *model.Incident) []*model.RecoveryResult {
	if !e.cfg.Enabled {
		return nil
	}

	class := e.Classify(inc.Service)
	actions := actionsFor(class, inc.Severity)

	e.logger.Info("Executing recovery actions",
		zap.String("incident_id", inc.ID),
		zap.String("service", inc.Service),
		zap.String("class", string(class)),
		zap.Int("actions", len(actions)))

	results := make([]*model.RecoveryResult, 0, len(actions))
	for _, action := range actions {
		results = append(results, e.runAction(ctx, inc, action))
	}
	return results
}

func (e *Executor) runAction(ctx context.Context, inc *model.Incident, action model.RecoveryAction) *model.RecoveryResult {
	result := &model.RecoveryResult{
		ID:         uuid.New().String(),
		IncidentID: inc.ID,
		Service:    inc.Service,
		Action:     action,
		ExecutedAt: time.Now().UTC(),
	}

	if adapter, ok := e.adapters[action]; ok {
		actx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		start := time.Now()
		output, err := adapter.Execute(actx, inc.Service, action)
		cancel()

		result.Duration = time.Since(start)
		result.Output = output
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Success = true
		}
	} else {
		result.Error = ErrUnknownAction.Error()
	}

	if e.metrics != nil {
		e.metrics.RecoveryExecuted(action, result.Success, result.Duration.Seconds())
	}
	if err := e.store.InsertRecoveryResult(ctx, result); err != nil {
		e.logger.Error("Failed to persist recovery result",
			zap.String("incident_id", inc.ID),
			zap.String("action", string(action)),
			zap.Error(err))
	}

	if result.Success {
		e.logger.Info("Recovery action succeeded",
			zap.String("incident_id", inc.ID),
			zap.String("service", inc.Service),
			zap.String("action", string(action)),
			zap.Duration("duration", result.Duration))
	} else {
		e.logger.Warn("Recovery action failed",
			zap.String("incident_id", inc.ID),
			zap.String("service", inc.Service),
			zap.String("action", string(action)),
			zap.String("error", result.Error))
	}
	return result
}

// builtinClasses maps the known regulatory reporting services to their
// recovery strategy
func builtinClasses() map[string]model.ServiceClass {
	return map[string]model.ServiceClass{
		"finrep_generator": model.ClassReportGeneration,
		"corep_generator":  model.ClassReportGeneration,
		"dora_generator":   model.ClassReportGeneration,
		"sftp_delivery":    model.ClassDelivery,
		"eba_api_client":   model.ClassDelivery,
		"report_scheduler": model.ClassScheduler,
	}
}

// actionsFor is the recovery decision table
func actionsFor(class model.ServiceClass, severity model.Severity) []model.RecoveryAction {
	urgent := severity == model.SeverityCritical || severity == model.SeverityEmergency

	switch class {
	case model.ClassReportGeneration:
		if urgent {
			return []model.RecoveryAction{model.ActionClearCache, model.ActionRestartService}
		}
		return []model.RecoveryAction{model.ActionClearCache}
	case model.ClassDelivery:
		if severity == model.SeverityEmergency {
			return []model.RecoveryAction{model.ActionCircuitBreaker, model.ActionFailover}
		}
		return []model.RecoveryAction{model.ActionCircuitBreaker}
	case model.ClassScheduler:
		return []model.RecoveryAction{model.ActionThrottleRequests, model.ActionRestartService}
	default:
		if severity == model.SeverityEmergency {
			return []model.RecoveryAction{model.ActionManualIntervention}
		}
		return []model.RecoveryAction{model.ActionRestartService}
	}
}
