package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/model"
)

// SeedDefaults populates empty configuration tables with the stock SLA
// definitions, escalation ladders and recipients for the regulatory
// reporting platform. Tables that already hold rows are left untouched so
// operator edits survive restarts.
func (s *SQLiteStore) SeedDefaults(ctx context.Context) error {
	seeded := 0

	n, err := s.seedDefinitions(ctx)
	if err != nil {
		return err
	}
	seeded += n

	n, err = s.seedEscalationRules(ctx)
	if err != nil {
		return err
	}
	seeded += n

	n, err = s.seedRecipients(ctx)
	if err != nil {
		return err
	}
	seeded += n

	if seeded > 0 {
		s.logger.Info("Seeded default configuration", zap.Int("rows", seeded))
	}
	return nil
}

func (s *SQLiteStore) seedDefinitions(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sla_definitions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count SLA definitions: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	for _, def := range defaultDefinitions(now) {
		if err := s.SaveDefinition(ctx, def); err != nil {
			return 0, err
		}
	}
	return len(defaultDefinitions(now)), nil
}

func (s *SQLiteStore) seedEscalationRules(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sla_escalation_rules").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count escalation rules: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	rules := defaultEscalationRules()
	for _, rule := range rules {
		if err := s.SaveEscalationRule(ctx, rule); err != nil {
			return 0, err
		}
	}
	return len(rules), nil
}

func (s *SQLiteStore) seedRecipients(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sla_recipients").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recipients: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	recs := defaultRecipients()
	for _, rec := range recs {
		if err := s.SaveRecipient(ctx, rec); err != nil {
			return 0, err
		}
	}
	return len(recs), nil
}

func defaultDefinitions(now time.Time) []*model.SLADefinition {
	def := func(id, name, service string, metric model.MetricType, threshold float64,
		op model.Operator, window time.Duration, breachPct float64, sev model.Severity) *model.SLADefinition {
		return &model.SLADefinition{
			ID:                 id,
			Name:               name,
			Service:            service,
			Metric:             metric,
			Threshold:          threshold,
			Operator:           op,
			Window:             window,
			EvaluationInterval: 30 * time.Second,
			BreachThresholdPct: breachPct,
			Severity:           sev,
			Enabled:            true,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
	}

	return []*model.SLADefinition{
		def("finrep_generation_time", "FINREP Generation Time", "finrep_generator",
			model.MetricResponseTime, 300000, model.OperatorLessEqual, time.Hour, 5.0, model.SeverityCritical),
		def("corep_generation_time", "COREP Generation Time", "corep_generator",
			model.MetricResponseTime, 300000, model.OperatorLessEqual, time.Hour, 5.0, model.SeverityCritical),
		def("dora_generation_time", "DORA Generation Time", "dora_generator",
			model.MetricResponseTime, 600000, model.OperatorLessEqual, time.Hour, 5.0, model.SeverityWarning),
		def("sftp_delivery_success", "SFTP Delivery Success Rate", "sftp_delivery",
			model.MetricSuccessRate, 99.5, model.OperatorGreaterEqual, 24*time.Hour, 1.0, model.SeverityCritical),
		def("eba_api_availability", "EBA API Availability", "eba_api_client",
			model.MetricAvailability, 99.9, model.OperatorGreaterEqual, time.Hour, 0.5, model.SeverityEmergency),
		def("scheduler_processing_time", "Scheduler Processing Time", "report_scheduler",
			model.MetricProcessingTime, 60000, model.OperatorLessEqual, 30*time.Minute, 10.0, model.SeverityWarning),
		def("deadline_compliance", "Deadline Compliance Rate", "deadline_engine",
			model.MetricComplianceRate, 100, model.OperatorGreaterEqual, 24*time.Hour, 0.0, model.SeverityEmergency),
		def("deadline_alert_latency", "Deadline Alert Latency", "deadline_alerts",
			model.MetricDeliveryTime, 30000, model.OperatorLessEqual, time.Hour, 5.0, model.SeverityCritical),
		def("compliance_system_availability", "Compliance System Availability", "compliance_system",
			model.MetricAvailability, 99.95, model.OperatorGreaterEqual, 15*time.Minute, 0.1, model.SeverityEmergency),
	}
}

func defaultEscalationRules() []*model.EscalationRule {
	step := func(level int, delay time.Duration, channels []model.Channel, recipients []string) model.EscalationStep {
		return model.EscalationStep{Level: level, Delay: delay, Channels: channels, Recipients: recipients}
	}
	emailSlack := []model.Channel{model.ChannelEmail, model.ChannelSlack}
	emailSlackPD := []model.Channel{model.ChannelEmail, model.ChannelSlack, model.ChannelPagerDuty}
	emailPDSMS := []model.Channel{model.ChannelEmail, model.ChannelPagerDuty, model.ChannelSMS}

	return []*model.EscalationRule{
		{
			ID:       "finrep_generator_critical",
			Service:  "finrep_generator",
			Severity: model.SeverityCritical,
			Levels: []model.EscalationStep{
				step(0, 0, emailSlack, []string{"compliance_team"}),
				step(1, 15*time.Minute, emailSlack, []string{"compliance_team", "team_lead"}),
				step(2, 30*time.Minute, emailSlackPD, []string{"compliance_team", "team_lead", "manager"}),
				step(3, time.Hour, emailPDSMS, []string{"compliance_team", "team_lead", "manager", "executive"}),
			},
			MaxLevel:     3,
			AutoEscalate: true,
			Enabled:      true,
		},
		{
			ID:       "compliance_system_emergency",
			Service:  "compliance_system",
			Severity: model.SeverityEmergency,
			Levels: []model.EscalationStep{
				step(0, 0, emailSlack, []string{"compliance_team"}),
				step(1, 5*time.Minute, emailSlackPD, []string{"compliance_team", "team_lead"}),
				step(2, 10*time.Minute, emailSlackPD, []string{"compliance_team", "team_lead", "manager"}),
				step(3, 15*time.Minute, emailPDSMS, []string{"compliance_team", "team_lead", "manager", "executive"}),
				step(4, 30*time.Minute, emailPDSMS, []string{"compliance_team", "team_lead", "manager", "executive"}),
			},
			MaxLevel:     4,
			AutoEscalate: true,
			Enabled:      true,
		},
		{
			ID:       "default_warning",
			Service:  model.WildcardService,
			Severity: model.SeverityWarning,
			Levels: []model.EscalationStep{
				step(0, 0, emailSlack, []string{"compliance_team"}),
				step(1, 30*time.Minute, emailSlack, []string{"compliance_team", "team_lead"}),
			},
			MaxLevel:     1,
			AutoEscalate: true,
			Enabled:      true,
		},
		{
			ID:       "default_critical",
			Service:  model.WildcardService,
			Severity: model.SeverityCritical,
			Levels: []model.EscalationStep{
				step(0, 0, emailSlack, []string{"compliance_team"}),
				step(1, 15*time.Minute, emailSlack, []string{"compliance_team", "team_lead"}),
				step(2, 30*time.Minute, emailSlackPD, []string{"compliance_team", "team_lead", "manager"}),
			},
			MaxLevel:     2,
			AutoEscalate: true,
			Enabled:      true,
		},
		{
			ID:       "default_emergency",
			Service:  model.WildcardService,
			Severity: model.SeverityEmergency,
			Levels: []model.EscalationStep{
				step(0, 0, emailSlack, []string{"compliance_team"}),
				step(1, 5*time.Minute, emailSlackPD, []string{"compliance_team", "team_lead"}),
				step(2, 15*time.Minute, emailPDSMS, []string{"compliance_team", "team_lead", "manager"}),
				step(3, 30*time.Minute, emailPDSMS, []string{"compliance_team", "team_lead", "manager", "executive"}),
			},
			MaxLevel:     3,
			AutoEscalate: true,
			Enabled:      true,
		},
	}
}

func defaultRecipients() []*model.Recipient {
	return []*model.Recipient{
		{
			ID:    "compliance_team",
			Name:  "Compliance Team",
			Role:  "team",
			Level: 0,
			Contacts: map[model.Channel]string{
				model.ChannelEmail: "compliance-team@company.com",
				model.ChannelSlack: "#compliance-alerts",
			},
			Active: true,
		},
		{
			ID:    "team_lead",
			Name:  "Team Lead",
			Role:  "lead",
			Level: 1,
			Contacts: map[model.Channel]string{
				model.ChannelEmail: "team-lead@company.com",
				model.ChannelSlack: "@team-lead",
				model.ChannelSMS:   "+15550100",
			},
			Active: true,
		},
		{
			ID:    "manager",
			Name:  "Engineering Manager",
			Role:  "manager",
			Level: 2,
			Contacts: map[model.Channel]string{
				model.ChannelEmail:     "manager@company.com",
				model.ChannelSlack:     "@manager",
				model.ChannelPagerDuty: "manager-oncall",
			},
			Active: true,
		},
		{
			ID:    "executive",
			Name:  "Executive On-Call",
			Role:  "executive",
			Level: 3,
			Contacts: map[model.Channel]string{
				model.ChannelEmail:     "executive@company.com",
				model.ChannelPagerDuty: "executive-oncall",
				model.ChannelSMS:       "+15550101",
			},
			Active: true,
		},
	}
}
