package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/slawatch/slawatch/internal/model"
)

// ConfigStore defines the interface for operator-managed engine configuration:
// SLA definitions, escalation rules and notification recipients
type ConfigStore interface {
	// SaveDefinition inserts or replaces an SLA definition
	SaveDefinition(ctx context.Context, def *model.SLADefinition) error

	// GetDefinition retrieves one definition by ID; nil when absent
	GetDefinition(ctx context.Context, id string) (*model.SLADefinition, error)

	// ListDefinitions returns definitions, optionally only enabled ones
	ListDefinitions(ctx context.Context, enabledOnly bool) ([]*model.SLADefinition, error)

	// SetDefinitionEnabled toggles evaluation of one definition
	SetDefinitionEnabled(ctx context.Context, id string, enabled bool) error

	// DeleteDefinition removes an SLA definition
	DeleteDefinition(ctx context.Context, id string) error

	// SaveEscalationRule inserts or replaces an escalation rule
	SaveEscalationRule(ctx context.Context, rule *model.EscalationRule) error

	// ListEscalationRules returns all escalation rules
	ListEscalationRules(ctx context.Context) ([]*model.EscalationRule, error)

	// DeleteEscalationRule removes an escalation rule
	DeleteEscalationRule(ctx context.Context, id string) error

	// SaveRecipient inserts or replaces a notification recipient
	SaveRecipient(ctx context.Context, rec *model.Recipient) error

	// GetRecipient retrieves one recipient by ID; nil when absent
	GetRecipient(ctx context.Context, id string) (*model.Recipient, error)

	// ListRecipients returns all recipients
	ListRecipients(ctx context.Context) ([]*model.Recipient, error)

	// DeleteRecipient removes a recipient
	DeleteRecipient(ctx context.Context, id string) error
}

// SaveDefinition implements ConfigStore.SaveDefinition
func (s *SQLiteStore) SaveDefinition(ctx context.Context, def *model.SLADefinition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sla_definitions (
			id, name, service, metric, threshold, operator,
			window_ns, evaluation_interval_ns, breach_threshold_pct,
			severity, enabled, description, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID,
		def.Name,
		def.Service,
		string(def.Metric),
		def.Threshold,
		string(def.Operator),
		int64(def.Window),
		int64(def.EvaluationInterval),
		def.BreachThresholdPct,
		string(def.Severity),
		def.Enabled,
		def.Description,
		def.CreatedAt,
		def.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save SLA definition: %w", err)
	}
	return nil
}

// GetDefinition implements ConfigStore.GetDefinition
func (s *SQLiteStore) GetDefinition(ctx context.Context, id string) (*model.SLADefinition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, service, metric, threshold, operator, window_ns,
		       evaluation_interval_ns, breach_threshold_pct, severity, enabled,
		       description, created_at, updated_at
		FROM sla_definitions WHERE id = ?`, id)

	def, err := scanDefinition(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan SLA definition: %w", err)
	}
	return def, nil
}

// ListDefinitions implements ConfigStore.ListDefinitions
func (s *SQLiteStore) ListDefinitions(ctx context.Context, enabledOnly bool) ([]*model.SLADefinition, error) {
	query := `
		SELECT id, name, service, metric, threshold, operator, window_ns,
		       evaluation_interval_ns, breach_threshold_pct, severity, enabled,
		       description, created_at, updated_at
		FROM sla_definitions`
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY service, name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query SLA definitions: %w", err)
	}
	defer rows.Close()

	var defs []*model.SLADefinition
	for rows.Next() {
		def, err := scanDefinition(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan SLA definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// SetDefinitionEnabled implements ConfigStore.SetDefinitionEnabled
func (s *SQLiteStore) SetDefinitionEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE sla_definitions SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		enabled, id)
	if err != nil {
		return fmt.Errorf("failed to update SLA definition: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("SLA definition not found: %s", id)
	}
	return nil
}

// DeleteDefinition implements ConfigStore.DeleteDefinition
func (s *SQLiteStore) DeleteDefinition(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sla_definitions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete SLA definition: %w", err)
	}
	return nil
}

func scanDefinition(scan func(dest ...interface{}) error) (*model.SLADefinition, error) {
	def := &model.SLADefinition{}
	var metric, operator, severity string
	var windowNs, intervalNs int64
	var description sql.NullString

	err := scan(
		&def.ID,
		&def.Name,
		&def.Service,
		&metric,
		&def.Threshold,
		&operator,
		&windowNs,
		&intervalNs,
		&def.BreachThresholdPct,
		&severity,
		&def.Enabled,
		&description,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	def.Metric = model.MetricType(metric)
	def.Operator = model.Operator(operator)
	def.Severity = model.Severity(severity)
	def.Window = time.Duration(windowNs)
	def.EvaluationInterval = time.Duration(intervalNs)
	if description.Valid {
		def.Description = description.String
	}
	return def, nil
}

// SaveEscalationRule implements ConfigStore.SaveEscalationRule
func (s *SQLiteStore) SaveEscalationRule(ctx context.Context, rule *model.EscalationRule) error {
	levels, err := json.Marshal(rule.Levels)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation levels: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sla_escalation_rules (
			id, service, severity, levels, max_level, auto_escalate, enabled
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		rule.Service,
		string(rule.Severity),
		string(levels),
		rule.MaxLevel,
		rule.AutoEscalate,
		rule.Enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to save escalation rule: %w", err)
	}
	return nil
}

// DeleteEscalationRule implements ConfigStore.DeleteEscalationRule
func (s *SQLiteStore) DeleteEscalationRule(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sla_escalation_rules WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete escalation rule: %w", err)
	}
	return nil
}

// ListEscalationRules implements ConfigStore.ListEscalationRules
func (s *SQLiteStore) ListEscalationRules(ctx context.Context) ([]*model.EscalationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service, severity, levels, max_level, auto_escalate, enabled
		FROM sla_escalation_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query escalation rules: %w", err)
	}
	defer rows.Close()

	var rules []*model.EscalationRule
	for rows.Next() {
		rule := &model.EscalationRule{}
		var severity, levels string

		if err := rows.Scan(&rule.ID, &rule.Service, &severity, &levels,
			&rule.MaxLevel, &rule.AutoEscalate, &rule.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan escalation rule: %w", err)
		}

		rule.Severity = model.Severity(severity)
		if err := json.Unmarshal([]byte(levels), &rule.Levels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal escalation levels: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SaveRecipient implements ConfigStore.SaveRecipient
func (s *SQLiteStore) SaveRecipient(ctx context.Context, rec *model.Recipient) error {
	contacts, err := json.Marshal(rec.Contacts)
	if err != nil {
		return fmt.Errorf("failed to marshal recipient contacts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sla_recipients (
			id, name, role, level, contacts, active
		) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Name,
		rec.Role,
		rec.Level,
		string(contacts),
		rec.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save recipient: %w", err)
	}
	return nil
}

// DeleteRecipient implements ConfigStore.DeleteRecipient
func (s *SQLiteStore) DeleteRecipient(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sla_recipients WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete recipient: %w", err)
	}
	return nil
}

// GetRecipient implements ConfigStore.GetRecipient
func (s *SQLiteStore) GetRecipient(ctx context.Context, id string) (*model.Recipient, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, role, level, contacts, active
		FROM sla_recipients WHERE id = ?`, id)

	rec, err := scanRecipient(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan recipient: %w", err)
	}
	return rec, nil
}

// ListRecipients implements ConfigStore.ListRecipients
func (s *SQLiteStore) ListRecipients(ctx context.Context) ([]*model.Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, role, level, contacts, active FROM sla_recipients ORDER BY level, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", err)
	}
	defer rows.Close()

	var recs []*model.Recipient
	for rows.Next() {
		rec, err := scanRecipient(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanRecipient(scan func(dest ...interface{}) error) (*model.Recipient, error) {
	rec := &model.Recipient{}
	var contacts string

	if err := scan(&rec.ID, &rec.Name, &rec.Role, &rec.Level, &contacts, &rec.Active); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(contacts), &rec.Contacts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipient contacts: %w", err)
	}
	return rec, nil
}
