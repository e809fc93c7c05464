package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore is the durable backing store for every engine entity. It is
// the source of truth: in-memory registries and buffers are caches over it.
type SQLiteStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists. WAL mode keeps concurrent readers off the writers' backs.
func NewSQLiteStore(logger *zap.Logger, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		logger: logger.Named("storage"),
		db:     db,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sla_definitions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			service TEXT NOT NULL,
			metric TEXT NOT NULL,
			threshold REAL NOT NULL,
			operator TEXT NOT NULL,
			window_ns INTEGER NOT NULL,
			evaluation_interval_ns INTEGER NOT NULL,
			breach_threshold_pct REAL NOT NULL,
			severity TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			description TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sla_definitions_service ON sla_definitions(service);

		CREATE TABLE IF NOT EXISTS sla_measurements (
			id TEXT PRIMARY KEY,
			sla_id TEXT,
			service TEXT NOT NULL,
			metric TEXT NOT NULL,
			value REAL NOT NULL,
			timestamp DATETIME NOT NULL,
			labels TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sla_measurements_series ON sla_measurements(service, metric, timestamp);
		CREATE INDEX IF NOT EXISTS idx_sla_measurements_timestamp ON sla_measurements(timestamp);

		CREATE TABLE IF NOT EXISTS sla_violations (
			id TEXT PRIMARY KEY,
			sla_id TEXT NOT NULL,
			service TEXT NOT NULL,
			metric TEXT NOT NULL,
			threshold REAL NOT NULL,
			observed REAL NOT NULL,
			breach_pct REAL NOT NULL,
			severity TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			duration_ns INTEGER,
			resolved INTEGER NOT NULL DEFAULT 0,
			root_cause TEXT,
			resolution_notes TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sla_violations_pair ON sla_violations(sla_id, service, resolved);
		CREATE INDEX IF NOT EXISTS idx_sla_violations_started_at ON sla_violations(started_at);

		CREATE TABLE IF NOT EXISTS sla_incidents (
			id TEXT PRIMARY KEY,
			violation_id TEXT NOT NULL,
			service TEXT NOT NULL,
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			escalation_level INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			acknowledged_at DATETIME,
			acknowledged_by TEXT,
			escalated_at DATETIME,
			resolved_at DATETIME,
			resolution_notes TEXT,
			recovery_actions TEXT,
			impact TEXT,
			labels TEXT
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_sla_incidents_violation ON sla_incidents(violation_id);
		CREATE INDEX IF NOT EXISTS idx_sla_incidents_status ON sla_incidents(status);

		CREATE TABLE IF NOT EXISTS sla_notifications (
			id TEXT PRIMARY KEY,
			incident_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			level INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			sent_at DATETIME,
			delivered_at DATETIME,
			acknowledged_at DATETIME,
			failed_at DATETIME,
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 3,
			last_error TEXT
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_sla_notifications_tuple ON sla_notifications(incident_id, recipient_id, channel, level);
		CREATE INDEX IF NOT EXISTS idx_sla_notifications_status ON sla_notifications(status);

		CREATE TABLE IF NOT EXISTS sla_recovery_actions (
			id TEXT PRIMARY KEY,
			incident_id TEXT NOT NULL,
			service TEXT NOT NULL,
			action TEXT NOT NULL,
			executed_at DATETIME NOT NULL,
			success INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			output TEXT,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sla_recovery_incident ON sla_recovery_actions(incident_id);

		CREATE TABLE IF NOT EXISTS sla_trends (
			id TEXT PRIMARY KEY,
			service TEXT NOT NULL,
			metric TEXT NOT NULL,
			direction TEXT NOT NULL,
			slope REAL NOT NULL,
			mean REAL NOT NULL,
			samples INTEGER NOT NULL,
			window_start DATETIME NOT NULL,
			window_end DATETIME NOT NULL,
			computed_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sla_trends_series ON sla_trends(service, metric, computed_at);

		CREATE TABLE IF NOT EXISTS sla_escalation_rules (
			id TEXT PRIMARY KEY,
			service TEXT NOT NULL,
			severity TEXT NOT NULL,
			levels TEXT NOT NULL,
			max_level INTEGER NOT NULL,
			auto_escalate INTEGER NOT NULL DEFAULT 1,
			enabled INTEGER NOT NULL DEFAULT 1
		);
		CREATE INDEX IF NOT EXISTS idx_sla_escalation_rules_service ON sla_escalation_rules(service, severity);

		CREATE TABLE IF NOT EXISTS sla_recipients (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			level INTEGER NOT NULL,
			contacts TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
