package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sync_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL,
			dataset TEXT NOT NULL,
			response_time_ms INTEGER NOT NULL,
			status TEXT NOT NULL,
			http_status INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS alert_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			metric_key TEXT NOT NULL,
			operator TEXT NOT NULL,
			threshold REAL NOT NULL,
			severity TEXT NOT NULL,
			event TEXT NOT NULL,
			for_seconds INTEGER NOT NULL,
			cooldown_seconds INTEGER NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS alert_states (
			rule_id INTEGER PRIMARY KEY,
			state TEXT NOT NULL,
			since_ts DATETIME NOT NULL,
			last_fired_ts DATETIME,
			last_recovered_ts DATETIME,
			FOREIGN KEY(rule_id) REFERENCES alert_rules(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rule_id INTEGER NOT NULL,
			status TEXT NOT NULL,
			started_ts DATETIME NOT NULL,
			ended_ts_nullable DATETIME,
			summary TEXT NOT NULL,
			value REAL NOT NULL,
			FOREIGN KEY(rule_id) REFERENCES alert_rules(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS notification_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_id INTEGER NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			last_error TEXT,
			sent_ts_nullable DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS report_history (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			generated_at DATETIME NOT NULL,
			generated_by TEXT NOT NULL,
			filters TEXT NOT NULL,
			file_name TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_log_ts ON sync_log(ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status_started ON alerts(status, started_ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_report_history_generated ON report_history(generated_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return seedDefaultRules(db)
}

func seedDefaultRules(db *sql.DB) error {
	defaults := []struct {
		name, metricKey, op, severity, event string
		th                                   float64
		forSec, cooldown                     int
	}{
		{"Optical power low", "optical_power_dbm", "<", "critical", "failures", -27, 0, 300},
		{"Latency high", "latency_ms", ">", "warning", "failures", 50, 30, 300},
		{"Disconnection burst", "disconnections", ">=", "warning", "disconnections", 3, 0, 600},
	}
	for _, r := range defaults {
		_, err := db.Exec(`INSERT INTO alert_rules (name,metric_key,operator,threshold,severity,event,for_seconds,cooldown_seconds,enabled)
			SELECT ?,?,?,?,?,?,?,?,1 WHERE NOT EXISTS (SELECT 1 FROM alert_rules WHERE name = ?)`,
			r.name, r.metricKey, r.op, r.th, r.severity, r.event, r.forSec, r.cooldown, r.name)
		if err != nil {
			return err
		}
	}
	return nil
}
