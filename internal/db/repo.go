package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"guardian/internal/models"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

// LoadSetting returns the stored value for key; ok is false when nothing was
// ever saved under it.
func (r *Repository) LoadSetting(ctx context.Context, key string) (value string, ok bool, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *Repository) SaveSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO settings(key,value,updated_at) VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value,updated_at=excluded.updated_at`,
		key, value, time.Now().UTC())
	return err
}

func (r *Repository) InsertSyncLog(ctx context.Context, l models.SyncLog) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO sync_log (ts,dataset,response_time_ms,status,http_status,error) VALUES (?,?,?,?,?,?)`,
		l.Timestamp.UTC(), l.Dataset, l.ResponseTimeMS, l.Status, l.HTTPStatus, l.Error)
	return err
}

func (r *Repository) RecentSyncLogs(ctx context.Context, limit int) ([]models.SyncLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT ts,dataset,response_time_ms,status,http_status,error FROM sync_log ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.SyncLog, 0, limit)
	for rows.Next() {
		var l models.SyncLog
		if err := rows.Scan(&l.Timestamp, &l.Dataset, &l.ResponseTimeMS, &l.Status, &l.HTTPStatus, &l.Error); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repository) ListRules(ctx context.Context) ([]models.AlertRule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id,name,metric_key,operator,threshold,severity,event,for_seconds,cooldown_seconds,enabled FROM alert_rules ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.AlertRule
	for rows.Next() {
		var rule models.AlertRule
		var enabled int
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.MetricKey, &rule.Operator, &rule.Threshold, &rule.Severity, &rule.Event, &rule.ForSeconds, &rule.CooldownSeconds, &enabled); err != nil {
			return nil, err
		}
		rule.Enabled = enabled == 1
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateRuleThresholds(ctx context.Context, id int64, threshold float64, forSec, cooldown int, enabled bool) error {
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}
	res, err := r.db.ExecContext(ctx, `UPDATE alert_rules SET threshold=?,for_seconds=?,cooldown_seconds=?,enabled=? WHERE id=?`, threshold, forSec, cooldown, enabledInt, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *Repository) UpsertAlertState(ctx context.Context, ruleID int64, state string, since time.Time, lastFired, lastRecovered *time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO alert_states (rule_id,state,since_ts,last_fired_ts,last_recovered_ts)
		VALUES (?,?,?,?,?)
		ON CONFLICT(rule_id) DO UPDATE SET state=excluded.state,since_ts=excluded.since_ts,last_fired_ts=excluded.last_fired_ts,last_recovered_ts=excluded.last_recovered_ts`,
		ruleID, state, since.UTC(), lastFired, lastRecovered)
	return err
}

func (r *Repository) GetAlertState(ctx context.Context, ruleID int64) (state string, since time.Time, lastFired, lastRecovered *time.Time, err error) {
	var fired, recovered sql.NullTime
	err = r.db.QueryRowContext(ctx, `SELECT state,since_ts,last_fired_ts,last_recovered_ts FROM alert_states WHERE rule_id=?`, ruleID).
		Scan(&state, &since, &fired, &recovered)
	if err != nil {
		return "", time.Time{}, nil, nil, err
	}
	if fired.Valid {
		t := fired.Time
		lastFired = &t
	}
	if recovered.Valid {
		t := recovered.Time
		lastRecovered = &t
	}
	return
}

func (r *Repository) CreateAlert(ctx context.Context, ruleID int64, summary string, value float64, started time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO alerts (rule_id,status,started_ts,summary,value) VALUES (?,?,?,?,?)`, ruleID, "firing", started.UTC(), summary, value)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repository) CloseAlert(ctx context.Context, ruleID int64, ended time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE alerts SET status='recovered', ended_ts_nullable=? WHERE rule_id=? AND status='firing'`, ended.UTC(), ruleID)
	return err
}

func (r *Repository) RecentAlerts(ctx context.Context, since time.Time, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `SELECT a.id,r.name,r.severity,a.status,a.summary,a.value,a.started_ts,a.ended_ts_nullable
		FROM alerts a JOIN alert_rules r ON r.id=a.rule_id
		WHERE a.started_ts >= ?
		ORDER BY a.started_ts DESC, a.id DESC LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Alert, 0, limit)
	for rows.Next() {
		var a models.Alert
		var ended sql.NullTime
		if err := rows.Scan(&a.ID, &a.Rule, &a.Severity, &a.Status, &a.Message, &a.Value, &a.StartedAt, &ended); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			a.EndedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) ActiveAlertCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE status='firing'`).Scan(&n)
	return n, err
}

func (r *Repository) DeleteRecoveredAlerts(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE status='recovered'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) InsertNotificationEvent(ctx context.Context, alertID int64, channel, status string, attempts int, lastErr string, sent *time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO notification_events (alert_id,channel,status,attempts,last_error,sent_ts_nullable) VALUES (?,?,?,?,?,?)`, alertID, channel, status, attempts, lastErr, sent)
	return err
}

func (r *Repository) InsertReport(ctx context.Context, h models.ReportHistory) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO report_history (id,type,generated_at,generated_by,filters,file_name) VALUES (?,?,?,?,?,?)`,
		h.ID, h.Type, h.GeneratedAt.UTC(), h.GeneratedBy, h.Filters, h.FileName)
	return err
}

func (r *Repository) ListReports(ctx context.Context, limit int) ([]models.ReportHistory, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id,type,generated_at,generated_by,filters,file_name FROM report_history ORDER BY generated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.ReportHistory, 0, limit)
	for rows.Next() {
		var h models.ReportHistory
		if err := rows.Scan(&h.ID, &h.Type, &h.GeneratedAt, &h.GeneratedBy, &h.Filters, &h.FileName); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	queries := []string{
		`DELETE FROM sync_log WHERE ts < ?`,
		`DELETE FROM alerts WHERE started_ts < ? AND status='recovered'`,
		`DELETE FROM notification_events WHERE sent_ts_nullable IS NOT NULL AND sent_ts_nullable < ?`,
		`DELETE FROM report_history WHERE generated_at < ?`,
	}
	for _, q := range queries {
		if _, err := r.db.ExecContext(ctx, q, cutoff.UTC()); err != nil {
			return err
		}
	}
	_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	_, _ = r.db.ExecContext(ctx, `PRAGMA optimize`)
	return nil
}
