package alerts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"guardian/internal/db"
	"guardian/internal/metrics"
	"guardian/internal/models"
	"guardian/internal/notifier"
)

const (
	stateOK       = "OK"
	statePending  = "PENDING"
	stateFiring   = "FIRING"
	stateCooldown = "COOLDOWN"
)

// CriticalRisk is the risk percentage at which a prediction is announced.
const CriticalRisk = 80

type Notifier interface {
	Dispatch(ctx context.Context, n notifier.Notice) []notifier.Delivery
}

type Engine struct {
	repo   *db.Repository
	notify Notifier
	log    *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	announced map[string]bool
}

func NewEngine(repo *db.Repository, notify Notifier, logger *slog.Logger) *Engine {
	return &Engine{repo: repo, notify: notify, log: logger, now: time.Now, announced: map[string]bool{}}
}

// Evaluate checks one telemetry point against every enabled rule.
func (e *Engine) Evaluate(ctx context.Context, p models.TelemetryPoint) {
	rules, err := e.repo.ListRules(ctx)
	if err != nil {
		e.log.Error("load rules", "err", err)
		return
	}
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		v, ok := metricValue(p, r.MetricKey)
		if !ok {
			e.log.Warn("rule references unknown metric", "rule", r.Name, "metric", r.MetricKey)
			continue
		}
		e.evalRule(ctx, r, v)
	}
}

func metricValue(p models.TelemetryPoint, key string) (float64, bool) {
	switch key {
	case "optical_power_dbm":
		return p.OpticalPower, true
	case "latency_ms":
		return p.LatencyMS, true
	case "disconnections":
		return float64(p.Disconnections), true
	default:
		return 0, false
	}
}

func (e *Engine) evalRule(ctx context.Context, rule models.AlertRule, value float64) {
	if math.IsNaN(value) {
		return
	}
	shouldFire := compare(value, rule.Operator, rule.Threshold)
	now := e.now().UTC()
	state, since, lastFired, lastRecovered, err := e.repo.GetAlertState(ctx, rule.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		e.log.Error("get alert state", "err", err, "rule_id", rule.ID)
		return
	}
	if errors.Is(err, sql.ErrNoRows) {
		state = stateOK
		since = now
	}

	if !shouldFire {
		if state == stateOK {
			return
		}
		_ = e.repo.CloseAlert(ctx, rule.ID, now)
		if state == stateFiring {
			e.notify.Dispatch(ctx, notifier.Notice{
				Event:    rule.Event,
				Severity: rule.Severity,
				Title:    rule.Name,
				Message:  fmt.Sprintf("back to normal, value=%.2f", value),
				Recovery: true,
			})
		}
		_ = e.repo.UpsertAlertState(ctx, rule.ID, stateOK, now, lastFired, &now)
		return
	}

	switch state {
	case stateFiring:
		return
	case stateOK:
		if rule.ForSeconds > 0 {
			_ = e.repo.UpsertAlertState(ctx, rule.ID, statePending, now, lastFired, lastRecovered)
			return
		}
		e.fire(ctx, rule, value, now, now, lastFired, lastRecovered)
	case statePending:
		if now.Sub(since) >= time.Duration(rule.ForSeconds)*time.Second {
			e.fire(ctx, rule, value, since, now, lastFired, lastRecovered)
		}
	case stateCooldown:
		e.fire(ctx, rule, value, since, now, lastFired, lastRecovered)
	}
}

func (e *Engine) fire(ctx context.Context, rule models.AlertRule, value float64, since, now time.Time, lastFired, lastRecovered *time.Time) {
	if lastFired != nil && now.Sub(*lastFired) < time.Duration(rule.CooldownSeconds)*time.Second {
		_ = e.repo.UpsertAlertState(ctx, rule.ID, stateCooldown, since, lastFired, lastRecovered)
		return
	}
	msg := fmt.Sprintf("value=%.2f threshold %s %.2f", value, rule.Operator, rule.Threshold)
	alertID, err := e.repo.CreateAlert(ctx, rule.ID, msg, value, now)
	if err != nil {
		e.log.Error("create alert", "err", err, "rule_id", rule.ID)
		return
	}
	metrics.AlertsFiredTotal.WithLabelValues(rule.Name, rule.Severity).Inc()
	e.log.Info("alert fired", "rule", rule.Name, "value", value)
	e.notify.Dispatch(ctx, notifier.Notice{
		AlertID:  alertID,
		Event:    rule.Event,
		Severity: rule.Severity,
		Title:    rule.Name,
		Message:  msg,
	})
	_ = e.repo.UpsertAlertState(ctx, rule.ID, stateFiring, since, &now, lastRecovered)
}

// ReviewPredictions announces each prediction at or above CriticalRisk once.
func (e *Engine) ReviewPredictions(ctx context.Context, preds []models.Prediction) int {
	var fresh []models.Prediction
	e.mu.Lock()
	for _, p := range preds {
		if p.RiskPercentage >= CriticalRisk && !e.announced[p.ID] {
			e.announced[p.ID] = true
			fresh = append(fresh, p)
		}
	}
	e.mu.Unlock()
	for _, p := range fresh {
		e.notify.Dispatch(ctx, notifier.Notice{
			Event:    notifier.EventCriticalPredictions,
			Severity: models.SeverityCritical,
			Title:    "Critical failure prediction",
			Message:  fmt.Sprintf("%s: %d%% risk within %s (%s)", p.Entity, p.RiskPercentage, p.Timeframe, p.Details),
		})
	}
	return len(fresh)
}

func compare(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
