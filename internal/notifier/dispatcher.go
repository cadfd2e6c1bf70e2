package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"guardian/internal/metrics"
	"guardian/internal/models"
)

// Event categories users can switch on or off in their notification
// preferences.
const (
	EventFailures            = "failures"
	EventCriticalPredictions = "criticalPredictions"
	EventDisconnections      = "disconnections"
)

const (
	ChannelPopup    = "popup"
	ChannelTelegram = "telegram"
	ChannelEmail    = "email"
)

const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

type Popup interface {
	Publish(typ string, payload any)
}

type Preferences interface {
	Value() models.NotificationPreferences
}

type EventRecorder interface {
	InsertNotificationEvent(ctx context.Context, alertID int64, channel, status string, attempts int, lastErr string, sent *time.Time) error
}

// Notice is one thing worth telling an operator about.
type Notice struct {
	AlertID  int64  `json:"alertId,omitempty"`
	Event    string `json:"event"`
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Recovery bool   `json:"recovery,omitempty"`
}

type Delivery struct {
	Channel  string
	Status   string
	Attempts int
	Err      error
}

type Dispatcher struct {
	popup    Popup
	telegram *Telegram
	prefs    Preferences
	rec      EventRecorder
	log      *slog.Logger
	now      func() time.Time
	backoff  time.Duration
	attempts int
}

func NewDispatcher(popup Popup, telegram *Telegram, prefs Preferences, rec EventRecorder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		popup:    popup,
		telegram: telegram,
		prefs:    prefs,
		rec:      rec,
		log:      logger,
		now:      time.Now,
		backoff:  300 * time.Millisecond,
		attempts: 3,
	}
}

func (d *Dispatcher) Telegram() *Telegram { return d.telegram }

func eventEnabled(p models.NotificationPreferences, event string) bool {
	switch event {
	case EventFailures:
		return p.Events.Failures
	case EventCriticalPredictions:
		return p.Events.CriticalPredictions
	case EventDisconnections:
		return p.Events.Disconnections
	default:
		return true
	}
}

// Dispatch delivers n on every channel the committed preferences allow.
// Nothing is sent when the event category is switched off.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notice) []Delivery {
	prefs := d.prefs.Value()
	if !eventEnabled(prefs, n.Event) {
		d.log.Debug("notification suppressed by preferences", "event", n.Event, "title", n.Title)
		return nil
	}
	var out []Delivery
	if prefs.Popup && d.popup != nil {
		d.popup.Publish("alert", n)
		out = append(out, d.record(ctx, n.AlertID, Delivery{Channel: ChannelPopup, Status: StatusSent, Attempts: 1}))
	}
	if d.telegram != nil && d.telegram.Enabled() {
		out = append(out, d.record(ctx, n.AlertID, d.sendTelegram(ctx, n)))
	}
	if prefs.Email && !n.Recovery {
		d.log.Info("email notification requested but no mail transport is configured", "title", n.Title)
		out = append(out, d.record(ctx, n.AlertID, Delivery{Channel: ChannelEmail, Status: StatusSkipped}))
	}
	return out
}

func (d *Dispatcher) sendTelegram(ctx context.Context, n Notice) Delivery {
	msg := formatMessage(n)
	var err error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		err = d.telegram.Send(ctx, msg)
		if err == nil {
			return Delivery{Channel: ChannelTelegram, Status: StatusSent, Attempts: attempt}
		}
		if attempt == d.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return Delivery{Channel: ChannelTelegram, Status: StatusFailed, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(time.Duration(attempt) * d.backoff):
		}
	}
	d.log.Warn("notify failed", "channel", ChannelTelegram, "err", err)
	return Delivery{Channel: ChannelTelegram, Status: StatusFailed, Attempts: d.attempts, Err: err}
}

func (d *Dispatcher) record(ctx context.Context, alertID int64, del Delivery) Delivery {
	metrics.NotificationsTotal.WithLabelValues(del.Channel, del.Status).Inc()
	var sent *time.Time
	if del.Status == StatusSent {
		now := d.now().UTC()
		sent = &now
	}
	lastErr := ""
	if del.Err != nil {
		lastErr = del.Err.Error()
	}
	if d.rec != nil && alertID > 0 {
		if err := d.rec.InsertNotificationEvent(ctx, alertID, del.Channel, del.Status, del.Attempts, lastErr, sent); err != nil {
			d.log.Error("record notification", "err", err, "channel", del.Channel)
		}
	}
	return del
}

func formatMessage(n Notice) string {
	prefix := "ALERT"
	if n.Recovery {
		prefix = "RECOVERY"
	}
	return fmt.Sprintf("%s [%s] %s: %s", prefix, n.Severity, n.Title, n.Message)
}
