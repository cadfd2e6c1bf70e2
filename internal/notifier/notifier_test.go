package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"guardian/internal/models"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func okResponse() *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{"ok":true}`))}
}

func TestTelegramSendPostsMessage(t *testing.T) {
	var gotURL string
	var body map[string]any
	tg := NewTelegram("tok", "chat-1")
	tg.HTTP = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotURL = r.URL.String()
		_ = json.NewDecoder(r.Body).Decode(&body)
		return okResponse(), nil
	})}

	if err := tg.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotURL != "https://api.telegram.org/bottok/sendMessage" {
		t.Fatalf("url = %s", gotURL)
	}
	if body["chat_id"] != "chat-1" || body["text"] != "hello" {
		t.Fatalf("unexpected payload: %v", body)
	}
}

func TestTelegramNotConfigured(t *testing.T) {
	tg := NewTelegram("", "")
	if tg.Enabled() {
		t.Fatal("expected disabled")
	}
	if err := tg.Send(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	tg.Update("a", "b")
	if !tg.Enabled() {
		t.Fatal("expected enabled after update")
	}
}

type fakePopup struct {
	mu   sync.Mutex
	msgs []any
}

func (f *fakePopup) Publish(_ string, payload any) {
	f.mu.Lock()
	f.msgs = append(f.msgs, payload)
	f.mu.Unlock()
}

type fixedPrefs models.NotificationPreferences

func (f fixedPrefs) Value() models.NotificationPreferences { return models.NotificationPreferences(f) }

type memEvents struct {
	rows []string
}

func (m *memEvents) InsertNotificationEvent(_ context.Context, _ int64, channel, status string, _ int, _ string, _ *time.Time) error {
	m.rows = append(m.rows, channel+":"+status)
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDispatchHonoursPreferences(t *testing.T) {
	popup := &fakePopup{}
	events := &memEvents{}
	prefs := fixedPrefs{Email: true, Popup: true, Events: models.NotificationEvents{Failures: true}}
	d := NewDispatcher(popup, NewTelegram("", ""), prefs, events, discard())

	got := d.Dispatch(context.Background(), Notice{AlertID: 7, Event: EventFailures, Title: "Optical power low"})
	if len(got) != 2 {
		t.Fatalf("deliveries = %d, want 2 (popup + email)", len(got))
	}
	if got[0].Channel != ChannelPopup || got[1].Channel != ChannelEmail || got[1].Status != StatusSkipped {
		t.Fatalf("unexpected deliveries: %+v", got)
	}
	if len(popup.msgs) != 1 {
		t.Fatalf("popup messages = %d", len(popup.msgs))
	}
	if strings.Join(events.rows, ",") != "popup:sent,email:skipped" {
		t.Fatalf("recorded events = %v", events.rows)
	}

	if got := d.Dispatch(context.Background(), Notice{AlertID: 8, Event: EventDisconnections}); got != nil {
		t.Fatalf("disabled event should not be delivered, got %+v", got)
	}
}

func TestDispatchRetriesTelegram(t *testing.T) {
	calls := 0
	tg := NewTelegram("tok", "chat")
	tg.HTTP = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset")
		}
		return okResponse(), nil
	})}
	d := NewDispatcher(nil, tg, fixedPrefs{Events: models.NotificationEvents{Failures: true}}, &memEvents{}, discard())
	d.backoff = time.Millisecond

	got := d.Dispatch(context.Background(), Notice{AlertID: 1, Event: EventFailures, Title: "t"})
	if len(got) != 1 || got[0].Status != StatusSent || got[0].Attempts != 3 {
		t.Fatalf("unexpected deliveries: %+v", got)
	}
}

func TestDispatchTelegramGivesUp(t *testing.T) {
	tg := NewTelegram("tok", "chat")
	tg.HTTP = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(strings.NewReader("bad"))}, nil
	})}
	events := &memEvents{}
	d := NewDispatcher(nil, tg, fixedPrefs{Events: models.NotificationEvents{Failures: true}}, events, discard())
	d.backoff = time.Millisecond

	got := d.Dispatch(context.Background(), Notice{AlertID: 1, Event: EventFailures})
	if len(got) != 1 || got[0].Status != StatusFailed || got[0].Err == nil {
		t.Fatalf("unexpected deliveries: %+v", got)
	}
	if len(events.rows) != 1 || events.rows[0] != "telegram:failed" {
		t.Fatalf("recorded events = %v", events.rows)
	}
}

func TestFormatMessage(t *testing.T) {
	got := formatMessage(Notice{Severity: "critical", Title: "Optical power low", Message: "-28.10 dBm", Recovery: true})
	if got != "RECOVERY [critical] Optical power low: -28.10 dBm" {
		t.Fatalf("message = %q", got)
	}
}
