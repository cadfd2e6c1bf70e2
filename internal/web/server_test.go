package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian/internal/alerts"
	"guardian/internal/db"
	"guardian/internal/fetch"
	"guardian/internal/hub"
	"guardian/internal/mock"
	"guardian/internal/models"
	"guardian/internal/notifier"
	"guardian/internal/poller"
	"guardian/internal/report"
	"guardian/internal/settings"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sqldb, err := db.Open(filepath.Join(t.TempDir(), "guardian.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(sqldb))
	t.Cleanup(func() { _ = sqldb.Close() })
	repo := db.NewRepository(sqldb)

	store, err := settings.Open(context.Background(), repo, logger)
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := mock.New(mock.Options{Seed: 7, Now: func() time.Time { return now }})
	h := hub.New(logger)
	go h.Run()
	t.Cleanup(h.Close)
	dispatch := notifier.NewDispatcher(h, notifier.NewTelegram("", ""), store.Notifications, repo, logger)

	s := NewServer(Deps{
		Repo:     repo,
		Settings: store,
		Mock:     svc,
		Cycle:    fetch.NewCycle(svc, store.API, repo, logger),
		Poller:   poller.New(svc, poller.NewWindow(poller.WindowSize), logger),
		Hub:      h,
		Alerts:   alerts.NewEngine(repo, dispatch, logger),
		Reports:  report.NewGenerator(svc, repo, logger, report.Options{}),
		Notify:   dispatch,
	}, logger)
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/healthz", "").StatusCode)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/readyz", "").StatusCode)
}

func TestDatasetGuardedWithoutHost(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/datasets/hubsoft_clients?trigger=mount", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap fetch.Snapshot
	decode(t, resp, &snap)
	assert.Equal(t, fetch.Idle, snap.State)
	require.NotNil(t, snap.Notification)
	assert.Equal(t, "error", snap.Notification.Level)

	var logs []models.SyncLog
	decode(t, do(t, http.MethodGet, srv.URL+"/api/sync-log", ""), &logs)
	assert.Empty(t, logs)
}

func TestSaveSettingsThenFetch(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodPut, srv.URL+"/api/settings/hubsoftConfig",
		`{"graphqlUrl":"https://hubsoft.example/graphql","companyId":"7","authToken":"tok"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/datasets/hubsoft_clients?page=2&trigger=page_change", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap fetch.Snapshot
	decode(t, resp, &snap)
	assert.Equal(t, fetch.Success, snap.State)
	assert.Equal(t, 2, snap.Paginator.CurrentPage)

	var logs []models.SyncLog
	decode(t, do(t, http.MethodGet, srv.URL+"/api/sync-log?limit=5", ""), &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, models.SyncOK, logs[0].Status)
	assert.Equal(t, "hubsoft_clients", logs[0].Dataset)
}

func TestInvalidSettingsRejected(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodPut, srv.URL+"/api/settings/systemPreferences",
		`{"language":"pt","refreshInterval":0,"timeFormat":"24h"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var prefs models.SystemPreferences
	decode(t, do(t, http.MethodGet, srv.URL+"/api/settings/systemPreferences", ""), &prefs)
	assert.Equal(t, 300, prefs.RefreshInterval)
}

func TestUnknownRecordAndDataset(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/api/settings/themes", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/api/datasets/olts", "").StatusCode)
}

func TestGenerateReportReturnsPDF(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/reports", `{"type":"operational","requestedBy":"noc"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "FTTH_Guardian_Operational_")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF-")))

	var history []models.ReportHistory
	decode(t, do(t, http.MethodGet, srv.URL+"/api/reports", ""), &history)
	require.Len(t, history, 1)
	assert.Equal(t, "noc", history[0].GeneratedBy)
	assert.Equal(t, resp.Header.Get("X-Report-Id"), history[0].ID)
}

func TestGenerateReportRejectsBadInput(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, srv.URL+"/api/reports", `{"type":"executive"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		do(t, http.MethodPost, srv.URL+"/api/reports", `{"type":"ml","from":"2026-03-10","to":"2026-03-01"}`).StatusCode)
}

func TestTelemetryStartsEmpty(t *testing.T) {
	srv := newTestServer(t)
	var out struct {
		Interval int                     `json:"interval"`
		Points   []models.TelemetryPoint `json:"points"`
	}
	decode(t, do(t, http.MethodGet, srv.URL+"/api/telemetry", ""), &out)
	assert.Equal(t, 300, out.Interval)
	assert.Empty(t, out.Points)
}

func TestRuleUpdate(t *testing.T) {
	srv := newTestServer(t)

	var rules []models.AlertRule
	decode(t, do(t, http.MethodGet, srv.URL+"/api/alerts/rules", ""), &rules)
	require.NotEmpty(t, rules)

	resp := do(t, http.MethodPut, srv.URL+"/api/alerts/rules/999",
		`{"threshold":1,"forSeconds":0,"cooldownSeconds":0,"enabled":true}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPut, srv.URL+"/api/alerts/rules/1",
		`{"threshold":-25,"forSeconds":10,"cooldownSeconds":60,"enabled":true}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestTelegramNotConfigured(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusPreconditionFailed, do(t, http.MethodPost, srv.URL+"/api/alerts/test-telegram", "").StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	do(t, http.MethodGet, srv.URL+"/healthz", "")
	resp := do(t, http.MethodGet, srv.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "guardian_http_requests_total")
}
