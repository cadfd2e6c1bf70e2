package web

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"guardian/internal/alerts"
	"guardian/internal/apperr"
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

const maxBodyBytes = 1 << 20

type Deps struct {
	Repo     *db.Repository
	Settings *settings.Store
	Mock     *mock.Service
	Cycle    *fetch.Cycle
	Poller   *poller.Poller
	Hub      *hub.Hub
	Alerts   *alerts.Engine
	Reports  *report.Generator
	Notify   *notifier.Dispatcher
}

type Server struct {
	Deps
	log *slog.Logger
}

func NewServer(d Deps, logger *slog.Logger) *Server {
	return &Server{Deps: d, log: logger}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logMiddleware(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/telemetry", s.handleTelemetryStream)

	r.Route("/api", func(r chi.Router) {
		r.Get("/datasets/snapshot", s.handleDatasetSnapshot)
		r.Get("/datasets/{dataset}", s.handleDataset)
		r.Get("/sync-log", s.handleSyncLog)

		r.Get("/telemetry", s.handleTelemetry)

		r.Get("/alerts", s.handleAlerts)
		r.Get("/alerts/insights", s.handleAlertInsights)
		r.Delete("/alerts/recovered", s.handleClearRecovered)
		r.Get("/alerts/rules", s.handleRules)
		r.Put("/alerts/rules/{id}", s.handleUpdateRule)
		r.Post("/alerts/test-telegram", s.handleTestTelegram)

		r.Route("/ml", func(r chi.Router) {
			r.Get("/overview", s.handleMLOverview)
			r.Get("/metrics", s.handleModelMetrics)
			r.Get("/predictions", s.handlePredictions)
			r.Get("/importance", s.handleImportance)
			r.Get("/history", s.handlePredictionHistory)
			r.Get("/drift/model", s.handleModelDrift)
			r.Get("/drift/data", s.handleDataDrift)
			r.Post("/retrain", s.handleRetrain)
		})

		r.Get("/settings", s.handleAllSettings)
		r.Get("/settings/{record}", s.handleGetSetting)
		r.Put("/settings/{record}", s.handlePutSetting)
		r.Post("/settings/hubsoftConfig/test", s.handleTestHubsoft)
		r.Post("/settings/simulatorConfig/test", s.handleTestSimulator)

		r.Get("/reports", s.handleReportHistory)
		r.Post("/reports", s.handleGenerateReport)

		r.Get("/users", s.handleUsers)
	})
	return r
}

func (s *Server) handleDatasetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Cycle.Snapshot())
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	dataset, ok := fetch.ParseDataset(chi.URLParam(r, "dataset"))
	if !ok {
		s.writeError(w, r, apperr.Invalid("Unknown dataset.", "dataset="+chi.URLParam(r, "dataset")), http.StatusNotFound)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	trigger := fetch.ParseTrigger(r.URL.Query().Get("trigger"))
	writeJSON(w, s.Cycle.Run(r.Context(), dataset, trigger, page))
}

func (s *Server) handleSyncLog(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := s.Repo.RecentSyncLogs(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, logs)
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"interval": s.Settings.System.Value().RefreshInterval,
		"points":   s.Poller.Window().Points(),
	})
}

func (s *Server) handleTelemetryStream(w http.ResponseWriter, r *http.Request) {
	s.Hub.Serve(w, r, s.Poller.Window().Points())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	rng := parseRange(r.URL.Query().Get("range"), 24*time.Hour)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.Repo.RecentAlerts(r.Context(), time.Now().Add(-rng), limit)
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	active, _ := s.Repo.ActiveAlertCount(r.Context())
	writeJSON(w, map[string]any{"active": active, "alerts": list})
}

func (s *Server) handleAlertInsights(w http.ResponseWriter, r *http.Request) {
	list, err := s.Mock.FetchAlerts(r.Context())
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, list)
}

func (s *Server) handleClearRecovered(w http.ResponseWriter, r *http.Request) {
	n, err := s.Repo.DeleteRecoveredAlerts(r.Context())
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, map[string]int64{"deleted": n})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.Repo.ListRules(r.Context())
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, rules)
}

type ruleUpdate struct {
	Threshold       float64 `json:"threshold"`
	ForSeconds      int     `json:"forSeconds"`
	CooldownSeconds int     `json:"cooldownSeconds"`
	Enabled         bool    `json:"enabled"`
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, r, apperr.Invalid("Invalid rule id.", err.Error()), 0)
		return
	}
	var in ruleUpdate
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	if in.ForSeconds < 0 || in.CooldownSeconds < 0 {
		s.writeError(w, r, apperr.Invalid("Durations cannot be negative.", "negative duration"), 0)
		return
	}
	err = s.Repo.UpdateRuleThresholds(r.Context(), id, in.Threshold, in.ForSeconds, in.CooldownSeconds, in.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		s.writeError(w, r, apperr.Invalid("Rule not found.", "id="+chi.URLParam(r, "id")), http.StatusNotFound)
		return
	}
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestTelegram(w http.ResponseWriter, r *http.Request) {
	tg := s.Notify.Telegram()
	if !tg.Enabled() {
		s.writeError(w, r, apperr.Config("Telegram is not configured.", "bot token or chat id missing"), 0)
		return
	}
	if err := tg.Send(r.Context(), "FTTH Guardian test alert: Telegram integration is working"); err != nil {
		s.writeError(w, r, apperr.Transport("Telegram rejected the test message.", err.Error(), 0), 0)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleMLOverview(w http.ResponseWriter, r *http.Request) {
	var out struct {
		Metrics     models.ModelMetrics        `json:"metrics"`
		Predictions []models.Prediction        `json:"predictions"`
		Importance  []models.FeatureImportance `json:"featureImportance"`
		History     []models.PredictionHistory `json:"history"`
	}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) { out.Metrics, err = s.Mock.FetchModelMetrics(ctx); return err })
	g.Go(func() (err error) { out.Predictions, err = s.Mock.FetchPredictions(ctx); return err })
	g.Go(func() (err error) { out.Importance, err = s.Mock.FetchFeatureImportance(ctx); return err })
	g.Go(func() (err error) { out.History, err = s.Mock.FetchPredictionHistory(ctx); return err })
	if err := g.Wait(); err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	s.Alerts.ReviewPredictions(r.Context(), out.Predictions)
	writeJSON(w, out)
}

func (s *Server) handleModelMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.Mock.FetchModelMetrics(r.Context())
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, m)
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	preds, err := s.Mock.FetchPredictions(r.Context())
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	s.Alerts.ReviewPredictions(r.Context(), preds)
	writeJSON(w, preds)
}

func (s *Server) handleImportance(w http.ResponseWriter, r *http.Request) {
	imp, err := s.Mock.FetchFeatureImportance(r.Context())
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, imp)
}

func (s *Server) handlePredictionHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.Mock.FetchPredictionHistory(r.Context())
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, h)
}

func (s *Server) handleModelDrift(w http.ResponseWriter, r *http.Request) {
	d, err := s.Mock.FetchModelDrift(r.Context())
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, d)
}

func (s *Server) handleDataDrift(w http.ResponseWriter, r *http.Request) {
	d, err := s.Mock.FetchDataDrift(r.Context())
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, d)
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	m, err := s.Mock.Retrain(r.Context())
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	s.log.Info("model retrained", "version", m.Version)
	if preds, err := s.Mock.FetchPredictions(r.Context()); err == nil {
		s.Alerts.ReviewPredictions(r.Context(), preds)
	}
	writeJSON(w, m)
}

func (s *Server) handleAllSettings(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]json.RawMessage, len(s.Settings.Keys()))
	for _, key := range s.Settings.Keys() {
		e, _ := s.Settings.Lookup(key)
		b, err := e.MarshalValue()
		if err != nil {
			s.writeError(w, r, err, 0)
			return
		}
		out[key] = b
	}
	writeJSON(w, out)
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	e, ok := s.Settings.Lookup(chi.URLParam(r, "record"))
	if !ok {
		s.writeError(w, r, apperr.Invalid("Unknown settings record.", "record="+chi.URLParam(r, "record")), http.StatusNotFound)
		return
	}
	b, err := e.MarshalValue()
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, json.RawMessage(b))
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	e, ok := s.Settings.Lookup(chi.URLParam(r, "record"))
	if !ok {
		s.writeError(w, r, apperr.Invalid("Unknown settings record.", "record="+chi.URLParam(r, "record")), http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, apperr.Invalid("The request body is too large.", err.Error()), 0)
		return
	}
	if err := e.CommitJSON(r.Context(), body); err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	b, _ := e.MarshalValue()
	writeJSON(w, json.RawMessage(b))
}

// handleTestHubsoft tests the credentials in the body, which may be an
// unsaved draft, falling back to the committed record.
func (s *Server) handleTestHubsoft(w http.ResponseWriter, r *http.Request) {
	creds := s.Settings.API.Value()
	if err := decodeOptionalBody(r, &creds); err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	res, err := s.Mock.TestConnection(r.Context(), creds)
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleTestSimulator(w http.ResponseWriter, r *http.Request) {
	creds := s.Settings.Simulator.Value()
	if err := decodeOptionalBody(r, &creds); err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	res, err := s.Mock.TestSimulator(r.Context(), creds)
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleReportHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.Repo.ListReports(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, list)
}

type reportRequest struct {
	Type        string `json:"type"`
	From        string `json:"from"`
	To          string `json:"to"`
	RequestedBy string `json:"requestedBy"`
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var in reportRequest
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	kind, ok := report.ParseKind(in.Type)
	if !ok {
		s.writeError(w, r, apperr.Invalid("Unknown report type.", "type="+in.Type), 0)
		return
	}
	rng, err := parseDateRange(in.From, in.To)
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	art, err := s.Reports.Generate(r.Context(), report.Request{Kind: kind, Range: rng, RequestedBy: in.RequestedBy})
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+art.FileName+`"`)
	w.Header().Set("X-Report-Id", art.ID)
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	_, _ = w.Write(art.Data)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.Mock.FetchUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, users)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.Repo.DB().PingContext(r.Context()); err != nil {
		http.Error(w, "db not ready", 503)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// writeError logs the technical detail and answers with the user-safe
// message. status overrides the status carried by err when non-zero.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status == 0 {
		status = apperr.HTTPStatus(err)
	}
	msg := apperr.UserMessage(err, s.log.With("path", r.URL.Path))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Invalid("The request body could not be read.", err.Error())
	}
	return nil
}

func decodeOptionalBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperr.Invalid("The request body could not be read.", err.Error())
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Invalid("The request body could not be read.", err.Error())
	}
	return nil
}

func parseDateRange(from, to string) (report.Range, error) {
	var rng report.Range
	var err error
	if from != "" {
		if rng.From, err = time.Parse("2006-01-02", from); err != nil {
			return rng, apperr.Invalid("Invalid start date.", err.Error())
		}
	}
	if to != "" {
		if rng.To, err = time.Parse("2006-01-02", to); err != nil {
			return rng, apperr.Invalid("Invalid end date.", err.Error())
		}
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && rng.To.Before(rng.From) {
		return rng, apperr.Invalid("The end date is before the start date.", from+".."+to)
	}
	return rng, nil
}

func parseRange(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	if d <= 0 {
		return def
	}
	return d
}
