package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"guardian/internal/alerts"
	"guardian/internal/config"
	"guardian/internal/db"
	"guardian/internal/fetch"
	"guardian/internal/hub"
	"guardian/internal/mock"
	"guardian/internal/models"
	"guardian/internal/notifier"
	"guardian/internal/poller"
	"guardian/internal/report"
	"guardian/internal/retention"
	"guardian/internal/settings"
	"guardian/internal/web"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db       *db.Repository
	settings *settings.Store
	mock     *mock.Service

	hub       *hub.Hub
	poller    *poller.Poller
	alerts    *alerts.Engine
	retention *retention.Service
	web       *web.Server

	httpSrv *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	sqldb, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	repo := db.NewRepository(sqldb)

	store, err := settings.Open(context.Background(), repo, logger.With("module", "settings"))
	if err != nil {
		_ = sqldb.Close()
		return nil, err
	}

	svc := mock.New(mock.Options{Seed: cfg.MockSeed, Latency: cfg.MockLatency})
	h := hub.New(logger.With("module", "hub"))
	tg := newTelegram(store, cfg)
	dispatch := notifier.NewDispatcher(h, tg, store.Notifications, repo, logger.With("module", "notifier"))
	engine := alerts.NewEngine(repo, dispatch, logger.With("module", "alerts"))
	p := poller.New(svc, poller.NewWindow(poller.WindowSize), logger.With("module", "poller"))
	reports := report.NewGenerator(svc, repo, logger.With("module", "report"), report.Options{
		Settle: cfg.SettleDelay,
		Sink:   report.DirSink{Dir: cfg.ReportDir},
	})

	w := web.NewServer(web.Deps{
		Repo:     repo,
		Settings: store,
		Mock:     svc,
		Cycle:    fetch.NewCycle(svc, store.API, repo, logger.With("module", "fetch")),
		Poller:   p,
		Hub:      h,
		Alerts:   engine,
		Reports:  reports,
		Notify:   dispatch,
	}, logger.With("module", "web"))

	app := &App{
		cfg:       cfg,
		log:       logger,
		db:        repo,
		settings:  store,
		mock:      svc,
		hub:       h,
		poller:    p,
		alerts:    engine,
		retention: retention.NewService(repo, cfg.RetentionDays, logger.With("module", "retention")),
		web:       w,
	}
	app.httpSrv = &http.Server{Addr: cfg.Addr, Handler: w.Routes(), ReadHeaderTimeout: 10 * time.Second}
	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	go a.hub.Run()

	a.poller.OnPoint(func(pt models.TelemetryPoint) {
		a.hub.Publish(hub.TypeTelemetry, pt)
	})
	a.poller.OnPointAsync(ctx, poller.WindowSize, func(pt models.TelemetryPoint) {
		a.alerts.Evaluate(ctx, pt)
	})
	a.poller.Start(ctx, poller.Interval(a.settings.System.Value()))
	unsubscribe := a.settings.System.Subscribe(func(p models.SystemPreferences) {
		a.poller.SetInterval(poller.Interval(p))
	})
	defer unsubscribe()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	retentionTicker := time.NewTicker(6 * time.Hour)
	defer retentionTicker.Stop()

	_ = a.retention.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return a.shutdown()
		case err := <-errCh:
			a.log.Error("http server failed", "err", err)
			_ = a.shutdown()
			return err
		case <-retentionTicker.C:
			_ = a.retention.Run(ctx)
		}
	}
}

func (a *App) shutdown() error {
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(sctx); err != nil {
		a.log.Warn("http shutdown", "err", err)
	}
	a.poller.Stop()
	a.hub.Close()
	return a.db.DB().Close()
}

// newTelegram builds the bot client and keeps it in step with the stored
// telegram record.
func newTelegram(store *settings.Store, cfg config.Config) *notifier.Telegram {
	tg := notifier.NewTelegram(telegramCredentials(store.Telegram.Value(), cfg))
	store.Telegram.Subscribe(func(v models.TelegramSettings) {
		tg.Update(telegramCredentials(v, cfg))
	})
	return tg
}

// telegramCredentials prefers the stored record and falls back to the
// environment when the record is empty.
func telegramCredentials(s models.TelegramSettings, cfg config.Config) (token, chatID string) {
	if s.BotToken != "" && s.ChatID != "" {
		return s.BotToken, s.ChatID
	}
	return cfg.TelegramBotToken, cfg.TelegramChatID
}
