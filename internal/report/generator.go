package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"guardian/internal/apperr"
	"guardian/internal/metrics"
	"guardian/internal/models"
)

type Kind string

const (
	Operational Kind = "operational"
	ML          Kind = "ml"
)

func ParseKind(v string) (Kind, bool) {
	switch k := Kind(v); k {
	case Operational, ML:
		return k, true
	}
	return "", false
}

func (k Kind) label() string {
	if k == ML {
		return "ML"
	}
	return "Operational"
}

// FileName is the download name for a report of kind generated at t.
func FileName(k Kind, t time.Time) string {
	return fmt.Sprintf("FTTH_Guardian_%s_%s.pdf", k.label(), t.Format("2006-01-02"))
}

// storageName keeps same-day reports of one kind apart on disk; the download
// name stays FileName.
func storageName(a Artifact) string {
	return a.ID + "_" + a.FileName
}

// Range bounds the drift series by date, inclusive. Zero ends are open.
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) IsZero() bool { return r.From.IsZero() && r.To.IsZero() }

func (r Range) contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

func (r Range) String() string {
	if r.IsZero() {
		return ""
	}
	var from, to string
	if !r.From.IsZero() {
		from = r.From.Format("2006-01-02")
	}
	if !r.To.IsZero() {
		to = r.To.Format("2006-01-02")
	}
	return from + ".." + to
}

type Request struct {
	Kind        Kind
	Range       Range
	RequestedBy string
}

type Artifact struct {
	ID          string
	Kind        Kind
	FileName    string
	Location    string
	GeneratedAt time.Time
	Data        []byte
}

type Source interface {
	FetchPredictions(ctx context.Context) ([]models.Prediction, error)
	FetchModelMetrics(ctx context.Context) (models.ModelMetrics, error)
	FetchFeatureImportance(ctx context.Context) ([]models.FeatureImportance, error)
	FetchModelDrift(ctx context.Context) ([]models.DriftPoint, error)
}

type History interface {
	InsertReport(ctx context.Context, h models.ReportHistory) error
}

type Options struct {
	Settle     time.Duration
	Rasterizer Rasterizer
	Sink       Sink
}

type Generator struct {
	src     Source
	history History
	raster  Rasterizer
	sink    Sink
	stage   *Stage
	log     *slog.Logger
	settle  time.Duration
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	mu sync.Mutex
}

func NewGenerator(src Source, history History, logger *slog.Logger, opts Options) *Generator {
	g := &Generator{
		src:     src,
		history: history,
		raster:  opts.Rasterizer,
		sink:    opts.Sink,
		stage:   NewStage(),
		log:     logger,
		settle:  opts.Settle,
		now:     time.Now,
		sleep:   sleepContext,
	}
	if g.raster == nil {
		g.raster = ChartRasterizer{}
	}
	if g.sink == nil {
		g.sink = DiscardSink{}
	}
	return g
}

func (g *Generator) Stage() *Stage { return g.stage }

// Generate builds one report, stores it through the sink and records it in
// the history. Only one report is built at a time since they share a stage.
func (g *Generator) Generate(ctx context.Context, req Request) (Artifact, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	start := time.Now()
	generated := g.now().UTC()
	var (
		data []byte
		err  error
	)
	switch req.Kind {
	case Operational:
		data, err = g.operational(ctx, generated)
	case ML:
		data, err = g.ml(ctx, req.Range, generated)
	default:
		err = apperr.Invalid("Unknown report type.", "kind="+string(req.Kind))
	}
	metrics.ReportDuration.WithLabelValues(string(req.Kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReportsTotal.WithLabelValues(string(req.Kind), "error").Inc()
		return Artifact{}, err
	}

	art := Artifact{
		ID:          uuid.NewString(),
		Kind:        req.Kind,
		FileName:    FileName(req.Kind, generated),
		GeneratedAt: generated,
		Data:        data,
	}
	art.Location, err = g.sink.Save(ctx, storageName(art), data)
	if err != nil {
		metrics.ReportsTotal.WithLabelValues(string(req.Kind), "error").Inc()
		return Artifact{}, apperr.Capture("The report could not be saved.", err)
	}
	by := req.RequestedBy
	if by == "" {
		by = "anonymous"
	}
	if err := g.history.InsertReport(ctx, models.ReportHistory{
		ID:          art.ID,
		Type:        string(req.Kind),
		GeneratedAt: generated,
		GeneratedBy: by,
		Filters:     req.Range.String(),
		FileName:    art.FileName,
	}); err != nil {
		g.log.Error("record report history", "err", err, "id", art.ID)
	}
	metrics.ReportsTotal.WithLabelValues(string(req.Kind), "ok").Inc()
	g.log.Info("report generated", "kind", req.Kind, "file", art.FileName, "bytes", len(data))
	return art, nil
}

func (g *Generator) operational(ctx context.Context, generated time.Time) ([]byte, error) {
	preds, err := g.src.FetchPredictions(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := composeOperational(preds, generated)
	if err != nil {
		return nil, apperr.Capture("Failed to build the PDF document.", err)
	}
	return doc, nil
}

func (g *Generator) ml(ctx context.Context, rng Range, generated time.Time) ([]byte, error) {
	var (
		m          models.ModelMetrics
		importance []models.FeatureImportance
		drift      []models.DriftPoint
	)
	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		m, err = g.src.FetchModelMetrics(ectx)
		return err
	})
	eg.Go(func() (err error) {
		importance, err = g.src.FetchFeatureImportance(ectx)
		return err
	})
	eg.Go(func() (err error) {
		drift, err = g.src.FetchModelDrift(ectx)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	drift = filterDrift(drift, rng)
	if len(drift) < 2 {
		return nil, apperr.Invalid("The selected period has too little drift data to chart.", fmt.Sprintf("%d drift points in %s", len(drift), rng))
	}

	defer g.stage.Teardown()
	g.stage.Mount(importanceWidget(importance))
	g.stage.Mount(driftWidget(drift))

	if err := g.sleep(ctx, g.settle); err != nil {
		return nil, err
	}

	var charts []chartImage
	for _, w := range g.stage.Mounted() {
		png, err := g.raster.Rasterize(ctx, w)
		if err != nil {
			return nil, apperr.Capture("Failed to capture the charts for the report.", err)
		}
		charts = append(charts, chartImage{name: w.ID, png: png})
	}

	doc, err := composeML(m, importance, charts, rng.String(), generated)
	if err != nil {
		return nil, apperr.Capture("Failed to build the PDF document.", err)
	}
	return doc, nil
}

func filterDrift(points []models.DriftPoint, rng Range) []models.DriftPoint {
	if rng.IsZero() {
		return points
	}
	out := make([]models.DriftPoint, 0, len(points))
	for _, p := range points {
		if rng.contains(p.Date) {
			out = append(out, p)
		}
	}
	return out
}

func importanceWidget(importance []models.FeatureImportance) Widget {
	bars := make([]Bar, len(importance))
	for i, f := range importance {
		bars[i] = Bar{Label: f.Feature, Value: f.Importance}
	}
	return Widget{ID: "feature-importance", Title: "Feature importance", Width: 1024, Height: 512, Bars: bars}
}

func driftWidget(points []models.DriftPoint) Widget {
	times := make([]time.Time, len(points))
	values := make([]float64, len(points))
	baseline := make([]float64, len(points))
	for i, p := range points {
		times[i] = p.Date
		values[i] = p.Value
		baseline[i] = p.Baseline
	}
	return Widget{
		ID:     "model-drift",
		Title:  "Model drift: accuracy vs baseline",
		Width:  1024,
		Height: 512,
		Series: []Series{
			{Name: "Accuracy", Times: times, Values: values},
			{Name: "Baseline", Times: times, Values: baseline},
		},
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
