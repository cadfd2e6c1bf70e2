package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian/internal/apperr"
	"guardian/internal/mock"
	"guardian/internal/models"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type memHistory struct {
	mu   sync.Mutex
	rows []models.ReportHistory
}

func (m *memHistory) InsertReport(_ context.Context, h models.ReportHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, h)
	return nil
}

type failingRasterizer struct {
	stage   *Stage
	mounted int
	steps   *[]string
}

func (f *failingRasterizer) Rasterize(context.Context, Widget) ([]byte, error) {
	f.mounted = len(f.stage.Mounted())
	*f.steps = append(*f.steps, "rasterize")
	return nil, errors.New("canvas is tainted")
}

func newTestGenerator(t *testing.T, opts Options) (*Generator, *memHistory) {
	t.Helper()
	src := mock.New(mock.Options{Seed: 11, Now: func() time.Time { return fixedNow }})
	h := &memHistory{}
	g := NewGenerator(src, h, slog.New(slog.NewTextHandler(io.Discard, nil)), opts)
	g.now = func() time.Time { return fixedNow }
	return g, h
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "FTTH_Guardian_Operational_2026-03-10.pdf", FileName(Operational, fixedNow))
	assert.Equal(t, "FTTH_Guardian_ML_2026-03-10.pdf", FileName(ML, fixedNow))
}

func TestOperationalReport(t *testing.T) {
	g, h := newTestGenerator(t, Options{})

	art, err := g.Generate(context.Background(), Request{Kind: Operational, RequestedBy: "noc"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(art.Data, []byte("%PDF-")))
	assert.Equal(t, "FTTH_Guardian_Operational_2026-03-10.pdf", art.FileName)

	require.Len(t, h.rows, 1)
	assert.Equal(t, art.ID, h.rows[0].ID)
	assert.Equal(t, "noc", h.rows[0].GeneratedBy)
	assert.Equal(t, "operational", h.rows[0].Type)
}

func TestMLReportRasterizesAfterSettle(t *testing.T) {
	dir := t.TempDir()
	g, h := newTestGenerator(t, Options{Settle: 500 * time.Millisecond, Sink: DirSink{Dir: dir}})
	var steps []string
	g.sleep = func(_ context.Context, d time.Duration) error {
		steps = append(steps, "settle:"+d.String())
		return nil
	}
	inner := g.raster
	g.raster = rasterFunc(func(ctx context.Context, w Widget) ([]byte, error) {
		steps = append(steps, "rasterize:"+w.ID)
		return inner.Rasterize(ctx, w)
	})

	rng := Range{From: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), To: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)}
	art, err := g.Generate(context.Background(), Request{Kind: ML, Range: rng})
	require.NoError(t, err)

	assert.Equal(t, []string{"settle:500ms", "rasterize:feature-importance", "rasterize:model-drift"}, steps)
	assert.Empty(t, g.Stage().Mounted())
	assert.True(t, bytes.HasPrefix(art.Data, []byte("%PDF-")))

	onDisk, err := os.ReadFile(art.Location)
	require.NoError(t, err)
	assert.Equal(t, art.Data, onDisk)

	require.Len(t, h.rows, 1)
	assert.Equal(t, "2026-03-05..2026-03-10", h.rows[0].Filters)
	assert.Equal(t, "anonymous", h.rows[0].GeneratedBy)
}

type rasterFunc func(ctx context.Context, w Widget) ([]byte, error)

func (f rasterFunc) Rasterize(ctx context.Context, w Widget) ([]byte, error) { return f(ctx, w) }

func TestRasterizationFailureTearsDownStage(t *testing.T) {
	var steps []string
	g, h := newTestGenerator(t, Options{})
	fr := &failingRasterizer{stage: g.Stage(), steps: &steps}
	g.raster = fr

	_, err := g.Generate(context.Background(), Request{Kind: ML})
	require.Error(t, err)

	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindCapture, ae.Kind)
	assert.Equal(t, "canvas is tainted", ae.TechnicalDetails)
	assert.Equal(t, 2, fr.mounted, "widgets are on stage while rasterizing")
	assert.Empty(t, g.Stage().Mounted(), "stage is torn down after the failure")
	assert.Empty(t, h.rows)
}

func TestEmptyRangeIsRejectedBeforeMounting(t *testing.T) {
	g, _ := newTestGenerator(t, Options{})
	rng := Range{From: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}

	_, err := g.Generate(context.Background(), Request{Kind: ML, Range: rng})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))
	assert.Empty(t, g.Stage().Mounted())
}

func TestCancelledSettleTearsDownStage(t *testing.T) {
	g, _ := newTestGenerator(t, Options{Settle: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	g.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := g.Generate(ctx, Request{Kind: ML})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, g.Stage().Mounted())
}

func TestRangeString(t *testing.T) {
	assert.Equal(t, "", Range{}.String())
	assert.Equal(t, "..2026-03-10", Range{To: fixedNow}.String())
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("ml")
	assert.True(t, ok)
	assert.Equal(t, ML, k)
	_, ok = ParseKind("executive")
	assert.False(t, ok)
}

func TestSameDayReportsKeepSeparateFiles(t *testing.T) {
	dir := t.TempDir()
	g, h := newTestGenerator(t, Options{Sink: DirSink{Dir: dir}})

	first, err := g.Generate(context.Background(), Request{Kind: Operational})
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), Request{Kind: Operational})
	require.NoError(t, err)

	assert.Equal(t, first.FileName, second.FileName)
	assert.NotEqual(t, first.Location, second.Location)
	assert.Equal(t, first.ID+"_"+first.FileName, filepath.Base(first.Location))
	for _, a := range []Artifact{first, second} {
		onDisk, err := os.ReadFile(a.Location)
		require.NoError(t, err)
		assert.Equal(t, a.Data, onDisk)
	}
	require.Len(t, h.rows, 2)
}
