package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingPruner struct {
	cutoff time.Time
	err    error
}

func (p *recordingPruner) DeleteOlderThan(_ context.Context, cutoff time.Time) error {
	p.cutoff = cutoff
	return p.err
}

func TestRunUsesRetentionWindow(t *testing.T) {
	p := &recordingPruner{}
	s := NewService(p, 7, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

	assert.NoError(t, s.Run(context.Background()))
	assert.Equal(t, time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC), p.cutoff)
}

func TestNonPositiveDaysFallBack(t *testing.T) {
	s := NewService(&recordingPruner{}, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, 14, s.retentionDays)
}

func TestRunReturnsPruneError(t *testing.T) {
	p := &recordingPruner{err: errors.New("database is locked")}
	s := NewService(p, 14, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.EqualError(t, s.Run(context.Background()), "database is locked")
}
