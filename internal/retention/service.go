package retention

import (
	"context"
	"log/slog"
	"time"
)

type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
}

// Service prunes sync logs, recovered alerts, notification events and report
// history older than the retention window.
type Service struct {
	repo          Pruner
	retentionDays int
	log           *slog.Logger
	now           func() time.Time
}

func NewService(repo Pruner, days int, logger *slog.Logger) *Service {
	if days <= 0 {
		days = 14
	}
	return &Service{repo: repo, retentionDays: days, log: logger, now: time.Now}
}

func (s *Service) Run(ctx context.Context) error {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	if err := s.repo.DeleteOlderThan(ctx, cutoff); err != nil {
		s.log.Error("retention cleanup failed", "err", err)
		return err
	}
	s.log.Info("retention cleanup completed", "cutoff", cutoff)
	return nil
}
