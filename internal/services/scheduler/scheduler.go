package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
)

// AttemptRepository удаляет устаревшие попытки rate limit.
type AttemptRepository interface {
	PruneAttempts(ctx context.Context, before time.Time) (int64, error)
}

type SchedulerService struct {
	repo      AttemptRepository
	log       *slog.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewSchedulerService создает новый экземпляр SchedulerService.
// Попытки старше retention удаляются каждые interval.
func NewSchedulerService(repo AttemptRepository, log *slog.Logger, interval, retention time.Duration) *SchedulerService {
	return &SchedulerService{
		repo:      repo,
		log:       log,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

// PruneRateLimitAttempts чистит попытки сразу и затем по таймеру до отмены ctx.
func (s *SchedulerService) PruneRateLimitAttempts(ctx context.Context) {
	s.runPruneRateLimitAttempts(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runPruneRateLimitAttempts(ctx)
		}
	}
}

func (s *SchedulerService) runPruneRateLimitAttempts(ctx context.Context) {
	before := s.now().Add(-s.retention)
	removed, err := s.repo.PruneAttempts(ctx, before)
	if err != nil {
		s.log.Error("failed to prune rate limit attempts", sl.Err(err))
		return
	}
	if removed == 0 {
		s.log.Debug("no expired rate limit attempts")
		return
	}
	s.log.Info("pruned rate limit attempts", slog.Int64("count", removed), slog.Time("before", before))
}
