// Package ratelimit реализует скользящее окно попыток на пользователя.
// Счётчик хранится в PostgreSQL, поэтому лимит общий для всех реплик.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
	"github.com/magabrotheeeer/credit-engine/internal/models"
)

// Store хранилище попыток.
type Store interface {
	RecordAttempt(ctx context.Context, userUID string, at time.Time) error
	AttemptsSince(ctx context.Context, userUID string, since time.Time) (models.AttemptWindow, error)
}

// Option настраивает Limiter.
type Option func(*Limiter)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// Limiter проверяет и записывает попытки пользователя.
type Limiter struct {
	store  Store
	window time.Duration
	max    int
	now    func() time.Time
	log    *slog.Logger
}

// New создает Limiter, разрешающий maxAttempts попыток за window.
func New(store Store, window time.Duration, maxAttempts int, log *slog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		window: window,
		max:    maxAttempts,
		now:    time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check сообщает, можно ли пользователю сделать ещё одну попытку.
// Проверка не атомарна с Record: при гонке лимит может быть превышен на
// число одновременных запросов.
func (l *Limiter) Check(ctx context.Context, userUID string) (models.RateLimitStatus, error) {
	const op = "ratelimit.Check"

	now := l.now()
	w, err := l.store.AttemptsSince(ctx, userUID, now.Add(-l.window))
	if err != nil {
		return models.RateLimitStatus{}, fmt.Errorf("%s: %w", op, err)
	}

	if w.Count < l.max {
		return models.RateLimitStatus{Allowed: true, Remaining: l.max - w.Count}, nil
	}

	retry := l.window
	if w.Oldest != nil {
		retry = w.Oldest.Add(l.window).Sub(now)
	}
	status := models.RateLimitStatus{RetryAfterSeconds: ceilSeconds(retry)}
	l.log.Info("rate limit exceeded", sl.User(userUID),
		slog.Int("attempts", w.Count), slog.Int("retry_after", status.RetryAfterSeconds))
	return status, nil
}

// Record записывает попытку текущим временем.
func (l *Limiter) Record(ctx context.Context, userUID string) error {
	const op = "ratelimit.Record"
	if err := l.store.RecordAttempt(ctx, userUID, l.now()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
