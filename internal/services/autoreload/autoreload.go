// Package autoreload решает, когда пользователю нужно авто-пополнение токенов,
// и ведёт throttle и предохранитель неудачных попыток.
package autoreload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
	"github.com/magabrotheeeer/credit-engine/internal/metrics"
	"github.com/magabrotheeeer/credit-engine/internal/models"
)

// Decision результат оценки аккаунта.
type Decision string

const (
	DecisionDisabled       Decision = "disabled"
	DecisionBreakerOpen    Decision = "breaker_open"
	DecisionAboveThreshold Decision = "above_threshold"
	DecisionThrottled      Decision = "throttled"
	DecisionTriggered      Decision = "triggered"
)

// Repository хранилище состояния авто-пополнения.
type Repository interface {
	GetAccount(ctx context.Context, userUID string) (*models.Account, error)
	ClaimReload(ctx context.Context, userUID string, now time.Time, throttle time.Duration, maxFailures int, key string) (bool, error)
	RecordReloadSuccess(ctx context.Context, userUID, key string) (bool, error)
	RecordReloadFailure(ctx context.Context, userUID, key string, maxFailures int) (models.ReloadFailure, error)
}

// Options параметры из конфига.
type Options struct {
	Throttle    time.Duration
	MaxFailures int
}

// Service реализует триггер, throttle и предохранитель.
type Service struct {
	repo    Repository
	metrics *metrics.Metrics
	log     *slog.Logger
	opts    Options
	now     func() time.Time
}

// New создает Service.
func New(repo Repository, m *metrics.Metrics, log *slog.Logger, opts Options) *Service {
	return &Service{
		repo:    repo,
		metrics: m,
		log:     log,
		opts:    opts,
		now:     time.Now,
	}
}

// Evaluate проверяет условия по порядку: включено, предохранитель,
// порог, throttle. TriggerInfo возвращается только при DecisionTriggered.
func Evaluate(a *models.Account, now time.Time, throttle time.Duration, maxFailures int) (*models.TriggerInfo, Decision) {
	switch {
	case !a.AutoReloadEnabled:
		return nil, DecisionDisabled
	case a.AutoReloadFailureCount >= maxFailures:
		return nil, DecisionBreakerOpen
	case a.TokenBalance >= a.AutoReloadThreshold:
		return nil, DecisionAboveThreshold
	case a.LastReloadAt != nil && now.Sub(*a.LastReloadAt) < throttle:
		return nil, DecisionThrottled
	}
	return &models.TriggerInfo{
		UserUID:         a.UserUID,
		Amount:          a.AutoReloadAmount,
		Balance:         a.TokenBalance,
		Threshold:       a.AutoReloadThreshold,
		PaymentMethodID: a.ReloadPaymentMethodID,
	}, DecisionTriggered
}

// CheckAndTrigger вызывается после списания токена. nil без ошибки
// означает, что пополнение сейчас не нужно.
func (s *Service) CheckAndTrigger(ctx context.Context, userUID string) (*models.TriggerInfo, error) {
	const op = "autoreload.CheckAndTrigger"

	account, err := s.repo.GetAccount(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	info, decision := Evaluate(account, s.now(), s.opts.Throttle, s.opts.MaxFailures)
	switch decision {
	case DecisionTriggered:
		s.metrics.AutoReload("triggered")
		s.log.Info("auto-reload triggered", sl.User(userUID),
			slog.Int("balance", info.Balance), slog.Int("threshold", info.Threshold))
	case DecisionThrottled, DecisionBreakerOpen:
		s.metrics.AutoReload(string(decision))
		s.log.Debug("auto-reload skipped", sl.User(userUID), slog.String("reason", string(decision)))
	}
	return info, nil
}

// RecordReloadAttempt атомарно ставит отметку last_reload_at и возвращает
// ключ попытки. Ключ служит ключом идемпотентности списания и ждёт
// подтверждённого исхода от провайдера. ok == false значит, что интервал
// throttle ещё не прошёл или попытку уже забрал другой обработчик. Если
// авто-пополнение выключено или предохранитель сработал, возвращается
// ErrAutoReloadDisabled.
func (s *Service) RecordReloadAttempt(ctx context.Context, userUID string) (string, bool, error) {
	const op = "autoreload.RecordReloadAttempt"

	now := s.now()
	key := ReloadKey(userUID, now)
	claimed, err := s.repo.ClaimReload(ctx, userUID, now, s.opts.Throttle, s.opts.MaxFailures, key)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	if claimed {
		return key, true, nil
	}

	account, err := s.repo.GetAccount(ctx, userUID)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	if !account.AutoReloadEnabled || account.AutoReloadFailureCount >= s.opts.MaxFailures {
		return "", false, fmt.Errorf("%s: %w", op, models.ErrAutoReloadDisabled)
	}
	s.metrics.AutoReload("throttled")
	return "", false, nil
}

// RecordReloadSuccess сбрасывает счётчик неудач, когда провайдер подтвердил
// списание попытки key. Повторное подтверждение ничего не меняет и
// возвращает false.
func (s *Service) RecordReloadSuccess(ctx context.Context, userUID, key string) (bool, error) {
	const op = "autoreload.RecordReloadSuccess"

	settled, err := s.repo.RecordReloadSuccess(ctx, userUID, key)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !settled {
		s.log.Debug("auto-reload outcome already recorded", sl.User(userUID), slog.String("reload_key", key))
		return false, nil
	}
	s.metrics.AutoReload("succeeded")
	return true, nil
}

// RecordReloadFailure увеличивает счётчик неудач попытки key. На MaxFailures
// авто-пополнение выключается до ручного включения.
func (s *Service) RecordReloadFailure(ctx context.Context, userUID, key string) (models.ReloadFailure, error) {
	const op = "autoreload.RecordReloadFailure"

	res, err := s.repo.RecordReloadFailure(ctx, userUID, key, s.opts.MaxFailures)
	if err != nil {
		return models.ReloadFailure{}, fmt.Errorf("%s: %w", op, err)
	}
	if !res.Settled {
		s.log.Debug("auto-reload outcome already recorded", sl.User(userUID), slog.String("reload_key", key))
		return res, nil
	}
	s.metrics.AutoReload("failed")
	if res.Disabled {
		s.metrics.AutoReload("disabled")
		s.log.Warn("auto-reload disabled after repeated failures", sl.User(userUID),
			slog.Int("failures", res.FailureCount))
	}
	return res, nil
}

// ReloadKey ключ попытки, стабильный для одной отметки last_reload_at.
func ReloadKey(userUID string, stamp time.Time) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(userUID+":"+stamp.UTC().Format(time.RFC3339Nano))).String()
}

// IsDisabled сообщает, является ли ошибка отказом из-за выключенного авто-пополнения.
func IsDisabled(err error) bool {
	return errors.Is(err, models.ErrAutoReloadDisabled)
}
