// Package credits содержит бизнес-логику кредитов: выбор источника оплаты,
// списание, возврат, применение покупок и чтение балансов через кеш.
package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/credit-engine/internal/cache"
	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
	"github.com/magabrotheeeer/credit-engine/internal/metrics"
	"github.com/magabrotheeeer/credit-engine/internal/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Repository определяет методы хранилища, которыми пользуется сервис.
type Repository interface {
	CreateAccount(ctx context.Context, userUID string, trialCredits int) (bool, error)
	GetAccount(ctx context.Context, userUID string) (*models.Account, error)
	ConsumeCredit(ctx context.Context, userUID, operationID string, resolve models.ResolveFunc) (models.CreditType, error)
	RefundOperation(ctx context.Context, operationID string) (bool, error)
	GetOperation(ctx context.Context, operationID string) (*models.Operation, error)
	ApplyPurchase(ctx context.Context, p models.Purchase) (bool, error)
	UpdateAutoReloadSettings(ctx context.Context, userUID string, settings models.AutoReloadSettings) error
	UpdateSubscription(ctx context.Context, upd models.SubscriptionUpdate) error
	ListTransactions(ctx context.Context, userUID string, limit, offset int) ([]*models.LedgerTransaction, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Generation(ctx context.Context, key string) (int64, error)
	SetIfGeneration(ctx context.Context, key string, gen int64, value any, expiration time.Duration) (bool, error)
	Invalidate(ctx context.Context, keys ...string) error
}

// Options параметры сервиса из конфига.
type Options struct {
	TrialCredits    int
	BalanceCacheTTL time.Duration
}

// Service реализует операции над кредитами пользователя.
type Service struct {
	repo     Repository
	cache    Cache
	metrics  *metrics.Metrics
	log      *slog.Logger
	validate *validator.Validate
	opts     Options
}

// New создает новый экземпляр Service. cache может быть nil.
func New(repo Repository, cache Cache, m *metrics.Metrics, log *slog.Logger, opts Options) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		metrics:  m,
		log:      log,
		validate: validator.New(),
		opts:     opts,
	}
}

// CreateAccount заводит аккаунт с пробными кредитами. Повторный вызов безопасен.
func (s *Service) CreateAccount(ctx context.Context, userUID string) (bool, error) {
	const op = "credits.CreateAccount"
	if err := validateUserUID(userUID); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	created, err := s.repo.CreateAccount(ctx, userUID, s.opts.TrialCredits)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if created {
		s.log.Info("account created", sl.User(userUID), slog.Int("trial_credits", s.opts.TrialCredits))
	}
	return created, nil
}

// ResolveAndConsume списывает один кредит из приоритетного источника и
// регистрирует операцию, за которую он списан.
func (s *Service) ResolveAndConsume(ctx context.Context, userUID string) (models.Consumption, error) {
	const op = "credits.ResolveAndConsume"

	operationID := uuid.NewString()
	ct, err := s.repo.ConsumeCredit(ctx, userUID, operationID, Resolve)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientCredits) {
			s.metrics.Insufficient()
			s.log.Info("insufficient credits", sl.User(userUID))
		}
		return models.Consumption{}, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.Consumed(ct)
	if ct != models.CreditSubscription {
		s.invalidateBalance(ctx, userUID)
	}
	return models.Consumption{OperationID: operationID, CreditType: ct}, nil
}

// Refund возвращает кредит операции. Повторные вызовы ничего не меняют.
func (s *Service) Refund(ctx context.Context, operationID string) (bool, error) {
	const op = "credits.Refund"

	refunded, err := s.repo.RefundOperation(ctx, operationID)
	if err != nil {
		s.metrics.Refund("error")
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !refunded {
		s.metrics.Refund("noop")
		return false, nil
	}

	s.metrics.Refund("refunded")
	if operation, err := s.repo.GetOperation(ctx, operationID); err == nil {
		s.invalidateBalance(ctx, operation.UserUID)
	} else {
		s.log.Warn("failed to resolve operation owner for cache invalidation", sl.Err(err))
	}
	return true, nil
}

// GetBalance возвращает баланс, сначала пытаясь прочитать его из кеша.
// Ошибки кеша не мешают ответу: источник истины всегда хранилище.
// Прочитанный из хранилища баланс кладётся в кеш, только если ключ не
// инвалидировали во время чтения.
func (s *Service) GetBalance(ctx context.Context, userUID string) (models.Balance, error) {
	const op = "credits.GetBalance"

	key := cache.BalanceKey(userUID)
	cacheable := s.cache != nil
	var gen int64
	if cacheable {
		var cached models.Balance
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn("failed to read balance from cache", slog.String("key", key), sl.Err(err))
		}
		if found {
			return cached, nil
		}
		if gen, err = s.cache.Generation(ctx, key); err != nil {
			s.log.Warn("failed to read balance cache generation", slog.String("key", key), sl.Err(err))
			cacheable = false
		}
	}

	account, err := s.repo.GetAccount(ctx, userUID)
	if err != nil {
		return models.Balance{}, fmt.Errorf("%s: %w", op, err)
	}
	balance := models.BalanceOf(account)

	if cacheable {
		stored, err := s.cache.SetIfGeneration(ctx, key, gen, balance, s.opts.BalanceCacheTTL)
		switch {
		case err != nil:
			s.log.Warn("failed to cache balance", slog.String("key", key), sl.Err(err))
		case !stored:
			s.log.Debug("balance changed while reading, not cached", slog.String("key", key))
		}
	}
	return balance, nil
}

// ConfigureAutoReload проверяет и сохраняет настройки авто-пополнения.
// Включить авто-пополнение можно только с платёжным методом: переданным в
// settings или сохранённым ранее.
func (s *Service) ConfigureAutoReload(ctx context.Context, userUID string, settings models.AutoReloadSettings) error {
	const op = "credits.ConfigureAutoReload"

	if err := s.validate.Struct(settings); err != nil {
		return fmt.Errorf("%s: %w", op, toValidationError(err))
	}
	if settings.Enabled && settings.PaymentMethodID == "" {
		account, err := s.repo.GetAccount(ctx, userUID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if account.ReloadPaymentMethodID == "" {
			return fmt.Errorf("%s: %w", op, &models.ValidationError{
				Field:  "PaymentMethodID",
				Reason: "required when enabling auto-reload",
			})
		}
	}
	if err := s.repo.UpdateAutoReloadSettings(ctx, userUID, settings); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("auto-reload configured", sl.User(userUID),
		slog.Bool("enabled", settings.Enabled),
		slog.Int("threshold", settings.Threshold),
		slog.Int("amount", settings.Amount))
	return nil
}

// ApplyPurchaseWebhook зачисляет подтверждённую покупку. Повторная доставка
// того же платежа возвращает false без ошибки.
func (s *Service) ApplyPurchaseWebhook(ctx context.Context, p models.Purchase) (bool, error) {
	const op = "credits.ApplyPurchaseWebhook"

	switch {
	case p.ExternalPaymentID == "":
		return false, fmt.Errorf("%s: %w", op, &models.ValidationError{Field: "external_payment_id", Reason: "required"})
	case p.Tokens <= 0:
		return false, fmt.Errorf("%s: %w", op, &models.ValidationError{Field: "tokens", Reason: "must be positive"})
	case p.AmountPaidCents < 0:
		return false, fmt.Errorf("%s: %w", op, &models.ValidationError{Field: "amount_paid", Reason: "must not be negative"})
	}
	if err := validateUserUID(p.UserUID); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	credited, err := s.repo.ApplyPurchase(ctx, p)
	if err != nil {
		s.metrics.Webhook("error")
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !credited {
		s.metrics.Webhook("duplicate")
		s.log.Info("purchase already applied", slog.String("payment_id", p.ExternalPaymentID))
		return false, nil
	}

	s.metrics.Webhook("credited")
	s.log.Info("purchase credited", sl.User(p.UserUID),
		slog.String("payment_id", p.ExternalPaymentID), slog.Int("tokens", p.Tokens))
	s.invalidateBalance(ctx, p.UserUID)
	return true, nil
}

// UpdateSubscription применяет событие подписки.
func (s *Service) UpdateSubscription(ctx context.Context, upd models.SubscriptionUpdate) error {
	const op = "credits.UpdateSubscription"

	if !upd.Status.Valid() {
		return fmt.Errorf("%s: %w", op, &models.ValidationError{Field: "status", Reason: "unknown subscription status"})
	}
	if err := validateUserUID(upd.UserUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.UpdateSubscription(ctx, upd); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("subscription updated", sl.User(upd.UserUID), slog.String("status", string(upd.Status)))
	s.invalidateBalance(ctx, upd.UserUID)
	return nil
}

// ListTransactions возвращает журнал пользователя, новые записи первыми.
func (s *Service) ListTransactions(ctx context.Context, userUID string, limit, offset int) ([]*models.LedgerTransaction, error) {
	const op = "credits.ListTransactions"

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		return nil, fmt.Errorf("%s: %w", op, &models.ValidationError{Field: "offset", Reason: "must not be negative"})
	}

	txs, err := s.repo.ListTransactions(ctx, userUID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return txs, nil
}

func (s *Service) invalidateBalance(ctx context.Context, userUID string) {
	if s.cache == nil {
		return
	}
	key := cache.BalanceKey(userUID)
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.log.Warn("failed to invalidate balance cache", slog.String("key", key), sl.Err(err))
	}
}

func validateUserUID(userUID string) error {
	if _, err := uuid.Parse(userUID); err != nil {
		return &models.ValidationError{Field: "user_uid", Reason: "must be a UUID"}
	}
	return nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		return &models.ValidationError{Field: fe.Field(), Reason: reason}
	}
	return &models.ValidationError{Field: "settings", Reason: err.Error()}
}
