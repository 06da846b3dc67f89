// Package reload исполняет авто-пополнения из очереди: забирает попытку,
// списывает деньги с сохранённого метода и обновляет предохранитель.
package reload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/credit-engine/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
	"github.com/magabrotheeeer/credit-engine/internal/models"
	"github.com/magabrotheeeer/credit-engine/internal/paymentprovider"
	"github.com/magabrotheeeer/credit-engine/internal/services/autoreload"
)

// AutoReload состояние авто-пополнения пользователя.
type AutoReload interface {
	RecordReloadAttempt(ctx context.Context, userUID string) (string, bool, error)
	RecordReloadSuccess(ctx context.Context, userUID, key string) (bool, error)
	RecordReloadFailure(ctx context.Context, userUID, key string) (models.ReloadFailure, error)
}

// Charger списывает деньги с сохранённого платёжного метода.
type Charger interface {
	ChargeSavedMethod(ctx context.Context, charge paymentprovider.Charge) (*paymentprovider.CreatePaymentResponse, error)
}

// Processor обрабатывает сообщения TriggerInfo.
type Processor struct {
	reload          AutoReload
	charger         Charger
	tokenPriceCents int64
	log             *slog.Logger
}

// NewProcessor создает Processor.
func NewProcessor(reload AutoReload, charger Charger, tokenPriceCents int64, log *slog.Logger) *Processor {
	return &Processor{
		reload:          reload,
		charger:         charger,
		tokenPriceCents: tokenPriceCents,
		log:             log,
	}
}

// Handle обрабатывает одно сообщение. Ошибка, обёрнутая в rabbitmq.ErrPermanent,
// означает битое сообщение. Прочие ошибки возвращают сообщение в очередь.
func (p *Processor) Handle(ctx context.Context, body []byte) error {
	const op = "reload.Handle"

	var info models.TriggerInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return fmt.Errorf("%s: %w: %w", op, rabbitmq.ErrPermanent, err)
	}
	if _, err := uuid.Parse(info.UserUID); err != nil || info.Amount <= 0 {
		return fmt.Errorf("%s: %w: malformed trigger", op, rabbitmq.ErrPermanent)
	}
	log := p.log.With(slog.String("op", op), sl.User(info.UserUID))

	key, claimed, err := p.reload.RecordReloadAttempt(ctx, info.UserUID)
	if err != nil {
		if autoreload.IsDisabled(err) {
			log.Info("auto-reload disabled, dropping trigger")
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if !claimed {
		log.Info("auto-reload throttled, dropping trigger")
		return nil
	}
	log = log.With(slog.String("reload_key", key))

	// Исход попытки записывается и после остановки воркера: отметка уже
	// поставлена, а повтор сообщения будет отброшен throttle.
	settleCtx := context.WithoutCancel(ctx)

	resp, err := p.charger.ChargeSavedMethod(ctx, paymentprovider.Charge{
		UserUID:         info.UserUID,
		PaymentMethodID: info.PaymentMethodID,
		Tokens:          info.Amount,
		AmountCents:     int64(info.Amount) * p.tokenPriceCents,
		IdempotenceKey:  key,
	})
	if err != nil {
		log.Warn("auto-reload charge failed", sl.Err(err))
		if _, ferr := p.reload.RecordReloadFailure(settleCtx, info.UserUID, key); ferr != nil {
			log.Error("failed to record auto-reload failure", sl.Err(ferr))
		}
		return nil
	}

	if resp.Status != paymentprovider.StatusSucceeded {
		log.Info("auto-reload charge awaiting provider confirmation",
			slog.String("payment_id", resp.ID),
			slog.String("status", resp.Status),
			slog.Int("tokens", info.Amount))
		return nil
	}
	if _, err := p.reload.RecordReloadSuccess(settleCtx, info.UserUID, key); err != nil {
		log.Error("failed to record auto-reload success", sl.Err(err))
	}
	log.Info("auto-reload charge succeeded",
		slog.String("payment_id", resp.ID),
		slog.Int("tokens", info.Amount))
	return nil
}
