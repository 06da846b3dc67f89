// Package operation связывает rate limit, списание, авто-пополнение и возврат
// в жизненный цикл одной оплачиваемой операции.
package operation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
	"github.com/magabrotheeeer/credit-engine/internal/metrics"
	"github.com/magabrotheeeer/credit-engine/internal/models"
)

// Limiter скользящее окно попыток.
type Limiter interface {
	Check(ctx context.Context, userUID string) (models.RateLimitStatus, error)
	Record(ctx context.Context, userUID string) error
}

// Credits списание и возврат кредитов.
type Credits interface {
	ResolveAndConsume(ctx context.Context, userUID string) (models.Consumption, error)
	Refund(ctx context.Context, operationID string) (bool, error)
}

// Trigger решает, нужно ли авто-пополнение после списания токена.
type Trigger interface {
	CheckAndTrigger(ctx context.Context, userUID string) (*models.TriggerInfo, error)
}

// Publisher отправляет TriggerInfo исполнителю авто-пополнения.
type Publisher interface {
	Publish(ctx context.Context, message any) error
}

// Operations хранилище операций.
type Operations interface {
	GetOperation(ctx context.Context, operationID string) (*models.Operation, error)
	UpdateOperationStatus(ctx context.Context, operationID string, status models.OperationStatus) (bool, error)
}

// Service обрабатывает старт и завершение операций.
type Service struct {
	limiter    Limiter
	credits    Credits
	trigger    Trigger
	publisher  Publisher
	operations Operations
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// New создает Service. publisher может быть nil, тогда авто-пополнение
// только логируется.
func New(limiter Limiter, credits Credits, trigger Trigger, publisher Publisher, operations Operations,
	m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		limiter:    limiter,
		credits:    credits,
		trigger:    trigger,
		publisher:  publisher,
		operations: operations,
		metrics:    m,
		log:        log,
	}
}

// Start проверяет лимит, списывает кредит и регистрирует операцию.
// Попытка учитывается в лимите даже если кредитов не хватило.
func (s *Service) Start(ctx context.Context, userUID string) (models.StartResult, error) {
	const op = "operation.Start"

	status, err := s.limiter.Check(ctx, userUID)
	if err != nil {
		return models.StartResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if !status.Allowed {
		s.metrics.RateLimited()
		return models.StartResult{}, fmt.Errorf("%s: %w", op,
			&models.RateLimitError{RetryAfterSeconds: status.RetryAfterSeconds})
	}

	if err := s.limiter.Record(ctx, userUID); err != nil {
		return models.StartResult{}, fmt.Errorf("%s: %w", op, err)
	}

	consumption, err := s.credits.ResolveAndConsume(ctx, userUID)
	if err != nil {
		return models.StartResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if consumption.CreditType == models.CreditToken {
		s.triggerReload(ctx, userUID)
	}

	s.log.Info("operation started", sl.User(userUID),
		slog.String("operation_id", consumption.OperationID),
		slog.String("credit_type", string(consumption.CreditType)))

	return models.StartResult{
		OperationID:        consumption.OperationID,
		CreditType:         consumption.CreditType,
		RateLimitRemaining: max(status.Remaining-1, 0),
	}, nil
}

// Finish фиксирует результат операции. При неудаче кредит возвращается.
// Повторный вызов с тем же результатом безопасен.
func (s *Service) Finish(ctx context.Context, userUID, operationID string, succeeded bool) (bool, error) {
	const op = "operation.Finish"

	operation, err := s.operations.GetOperation(ctx, operationID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if operation.UserUID != userUID {
		return false, fmt.Errorf("%s: %w", op, models.ErrOperationNotFound)
	}

	target := models.OperationCompleted
	if !succeeded {
		target = models.OperationFailed
	}

	if err := checkFinished(operation.Status, target); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !isFinished(operation.Status) {
		changed, err := s.operations.UpdateOperationStatus(ctx, operationID, target)
		if err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		if !changed {
			// Другой вызов успел завершить операцию между чтением и записью.
			current, err := s.operations.GetOperation(ctx, operationID)
			if err != nil {
				return false, fmt.Errorf("%s: %w", op, err)
			}
			if err := checkFinished(current.Status, target); err != nil {
				return false, fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	if succeeded {
		return false, nil
	}

	refunded, err := s.credits.Refund(ctx, operationID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if refunded {
		s.log.Info("operation failed, credit refunded", sl.User(userUID), slog.String("operation_id", operationID))
	}
	return refunded, nil
}

func isFinished(status models.OperationStatus) bool {
	return status == models.OperationCompleted || status == models.OperationFailed
}

// checkFinished отклоняет результат, противоречащий уже зафиксированному.
func checkFinished(status, target models.OperationStatus) error {
	if isFinished(status) && status != target {
		return &models.ValidationError{
			Field:  "succeeded",
			Reason: "operation already finished as " + string(status),
		}
	}
	return nil
}

func (s *Service) triggerReload(ctx context.Context, userUID string) {
	info, err := s.trigger.CheckAndTrigger(ctx, userUID)
	if err != nil {
		s.log.Error("failed to evaluate auto-reload", sl.User(userUID), sl.Err(err))
		return
	}
	if info == nil || s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, info); err != nil {
		s.log.Error("failed to publish auto-reload trigger", sl.User(userUID), sl.Err(err))
	}
}
