package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientCredits ни один источник не покрывает операцию.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrRateLimited превышен лимит попыток в окне.
	ErrRateLimited = errors.New("rate limited")
	// ErrAutoReloadDisabled предохранитель авто-пополнения сработал.
	ErrAutoReloadDisabled = errors.New("auto-reload disabled")
	// ErrDuplicateWebhook платёж уже применён. Наружу не отдаётся как ошибка.
	ErrDuplicateWebhook = errors.New("webhook already processed")
	// ErrValidation некорректные входные данные.
	ErrValidation = errors.New("validation error")
	// ErrDatabase временная ошибка хранилища, операцию можно повторить.
	ErrDatabase = errors.New("database error")

	ErrAccountNotFound   = errors.New("account not found")
	ErrOperationNotFound = errors.New("operation not found")
)

// RateLimitError несёт время до следующей разрешённой попытки.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// ValidationError описывает нарушение для конкретного поля.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
