package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/credit-engine/internal/models"
)

const accountColumns = `user_uid, trial_remaining, trial_used, token_balance, total_purchased, total_spent,
	subscription_status, subscription_period_end, auto_reload_enabled, auto_reload_threshold,
	auto_reload_amount, auto_reload_failure_count, reload_payment_method_id, last_reload_at,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a             models.Account
		periodEnd     sql.NullTime
		paymentMethod sql.NullString
		lastReload    sql.NullTime
	)
	err := row.Scan(
		&a.UserUID, &a.TrialRemaining, &a.TrialUsed, &a.TokenBalance, &a.TotalPurchased, &a.TotalSpent,
		&a.SubscriptionStatus, &periodEnd, &a.AutoReloadEnabled, &a.AutoReloadThreshold,
		&a.AutoReloadAmount, &a.AutoReloadFailureCount, &paymentMethod, &lastReload,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if periodEnd.Valid {
		a.SubscriptionPeriodEnd = &periodEnd.Time
	}
	if paymentMethod.Valid {
		a.ReloadPaymentMethodID = paymentMethod.String
	}
	if lastReload.Valid {
		a.LastReloadAt = &lastReload.Time
	}
	return &a, nil
}

// CreateAccount заводит аккаунт с пробными кредитами. Повторный вызов для
// того же пользователя ничего не меняет и возвращает false.
func (s *Storage) CreateAccount(ctx context.Context, userUID string, trialCredits int) (bool, error) {
	const op = "storage.CreateAccount"

	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO accounts (user_uid, trial_remaining) VALUES ($1, $2)
		 ON CONFLICT (user_uid) DO NOTHING`,
		userUID, trialCredits)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

// GetAccount читает аккаунт без блокировки.
func (s *Storage) GetAccount(ctx context.Context, userUID string) (*models.Account, error) {
	const op = "storage.GetAccount"

	a, err := scanAccount(s.DB.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_uid = $1`, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return a, nil
}

// UpdateAutoReloadSettings сохраняет настройки авто-пополнения. Включение
// сбрасывает счётчик неудач, это единственный способ снять предохранитель.
func (s *Storage) UpdateAutoReloadSettings(ctx context.Context, userUID string, settings models.AutoReloadSettings) error {
	const op = "storage.UpdateAutoReloadSettings"

	res, err := s.DB.ExecContext(ctx,
		`UPDATE accounts SET
			auto_reload_enabled = $2,
			auto_reload_threshold = $3,
			auto_reload_amount = $4,
			reload_payment_method_id = COALESCE(NULLIF($5, ''), reload_payment_method_id),
			auto_reload_failure_count = CASE WHEN $2 THEN 0 ELSE auto_reload_failure_count END,
			updated_at = NOW()
		 WHERE user_uid = $1`,
		userUID, settings.Enabled, settings.Threshold, settings.Amount, settings.PaymentMethodID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return requireRow(op, res, models.ErrAccountNotFound)
}

// UpdateSubscription применяет событие подписки от провайдера.
func (s *Storage) UpdateSubscription(ctx context.Context, upd models.SubscriptionUpdate) error {
	const op = "storage.UpdateSubscription"

	res, err := s.DB.ExecContext(ctx,
		`UPDATE accounts SET subscription_status = $2, subscription_period_end = $3, updated_at = NOW()
		 WHERE user_uid = $1`,
		upd.UserUID, upd.Status, upd.PeriodEnd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return requireRow(op, res, models.ErrAccountNotFound)
}

func requireRow(op string, res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, notFound)
	}
	return nil
}
