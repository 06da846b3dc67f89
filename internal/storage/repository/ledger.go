package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/credit-engine/internal/models"
)

// ConsumeCredit списывает один кредит под блокировкой строки аккаунта.
// resolve вызывается на свежем заблокированном состоянии, поэтому при N
// параллельных списаниях с балансом B успешны ровно B. Вместе со списанием
// создаётся операция operationID в статусе processing и запись журнала.
func (s *Storage) ConsumeCredit(ctx context.Context, userUID, operationID string, resolve models.ResolveFunc) (models.CreditType, error) {
	const op = "storage.ConsumeCredit"

	var creditType models.CreditType
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		acc, err := scanAccount(tx.QueryRowContext(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE user_uid = $1 FOR UPDATE`, userUID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrAccountNotFound
			}
			return err
		}

		ct, ok := resolve(acc)
		if !ok {
			return models.ErrInsufficientCredits
		}

		amount := -1
		switch ct {
		case models.CreditSubscription:
			amount = 0
		case models.CreditTrial:
			_, err = tx.ExecContext(ctx,
				`UPDATE accounts SET trial_remaining = trial_remaining - 1, trial_used = trial_used + 1,
				 updated_at = NOW() WHERE user_uid = $1`, userUID)
		case models.CreditToken:
			_, err = tx.ExecContext(ctx,
				`UPDATE accounts SET token_balance = token_balance - 1, total_spent = total_spent + 1,
				 updated_at = NOW() WHERE user_uid = $1`, userUID)
		default:
			return fmt.Errorf("unknown credit type %q", ct)
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO operations (id, user_uid, credit_type_used, status) VALUES ($1, $2, $3, $4)`,
			operationID, userUID, ct, models.OperationProcessing)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ledger_transactions (user_uid, kind, amount, credit_type, operation_id)
			 VALUES ($1, $2, $3, $4, $5)`,
			userUID, models.KindGeneration, amount, ct, operationID)
		if err != nil {
			return err
		}
		creditType = ct
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return creditType, nil
}

// RefundOperation возвращает кредит, списанный под операцию. Строка операции
// блокируется, флаг credit_refunded делает повторные вызовы пустыми.
// Возвращает true, только если баланс действительно был восстановлен.
func (s *Storage) RefundOperation(ctx context.Context, operationID string) (bool, error) {
	const op = "storage.RefundOperation"

	var refunded bool
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var (
			userUID    string
			creditType models.CreditType
			already    bool
		)
		err := tx.QueryRowContext(ctx,
			`SELECT user_uid, credit_type_used, credit_refunded FROM operations WHERE id = $1 FOR UPDATE`,
			operationID).Scan(&userUID, &creditType, &already)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrOperationNotFound
			}
			return err
		}
		if already {
			return nil
		}

		switch creditType {
		case models.CreditTrial:
			_, err = tx.ExecContext(ctx,
				`UPDATE accounts SET trial_remaining = trial_remaining + 1,
				 trial_used = GREATEST(trial_used - 1, 0), updated_at = NOW() WHERE user_uid = $1`, userUID)
		case models.CreditToken:
			_, err = tx.ExecContext(ctx,
				`UPDATE accounts SET token_balance = token_balance + 1,
				 total_spent = GREATEST(total_spent - 1, 0), updated_at = NOW() WHERE user_uid = $1`, userUID)
		}
		if err != nil {
			return err
		}

		if creditType != models.CreditSubscription {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO ledger_transactions (user_uid, kind, amount, credit_type, operation_id)
				 VALUES ($1, $2, 1, $3, $4)`,
				userUID, models.KindRefund, creditType, operationID)
			if err != nil {
				return err
			}
			refunded = true
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE operations SET credit_refunded = TRUE, updated_at = NOW() WHERE id = $1`, operationID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return refunded, nil
}

// ApplyPurchase зачисляет купленные токены ровно один раз на external_payment_id.
// Вставка в журнал с ON CONFLICT DO NOTHING и зачисление выполняются в одной
// транзакции: проверка "уже применён" и применение неразделимы.
func (s *Storage) ApplyPurchase(ctx context.Context, p models.Purchase) (bool, error) {
	const op = "storage.ApplyPurchase"

	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO ledger_transactions (user_uid, kind, amount, credit_type, external_payment_id, amount_paid_cents)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (external_payment_id) DO NOTHING
			 RETURNING id`,
			p.UserUID, models.KindPurchase, p.Tokens, models.CreditToken, p.ExternalPaymentID, p.AmountPaidCents).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrDuplicateWebhook
			}
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE accounts SET token_balance = token_balance + $2, total_purchased = total_purchased + $2,
			 updated_at = NOW() WHERE user_uid = $1`,
			p.UserUID, p.Tokens)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrAccountNotFound
		}
		return nil
	})
	if errors.Is(err, models.ErrDuplicateWebhook) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// ListTransactions возвращает журнал пользователя, новые записи первыми.
func (s *Storage) ListTransactions(ctx context.Context, userUID string, limit, offset int) ([]*models.LedgerTransaction, error) {
	const op = "storage.ListTransactions"

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_uid, kind, amount, credit_type, external_payment_id, operation_id, amount_paid_cents, created_at
		 FROM ledger_transactions
		 WHERE user_uid = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		userUID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.LedgerTransaction, 0, limit)
	for rows.Next() {
		var (
			t           models.LedgerTransaction
			creditType  sql.NullString
			paymentID   sql.NullString
			operationID sql.NullString
			paidCents   sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.UserUID, &t.Kind, &t.Amount, &creditType, &paymentID,
			&operationID, &paidCents, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if creditType.Valid {
			ct := models.CreditType(creditType.String)
			t.CreditType = &ct
		}
		if paymentID.Valid {
			t.ExternalPaymentID = &paymentID.String
		}
		if operationID.Valid {
			t.OperationID = &operationID.String
		}
		if paidCents.Valid {
			t.AmountPaidCents = &paidCents.Int64
		}
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
