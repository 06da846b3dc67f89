package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/credit-engine/internal/models"
)

// GetOperation возвращает операцию по идентификатору.
func (s *Storage) GetOperation(ctx context.Context, operationID string) (*models.Operation, error) {
	const op = "storage.GetOperation"

	var o models.Operation
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, user_uid, credit_type_used, credit_refunded, status, created_at, updated_at
		 FROM operations WHERE id = $1`, operationID).
		Scan(&o.ID, &o.UserUID, &o.CreditTypeUsed, &o.CreditRefunded, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrOperationNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return &o, nil
}

// UpdateOperationStatus переводит незавершённую операцию в новый статус.
// Возвращает false, если операция уже завершена или не существует.
func (s *Storage) UpdateOperationStatus(ctx context.Context, operationID string, status models.OperationStatus) (bool, error) {
	const op = "storage.UpdateOperationStatus"

	res, err := s.DB.ExecContext(ctx,
		`UPDATE operations SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'processing')`, operationID, status)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}
