package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/credit-engine/internal/models"
)

// RecordAttempt добавляет попытку пользователя.
func (s *Storage) RecordAttempt(ctx context.Context, userUID string, at time.Time) error {
	const op = "storage.RecordAttempt"

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO rate_limit_attempts (user_uid, attempted_at) VALUES ($1, $2)`, userUID, at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return nil
}

// AttemptsSince считает попытки пользователя позже since и возвращает самую раннюю из них.
// Чтение без блокировок: устаревшее значение допустимо.
func (s *Storage) AttemptsSince(ctx context.Context, userUID string, since time.Time) (models.AttemptWindow, error) {
	const op = "storage.AttemptsSince"

	var (
		w      models.AttemptWindow
		oldest sql.NullTime
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(attempted_at) FROM rate_limit_attempts
		 WHERE user_uid = $1 AND attempted_at > $2`, userUID, since).Scan(&w.Count, &oldest)
	if err != nil {
		return models.AttemptWindow{}, fmt.Errorf("%s: %w", op, classify(err))
	}
	if oldest.Valid {
		w.Oldest = &oldest.Time
	}
	return w, nil
}

// PruneAttempts удаляет попытки старше before.
func (s *Storage) PruneAttempts(ctx context.Context, before time.Time) (int64, error) {
	const op = "storage.PruneAttempts"

	res, err := s.DB.ExecContext(ctx, `DELETE FROM rate_limit_attempts WHERE attempted_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
