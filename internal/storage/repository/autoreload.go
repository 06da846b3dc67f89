package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/credit-engine/internal/models"
)

// ClaimReload атомарно отмечает попытку авто-пополнения и запоминает её
// ключ как ожидающий исхода. Отметка ставится только если авто-пополнение
// включено, предохранитель не сработал и с прошлой попытки прошло не меньше
// throttle. false означает, что попытку уже забрал кто-то другой или она не
// разрешена.
func (s *Storage) ClaimReload(ctx context.Context, userUID string, now time.Time, throttle time.Duration, maxFailures int, key string) (bool, error) {
	const op = "storage.ClaimReload"

	res, err := s.DB.ExecContext(ctx,
		`UPDATE accounts SET last_reload_at = $2, reload_pending_key = $5, updated_at = NOW()
		 WHERE user_uid = $1
		   AND auto_reload_enabled
		   AND auto_reload_failure_count < $4
		   AND (last_reload_at IS NULL OR last_reload_at <= $3)`,
		userUID, now, now.Add(-throttle), maxFailures, key)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

// RecordReloadSuccess сбрасывает счётчик неудач, если попытка key ещё ждёт
// исхода. false значит, что исход этой попытки уже учтён.
func (s *Storage) RecordReloadSuccess(ctx context.Context, userUID, key string) (bool, error) {
	const op = "storage.RecordReloadSuccess"

	res, err := s.DB.ExecContext(ctx,
		`UPDATE accounts SET auto_reload_failure_count = 0, reload_pending_key = NULL, updated_at = NOW()
		 WHERE user_uid = $1 AND reload_pending_key = $2`, userUID, key)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

// RecordReloadFailure увеличивает счётчик неудач и при достижении maxFailures
// выключает авто-пополнение тем же UPDATE. Учитывается только ожидающая
// попытка key, повторный отчёт возвращает Settled == false.
func (s *Storage) RecordReloadFailure(ctx context.Context, userUID, key string, maxFailures int) (models.ReloadFailure, error) {
	const op = "storage.RecordReloadFailure"

	var (
		count   int
		enabled bool
	)
	err := s.DB.QueryRowContext(ctx,
		`UPDATE accounts SET
			auto_reload_failure_count = LEAST(auto_reload_failure_count + 1, $3),
			auto_reload_enabled = CASE WHEN auto_reload_failure_count + 1 >= $3 THEN FALSE ELSE auto_reload_enabled END,
			reload_pending_key = NULL,
			updated_at = NOW()
		 WHERE user_uid = $1 AND reload_pending_key = $2
		 RETURNING auto_reload_failure_count, auto_reload_enabled`,
		userUID, key, maxFailures).Scan(&count, &enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ReloadFailure{}, nil
		}
		return models.ReloadFailure{}, fmt.Errorf("%s: %w", op, classify(err))
	}
	return models.ReloadFailure{Settled: true, FailureCount: count, Disabled: !enabled}, nil
}
