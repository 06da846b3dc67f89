// Package repository реализует хранилище кредитов на PostgreSQL: аккаунты с балансами,
// журнал транзакций, операции, попытки rate limit и состояние авто-пополнения.
// Все изменения балансов выполняются внутри одной транзакции с блокировкой строки аккаунта.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/credit-engine/internal/models"
)

const externalPaymentIDKey = "ledger_transactions_external_payment_id_key"

// Options ограничивает время жизни транзакций, изменяющих балансы.
type Options struct {
	TxTimeout        time.Duration
	StatementTimeout time.Duration
	LockTimeout      time.Duration
}

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	DB   *sql.DB
	opts Options
}

// New создаёт подключение к PostgreSQL.
func New(storageConnectionString string, opts Options) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewWithDB(db, opts), nil
}

// NewWithDB оборачивает уже открытое соединение.
func NewWithDB(db *sql.DB, opts Options) *Storage {
	return &Storage{
		DB:   db,
		opts: opts,
	}
}

// CheckDatabaseReady проверяет, что миграции применены.
func CheckDatabaseReady(storage *Storage) error {
	var exists bool
	err := storage.DB.QueryRow(`SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'accounts'
    )`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("required table accounts query error: %w", err)
	}
	if !exists {
		return errors.New("required table accounts missing")
	}
	return nil
}

// inTx выполняет fn в транзакции с ограничением по времени. Любая ошибка fn
// приводит к полному откату, частичных изменений не бывает.
func (s *Storage) inTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if s.opts.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TxTimeout)
		defer cancel()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}

	if s.opts.StatementTimeout > 0 || s.opts.LockTimeout > 0 {
		_, err = tx.ExecContext(ctx,
			`SELECT set_config('statement_timeout', $1, true), set_config('lock_timeout', $2, true)`,
			millis(s.opts.StatementTimeout), millis(s.opts.LockTimeout))
		if err != nil {
			_ = tx.Rollback()
			return classify(err)
		}
	}

	if err = fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}

	if err = tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// millis форматирует таймаут для set_config, 0 отключает ограничение.
func millis(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// classify сводит ошибки драйвера к доменным. Таймауты, дедлоки и потеря
// соединения становятся ErrDatabase: транзакция откатилась целиком и её можно повторить.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", models.ErrDatabase, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgerrcode.QueryCanceled,
		pgErr.Code == pgerrcode.LockNotAvailable,
		pgErr.Code == pgerrcode.DeadlockDetected,
		pgErr.Code == pgerrcode.SerializationFailure,
		pgErr.Code == pgerrcode.AdminShutdown,
		pgerrcode.IsConnectionException(pgErr.Code):
		return fmt.Errorf("%w: %w", models.ErrDatabase, err)
	case pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == externalPaymentIDKey:
		return fmt.Errorf("%w: %w", models.ErrDuplicateWebhook, err)
	case pgErr.Code == pgerrcode.CheckViolation:
		return fmt.Errorf("%w: %w", models.ErrInsufficientCredits, err)
	case pgErr.Code == pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %w", models.ErrAccountNotFound, err)
	}
	return err
}
