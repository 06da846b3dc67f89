// Package scheduler содержит фоновую очистку журнала попыток.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/credit-engine/internal/config"
	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
	schedulerservice "github.com/magabrotheeeer/credit-engine/internal/services/scheduler"
	"github.com/magabrotheeeer/credit-engine/internal/storage/repository"
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.SchedulerService
	db               *repository.Storage
	logger           *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения планировщика.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString, repository.Options{
		StatementTimeout: cfg.StatementTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(db); err != nil {
		_ = db.DB.Close()
		return nil, err
	}

	return &App{
		schedulerService: schedulerservice.NewSchedulerService(db, logger, cfg.PruneInterval, cfg.PruneRetention),
		db:               db,
		logger:           logger,
	}, nil
}

// Run запускает планировщик.
func (a *App) Run(ctx context.Context) error {
	a.schedulerService.PruneRateLimitAttempts(ctx)

	a.logger.Info("shutting down scheduler service")
	if err := a.db.DB.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
	return nil
}
