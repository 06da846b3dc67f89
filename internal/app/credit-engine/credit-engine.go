package creditengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/credit-engine/internal/cache"
	"github.com/magabrotheeeer/credit-engine/internal/config"
	"github.com/magabrotheeeer/credit-engine/internal/lib/jwt"
	"github.com/magabrotheeeer/credit-engine/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
	"github.com/magabrotheeeer/credit-engine/internal/metrics"
	"github.com/magabrotheeeer/credit-engine/internal/migrations"
	"github.com/magabrotheeeer/credit-engine/internal/services/autoreload"
	"github.com/magabrotheeeer/credit-engine/internal/services/credits"
	"github.com/magabrotheeeer/credit-engine/internal/services/operation"
	"github.com/magabrotheeeer/credit-engine/internal/services/ratelimit"
	"github.com/magabrotheeeer/credit-engine/internal/storage/repository"
)

// App HTTP API движка кредитов.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New поднимает хранилище, кеш, публикацию в очередь и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString, repository.Options{
		TxTimeout:        cfg.TxTimeout,
		StatementTimeout: cfg.StatementTimeout,
		LockTimeout:      cfg.LockTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.DB.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	a := &App{logger: logger, db: db}

	// Без Redis баланс читается из базы напрямую.
	var balanceCache credits.Cache
	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		logger.Warn("cache not initialized, balance reads go to storage", sl.Err(err))
	} else {
		a.cache = cacheRedis
		balanceCache = cacheRedis
	}

	a.conn, err = rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	a.ch, err = rabbitmq.SetupChannel(a.conn, rabbitmq.ReloadTopology(cfg.RabbitMQ))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}
	publisher := rabbitmq.NewPublisher(a.ch, cfg.Exchange, cfg.ReloadRoutingKey)

	m := metrics.New(prometheus.DefaultRegisterer)

	creditService := credits.New(db, balanceCache, m, logger, credits.Options{
		TrialCredits:    cfg.TrialCredits,
		BalanceCacheTTL: cfg.BalanceCacheTTL,
	})
	limiter := ratelimit.New(db, cfg.Window, cfg.MaxRequests, logger)
	reloadService := autoreload.New(db, m, logger, autoreload.Options{
		Throttle:    cfg.Throttle,
		MaxFailures: cfg.MaxFailures,
	})
	operationService := operation.New(limiter, creditService, reloadService, publisher, db, m, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, Deps{
		Credits:     creditService,
		Operations:  operationService,
		Reloads:     reloadService,
		Limiter:     limiter,
		TokenParser: jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL),
		DB:          db.DB,
	})

	a.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return a, nil
}

// Run обслуживает запросы до отмены ctx, затем останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close cache", sl.Err(err))
		}
	}
	if err := a.db.DB.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
