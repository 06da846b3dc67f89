// Package reloadworker исполняет авто-пополнения из очереди RabbitMQ.
package reloadworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/credit-engine/internal/config"
	"github.com/magabrotheeeer/credit-engine/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
	"github.com/magabrotheeeer/credit-engine/internal/metrics"
	"github.com/magabrotheeeer/credit-engine/internal/paymentprovider"
	"github.com/magabrotheeeer/credit-engine/internal/services/autoreload"
	"github.com/magabrotheeeer/credit-engine/internal/services/reload"
	"github.com/magabrotheeeer/credit-engine/internal/storage/repository"
)

// App потребитель очереди авто-пополнений.
type App struct {
	processor *reload.Processor
	db        *repository.Storage
	conn      *amqp.Connection
	ch        *amqp.Channel
	queue     string
	workers   int
	metrics   *http.Server
	logger    *slog.Logger
}

// metricsRouter отдаёт /metrics воркера, который сам HTTP API не обслуживает.
func metricsRouter(g prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return r
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

// New создает новый экземпляр приложения.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.ReloadTopology(cfg.RabbitMQ))
	if err != nil {
		closeResources(nil, conn, nil, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString, repository.Options{
		TxTimeout:        cfg.TxTimeout,
		StatementTimeout: cfg.StatementTimeout,
		LockTimeout:      cfg.LockTimeout,
	})
	if err != nil {
		closeResources(ch, conn, nil, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(db); err != nil {
		closeResources(ch, conn, db, logger)
		return nil, err
	}

	reloadService := autoreload.New(db, metrics.New(prometheus.DefaultRegisterer), logger, autoreload.Options{
		Throttle:    cfg.Throttle,
		MaxFailures: cfg.MaxFailures,
	})
	processor := reload.NewProcessor(reloadService, paymentprovider.NewClient(cfg.PaymentProvider), cfg.TokenPriceCents, logger)

	return &App{
		processor: processor,
		db:        db,
		conn:      conn,
		ch:        ch,
		queue:     cfg.ReloadQueue,
		workers:   cfg.Prefetch,
		metrics: &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           metricsRouter(prometheus.DefaultGatherer),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, db *repository.Storage, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if db != nil {
		if err := db.DB.Close(); err != nil {
			logger.Error("failed to close storage", sl.Err(err))
		}
	}
}

// Run читает очередь до отмены ctx. Перед закрытием соединений дожидается
// обработчиков, которые уже взяли сообщение.
func (a *App) Run(ctx context.Context) error {
	consumeCtx, stopConsume := context.WithCancel(ctx)
	defer stopConsume()

	wait, err := rabbitmq.ConsumerMessage(consumeCtx, a.logger, a.ch, a.queue, a.workers, a.processor.Handle)
	if err != nil {
		closeResources(a.ch, a.conn, a.db, a.logger)
		return err
	}
	a.logger.Info("reload worker consuming", slog.String("queue", a.queue), slog.Int("workers", a.workers))

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("metrics server starting on", slog.String("address", a.metrics.Addr))
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		a.logger.Error("metrics server failed", sl.Err(runErr))
	}

	a.logger.Info("shutting down reload worker")
	stopConsume()
	wait()

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metrics.Shutdown(timeoutCtx); err != nil {
		a.logger.Error("failed to stop metrics server", sl.Err(err))
	}
	closeResources(a.ch, a.conn, a.db, a.logger)
	return runErr
}
