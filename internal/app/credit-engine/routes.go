// Package creditengine собирает HTTP API движка кредитов.
package creditengine

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/credit-engine/internal/config"
	"github.com/magabrotheeeer/credit-engine/internal/http/handlers/accounts/create"
	"github.com/magabrotheeeer/credit-engine/internal/http/handlers/autoreload/configure"
	"github.com/magabrotheeeer/credit-engine/internal/http/handlers/credits/balance"
	"github.com/magabrotheeeer/credit-engine/internal/http/handlers/credits/transactions"
	"github.com/magabrotheeeer/credit-engine/internal/http/handlers/health"
	"github.com/magabrotheeeer/credit-engine/internal/http/handlers/operation/outcome"
	"github.com/magabrotheeeer/credit-engine/internal/http/handlers/operation/start"
	"github.com/magabrotheeeer/credit-engine/internal/http/handlers/payment/webhook"
	"github.com/magabrotheeeer/credit-engine/internal/http/handlers/ratelimit/status"
	"github.com/magabrotheeeer/credit-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/credit-engine/internal/services/credits"
	"github.com/magabrotheeeer/credit-engine/internal/services/operation"
	"github.com/magabrotheeeer/credit-engine/internal/services/ratelimit"
)

// Deps зависимости обработчиков.
type Deps struct {
	Credits     *credits.Service
	Operations  *operation.Service
	Reloads     webhook.Reloads
	Limiter     *ratelimit.Limiter
	TokenParser middlewarectx.TokenParser
	DB          health.Pinger
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, deps Deps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		middlewarectx.RateLimitMiddleware(logger, cfg.APILimiter.RPS, cfg.APILimiter.Burst),
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.New(logger, deps.DB).ServeHTTP)
		// Webhook платёжного провайдера, подлинность проверяется подписью
		r.Post("/payments/webhook", webhook.New(logger, deps.Credits, deps.Reloads, cfg.WebhookSecret).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(deps.TokenParser, logger))
			r.Post("/accounts", create.New(logger, deps.Credits).ServeHTTP)
			r.Get("/credits/balance", balance.New(logger, deps.Credits).ServeHTTP)
			r.Get("/credits/transactions", transactions.New(logger, deps.Credits).ServeHTTP)
			r.Get("/credits/rate-limit", status.New(logger, deps.Limiter).ServeHTTP)
			r.Post("/operations", start.New(logger, deps.Operations).ServeHTTP)
			r.Post("/operations/{id}/outcome", outcome.New(logger, deps.Operations).ServeHTTP)
			r.Put("/auto-reload", configure.New(logger, deps.Credits).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
