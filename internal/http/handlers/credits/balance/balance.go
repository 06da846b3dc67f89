// Package balance реализует HTTP-обработчик чтения баланса кредитов.
package balance

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/credit-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/credit-engine/internal/http/response"
	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
	"github.com/magabrotheeeer/credit-engine/internal/models"
)

// Service описывает интерфейс чтения баланса.
type Service interface {
	GetBalance(ctx context.Context, userUID string) (models.Balance, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Баланс кредитов
// @Description Возвращает пробные кредиты, токены, их сумму и статус подписки.
// @Tags Credits
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=models.Balance}
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Аккаунт не найден"
// @Failure 503 {object} response.ErrorResponse "Хранилище временно недоступно"
// @Router /credits/balance [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.credits.balance"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := middlewarectx.UserFromContext(r.Context())
	if !ok {
		log.Error("user_uid not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userUID)
	if err != nil {
		log.Error("failed to get balance", sl.Err(err))
		response.WriteError(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(balance))
}
