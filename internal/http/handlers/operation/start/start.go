// Package start реализует HTTP-обработчик старта оплачиваемой операции.
//
// Обработчик проверяет лимит попыток, списывает один кредит и возвращает
// идентификатор операции, по которому позже сообщается её результат.
package start

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

// Service описывает интерфейс старта операции.
type Service interface {
	Start(ctx context.Context, userUID string) (models.StartResult, error)
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
// @Summary Начать операцию
// @Description Списывает кредит по приоритету подписка, пробные, токены и регистрирует операцию.
// @Tags Operations
// @Produce  json
// @Security BearerAuth
// @Success 201 {object} response.Response{data=models.StartResult}
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 402 {object} response.ErrorResponse "Недостаточно кредитов"
// @Failure 404 {object} response.ErrorResponse "Аккаунт не найден"
// @Failure 429 {object} response.ErrorResponse "Превышен лимит операций"
// @Failure 503 {object} response.ErrorResponse "Хранилище временно недоступно"
// @Router /operations [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.operation.start"
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

	res, err := h.service.Start(r.Context(), userUID)
	if err != nil {
		log.Info("operation rejected", sl.User(userUID), sl.Err(err))
		response.WriteError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(res))
}
