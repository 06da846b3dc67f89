// Package outcome реализует HTTP-обработчик результата операции.
//
// Генерирующая подсистема сообщает, успешно ли завершилась операция. При
// неудаче списанный кредит возвращается ровно один раз.
package outcome

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/credit-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/credit-engine/internal/http/response"
	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
)

// Service описывает интерфейс завершения операции.
type Service interface {
	Finish(ctx context.Context, userUID, operationID string, succeeded bool) (bool, error)
}

// Request тело запроса с результатом.
type Request struct {
	Succeeded *bool `json:"succeeded" validate:"required"`
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Сообщить результат операции
// @Description Фиксирует результат. При неудаче кредит возвращается, повторный вызов возврат не дублирует.
// @Tags Operations
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param id path string true "Идентификатор операции"
// @Param request body Request true "Результат"
// @Success 200 {object} response.Response "Результат принят"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Операция не найдена"
// @Failure 422 {object} response.ErrorResponse "Результат противоречит уже сохранённому"
// @Failure 503 {object} response.ErrorResponse "Хранилище временно недоступно"
// @Router /operations/{id}/outcome [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.operation.outcome"
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

	operationID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(operationID); err != nil {
		log.Warn("invalid operation id", slog.String("id", operationID))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid operation id"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	refunded, err := h.service.Finish(r.Context(), userUID, operationID, *req.Succeeded)
	if err != nil {
		log.Error("failed to finish operation", sl.Err(err))
		response.WriteError(w, r, err)
		return
	}

	log.Info("operation finished", slog.String("operation_id", operationID),
		slog.Bool("succeeded", *req.Succeeded), slog.Bool("refunded", refunded))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"operation_id": operationID,
		"refunded":     refunded,
	}))
}
