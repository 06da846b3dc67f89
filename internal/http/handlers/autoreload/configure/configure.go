// Package configure реализует HTTP-обработчик настроек авто-пополнения.
package configure

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/credit-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/credit-engine/internal/http/response"
	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
	"github.com/magabrotheeeer/credit-engine/internal/models"
)

// Service описывает интерфейс сохранения настроек. Валидация на стороне сервиса.
type Service interface {
	ConfigureAutoReload(ctx context.Context, userUID string, settings models.AutoReloadSettings) error
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
// @Summary Настроить авто-пополнение
// @Description Порог 1..100 токенов, сумма не меньше 10. Включение сбрасывает счётчик неудач.
// @Tags AutoReload
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body models.AutoReloadSettings true "Настройки"
// @Success 200 {object} response.Response{data=models.AutoReloadSettings}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Аккаунт не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /auto-reload [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.autoreload.configure"
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

	var req models.AutoReloadSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.service.ConfigureAutoReload(r.Context(), userUID, req); err != nil {
		log.Warn("failed to configure auto-reload", sl.Err(err))
		response.WriteError(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(req))
}
