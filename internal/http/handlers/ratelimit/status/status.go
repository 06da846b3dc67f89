// Package status реализует HTTP-обработчик состояния лимита операций пользователя.
package status

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

// Limiter описывает проверку лимита без записи попытки.
type Limiter interface {
	Check(ctx context.Context, userUID string) (models.RateLimitStatus, error)
}

type Handler struct {
	log     *slog.Logger
	limiter Limiter
}

func New(log *slog.Logger, limiter Limiter) *Handler {
	return &Handler{
		log:     log,
		limiter: limiter,
	}
}

// ServeHTTP godoc
// @Summary Состояние лимита операций
// @Description Сколько операций ещё можно начать в текущем окне и через сколько секунд откроется следующая.
// @Tags Credits
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=models.RateLimitStatus}
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 503 {object} response.ErrorResponse "Хранилище временно недоступно"
// @Router /credits/rate-limit [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.ratelimit.status"
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

	st, err := h.limiter.Check(r.Context(), userUID)
	if err != nil {
		log.Error("failed to check rate limit", sl.Err(err))
		response.WriteError(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(st))
}
