// Package transactions реализует HTTP-обработчик журнала транзакций пользователя.
package transactions

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/credit-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/credit-engine/internal/http/response"
	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
	"github.com/magabrotheeeer/credit-engine/internal/models"
)

// Service описывает интерфейс чтения журнала.
type Service interface {
	ListTransactions(ctx context.Context, userUID string, limit, offset int) ([]*models.LedgerTransaction, error)
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
// @Summary Журнал транзакций
// @Description Возвращает записи журнала пользователя, новые первыми.
// @Tags Credits
// @Produce  json
// @Security BearerAuth
// @Param limit query int false "Размер страницы (по умолчанию 50, максимум 200)"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response{data=[]models.LedgerTransaction}
// @Failure 400 {object} response.ErrorResponse "Некорректные параметры пагинации"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 503 {object} response.ErrorResponse "Хранилище временно недоступно"
// @Router /credits/transactions [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.credits.transactions"
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

	limit, err := queryInt(r, "limit")
	if err != nil {
		log.Warn("invalid limit", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid limit"))
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		log.Warn("invalid offset", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid offset"))
		return
	}

	txs, err := h.service.ListTransactions(r.Context(), userUID, limit, offset)
	if err != nil {
		log.Error("failed to list transactions", sl.Err(err))
		response.WriteError(w, r, err)
		return
	}
	if txs == nil {
		txs = []*models.LedgerTransaction{}
	}
	render.JSON(w, r, response.OKWithData(txs))
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
