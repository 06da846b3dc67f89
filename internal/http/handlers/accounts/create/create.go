// Package create реализует HTTP-обработчик заведения аккаунта кредитов.
//
// Аккаунт создаётся для пользователя из JWT с пробными кредитами. Повторный
// вызов не меняет существующий аккаунт и отвечает 200 вместо 201.
package create

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/credit-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/credit-engine/internal/http/response"
	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
)

// Service описывает интерфейс создания аккаунта.
type Service interface {
	CreateAccount(ctx context.Context, userUID string) (bool, error)
}

// Handler управляет HTTP-запросами на создание аккаунта.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Создать аккаунт кредитов
// @Description Заводит аккаунт текущего пользователя с пробными кредитами. Идемпотентен.
// @Tags Accounts
// @Produce  json
// @Security BearerAuth
// @Success 201 {object} response.Response "Аккаунт создан"
// @Success 200 {object} response.Response "Аккаунт уже существует"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Некорректный идентификатор пользователя"
// @Failure 503 {object} response.ErrorResponse "Хранилище временно недоступно"
// @Router /accounts [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.accounts.create"
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

	created, err := h.service.CreateAccount(r.Context(), userUID)
	if err != nil {
		log.Error("failed to create account", sl.Err(err))
		response.WriteError(w, r, err)
		return
	}

	if created {
		render.Status(r, http.StatusCreated)
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"user_uid": userUID,
		"created":  created,
	}))
}
