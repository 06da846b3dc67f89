// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON-ответов HTTP-обработчиков и перевода ошибок движка
// кредитов в HTTP-статусы.
package response

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/credit-engine/internal/models"
)

// Response описывает стандартную структуру JSON-ответа сервера.
// Поле Status: статус запроса ("OK" или "Error").
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// ErrorResponse структура ошибки для Swagger-документации.
type ErrorResponse struct {
	Status            string `json:"status" example:"Error"`
	Error             string `json:"error" example:"invalid request body"`
	Field             string `json:"field,omitempty" example:"threshold"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty" example:"42"`
}

const (
	StatusOK    = "OK"
	StatusError = "Error"
)

// OKWithData возвращает успешный Response с переданными данными.
func OKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает ответ с ошибкой и переданным сообщением.
func Error(msg string) ErrorResponse {
	return ErrorResponse{
		Status: StatusError,
		Error:  msg,
	}
}

// ValidationError формирует ответ на основе ошибок валидатора.
// Нарушения объединяются через запятую.
func ValidationError(errs validator.ValidationErrors) ErrorResponse {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "uuid":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s can contain only uuid", err.Field()))
		case "min", "max", "gte", "lte":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must satisfy %s=%s", err.Field(), err.ActualTag(), err.Param()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	resp := Error(strings.Join(errsMsgs, ", "))
	if len(errs) > 0 {
		resp.Field = errs[0].Field()
	}
	return resp
}

// FromError переводит ошибку движка в HTTP-статус и тело ответа.
func FromError(err error) (int, ErrorResponse) {
	var (
		rlErr  *models.RateLimitError
		valErr *models.ValidationError
	)
	switch {
	case errors.As(err, &rlErr):
		resp := Error("rate limit exceeded")
		resp.RetryAfterSeconds = rlErr.RetryAfterSeconds
		return http.StatusTooManyRequests, resp
	case errors.As(err, &valErr):
		resp := Error(valErr.Error())
		resp.Field = valErr.Field
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, models.ErrInsufficientCredits):
		return http.StatusPaymentRequired, Error("insufficient credits")
	case errors.Is(err, models.ErrAccountNotFound):
		return http.StatusNotFound, Error("account not found")
	case errors.Is(err, models.ErrOperationNotFound):
		return http.StatusNotFound, Error("operation not found")
	case errors.Is(err, models.ErrAutoReloadDisabled):
		return http.StatusConflict, Error("auto-reload disabled")
	case errors.Is(err, models.ErrDatabase):
		return http.StatusServiceUnavailable, Error("temporarily unavailable, retry later")
	}
	return http.StatusInternalServerError, Error("internal error")
}

// WriteError пишет ответ для ошибки движка. Для 429 выставляется Retry-After.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := FromError(err)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfterSeconds))
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}
