// Package webhook принимает уведомления платёжного провайдера.
//
// Подпись X-Api-Signature проверяется до разбора тела. Подтверждённая покупка
// зачисляется ровно один раз: повторная доставка того же платежа отвечает 200,
// чтобы провайдер прекратил повторы. Исход списания авто-пополнения
// (payment.succeeded или payment.canceled с reload_key в метаданных)
// учитывается предохранителем тоже один раз.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/credit-engine/internal/http/response"
	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
	"github.com/magabrotheeeer/credit-engine/internal/models"
	"github.com/magabrotheeeer/credit-engine/internal/paymentprovider"
)

const (
	EventPaymentSucceeded    = "payment.succeeded"
	EventPaymentCanceled     = "payment.canceled"
	EventSubscriptionUpdated = "subscription.updated"

	maxBodyBytes = 1 << 20
)

// Service описывает операции движка, которые запускают уведомления.
type Service interface {
	ApplyPurchaseWebhook(ctx context.Context, p models.Purchase) (bool, error)
	UpdateSubscription(ctx context.Context, upd models.SubscriptionUpdate) error
}

// Reloads учитывает подтверждённый исход попытки авто-пополнения.
type Reloads interface {
	RecordReloadSuccess(ctx context.Context, userUID, key string) (bool, error)
	RecordReloadFailure(ctx context.Context, userUID, key string) (models.ReloadFailure, error)
}

type Handler struct {
	log           *slog.Logger
	service       Service
	reloads       Reloads
	webhookSecret string
}

// New создает Handler. reloads может быть nil, тогда исходы
// авто-пополнений не учитываются.
func New(log *slog.Logger, service Service, reloads Reloads, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		reloads:       reloads,
		webhookSecret: secret,
	}
}

// Payload тело уведомления провайдера.
type Payload struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount struct {
			Value    string `json:"value"` // "100.00"
			Currency string `json:"currency"`
		} `json:"amount"`
		Metadata map[string]string `json:"metadata"`
	} `json:"object"`
}

// Sign считает подпись тела так же, как провайдер.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (h *Handler) verifySignature(body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(h.webhookSecret, body)), []byte(signature))
}

// ServeHTTP godoc
// @Summary Вебхук платёжного провайдера
// @Description Обрабатывает payment.succeeded, payment.canceled и subscription.updated. Прочие события игнорируются.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param X-Api-Signature header string true "HMAC-SHA256 тела в base64"
// @Success 200 {object} response.Response "Событие обработано или уже было обработано"
// @Failure 400 {object} response.ErrorResponse "Некорректное тело"
// @Failure 401 {object} response.ErrorResponse "Неверная подпись"
// @Failure 422 {object} response.ErrorResponse "Некорректные метаданные"
// @Failure 503 {object} response.ErrorResponse "Хранилище временно недоступно, провайдер повторит"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	signature := r.Header.Get("X-Api-Signature")
	if signature == "" || !h.verifySignature(body, signature) {
		log.Warn("invalid or missing webhook signature")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log = log.With(slog.String("event", payload.Event), slog.String("payment_id", payload.Object.ID))

	switch strings.ToLower(payload.Event) {
	case EventPaymentSucceeded:
		purchase, err := purchaseFromPayload(&payload)
		if err != nil {
			log.Warn("invalid purchase payload", sl.Err(err))
			response.WriteError(w, r, err)
			return
		}
		credited, err := h.service.ApplyPurchaseWebhook(r.Context(), purchase)
		if err != nil {
			log.Error("failed to apply purchase", sl.Err(err))
			response.WriteError(w, r, err)
			return
		}
		if key, ok := h.reloadKey(&payload); ok {
			settled, err := h.reloads.RecordReloadSuccess(r.Context(), purchase.UserUID, key)
			if err != nil {
				log.Error("failed to record auto-reload success", sl.Err(err))
				response.WriteError(w, r, err)
				return
			}
			log.Info("auto-reload confirmed", slog.Bool("settled", settled))
		}
		log.Info("purchase webhook processed", slog.Bool("credited", credited))
		render.JSON(w, r, response.OKWithData(map[string]any{"credited": credited}))
	case EventPaymentCanceled:
		key, ok := h.reloadKey(&payload)
		if !ok {
			log.Info("ignored canceled payment")
			render.JSON(w, r, response.OKWithData(map[string]any{"ignored": true}))
			return
		}
		res, err := h.reloads.RecordReloadFailure(r.Context(), payload.Object.Metadata["user_uid"], key)
		if err != nil {
			log.Error("failed to record auto-reload failure", sl.Err(err))
			response.WriteError(w, r, err)
			return
		}
		log.Info("auto-reload canceled by provider",
			slog.Bool("settled", res.Settled), slog.Bool("disabled", res.Disabled))
		render.JSON(w, r, response.OKWithData(map[string]any{"settled": res.Settled}))
	case EventSubscriptionUpdated:
		upd, err := subscriptionFromPayload(&payload)
		if err != nil {
			log.Warn("invalid subscription payload", sl.Err(err))
			response.WriteError(w, r, err)
			return
		}
		if err := h.service.UpdateSubscription(r.Context(), upd); err != nil {
			log.Error("failed to update subscription", sl.Err(err))
			response.WriteError(w, r, err)
			return
		}
		log.Info("subscription webhook processed", slog.String("status", string(upd.Status)))
		render.JSON(w, r, response.OKWithData(map[string]any{"updated": true}))
	default:
		log.Info("ignored webhook event")
		render.JSON(w, r, response.OKWithData(map[string]any{"ignored": true}))
	}
}

// reloadKey возвращает ключ попытки, если платёж создан авто-пополнением.
func (h *Handler) reloadKey(p *Payload) (string, bool) {
	meta := p.Object.Metadata
	if h.reloads == nil || meta["source"] != paymentprovider.SourceAutoReload || meta["reload_key"] == "" {
		return "", false
	}
	return meta["reload_key"], true
}

func purchaseFromPayload(p *Payload) (models.Purchase, error) {
	meta := p.Object.Metadata
	tokens, err := strconv.Atoi(meta["tokens"])
	if err != nil {
		return models.Purchase{}, &models.ValidationError{Field: "metadata.tokens", Reason: "must be an integer"}
	}
	cents, err := ParseCents(p.Object.Amount.Value)
	if err != nil {
		return models.Purchase{}, &models.ValidationError{Field: "amount.value", Reason: err.Error()}
	}
	return models.Purchase{
		ExternalPaymentID: p.Object.ID,
		UserUID:           meta["user_uid"],
		Tokens:            tokens,
		AmountPaidCents:   cents,
	}, nil
}

func subscriptionFromPayload(p *Payload) (models.SubscriptionUpdate, error) {
	meta := p.Object.Metadata
	upd := models.SubscriptionUpdate{
		UserUID: meta["user_uid"],
		Status:  models.SubscriptionStatus(meta["status"]),
	}
	if raw := meta["period_end"]; raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return models.SubscriptionUpdate{}, &models.ValidationError{Field: "metadata.period_end", Reason: "must be RFC3339"}
		}
		upd.PeriodEnd = &end
	}
	return upd, nil
}

// ParseCents переводит сумму провайдера в копейки: "199.90" -> 19990.
// Пустая сумма считается нулевой.
func ParseCents(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative amount %q", value)
	}
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than two decimals", value)
	}
	return cents.IntPart(), nil
}
