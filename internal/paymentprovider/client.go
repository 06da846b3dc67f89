// Package paymentprovider клиент платёжного провайдера для списаний
// с сохранённого платёжного метода при авто-пополнении.
package paymentprovider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/credit-engine/internal/config"
)

// Статусы платежа у провайдера.
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

// SourceAutoReload значение metadata.source у списаний авто-пополнения.
const SourceAutoReload = "auto_reload"

// ErrPaymentCanceled провайдер отклонил списание.
var ErrPaymentCanceled = errors.New("payment canceled by provider")

// ProviderError ответ провайдера с кодом ошибки.
type ProviderError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider responded %d: %s %s", e.StatusCode, e.Code, e.Description)
}

// Client HTTP-клиент провайдера.
type Client struct {
	shopID     string
	secretKey  string
	apiURL     string
	currency   string
	httpClient *http.Client
}

// NewClient создаёт клиент по настройкам провайдера.
func NewClient(cfg config.PaymentProvider) *Client {
	return &Client{
		shopID:     cfg.ShopID,
		secretKey:  cfg.SecretKey,
		apiURL:     cfg.APIURL,
		currency:   cfg.Currency,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// FormatCents переводит копейки в строку суммы провайдера: 19900 -> "199.00".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, &buf)
	if err != nil {
		return nil, err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.shopID + ":" + c.secretKey))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// CreatePayment создаёт платёж. idempotenceKey защищает от двойного списания
// при повторе запроса.
func (c *Client) CreatePayment(ctx context.Context, reqParams CreatePaymentRequest, idempotenceKey string) (*CreatePaymentResponse, error) {
	const op = "paymentprovider.CreatePayment"

	req, err := c.newRequest(ctx, http.MethodPost, "/payments", reqParams)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Idempotence-Key", idempotenceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		perr := &ProviderError{StatusCode: resp.StatusCode}
		var body errorResponse
		if raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil {
			if json.Unmarshal(raw, &body) == nil {
				perr.Code = body.Code
				perr.Description = body.Description
			}
		}
		return nil, fmt.Errorf("%s: %w", op, perr)
	}

	var paymentResp CreatePaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&paymentResp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &paymentResp, nil
}

// ChargeSavedMethod списывает сумму авто-пополнения с сохранённого метода.
// Токены зачисляются позже вебхуком payment.succeeded по метаданным платежа,
// reload_key в метаданных связывает вебхук с попыткой авто-пополнения.
func (c *Client) ChargeSavedMethod(ctx context.Context, charge Charge) (*CreatePaymentResponse, error) {
	const op = "paymentprovider.ChargeSavedMethod"

	if charge.PaymentMethodID == "" {
		return nil, fmt.Errorf("%s: no saved payment method", op)
	}
	resp, err := c.CreatePayment(ctx, CreatePaymentRequest{
		Amount: Amount{
			Value:    FormatCents(charge.AmountCents),
			Currency: c.currency,
		},
		PaymentMethodID: charge.PaymentMethodID,
		Capture:         true,
		Description:     fmt.Sprintf("Auto-reload of %d tokens", charge.Tokens),
		Metadata: map[string]string{
			"user_uid":   charge.UserUID,
			"tokens":     strconv.Itoa(charge.Tokens),
			"source":     SourceAutoReload,
			"reload_key": charge.IdempotenceKey,
		},
	}, charge.IdempotenceKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.Status == StatusCanceled {
		return resp, fmt.Errorf("%s: payment %s: %w", op, resp.ID, ErrPaymentCanceled)
	}
	return resp, nil
}
