package paymentprovider

import "time"

// Amount денежная сумма в формате провайдера, например "199.00".
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// CreatePaymentRequest запрос на списание с сохранённого платёжного метода.
type CreatePaymentRequest struct {
	Amount          Amount            `json:"amount"`
	PaymentMethodID string            `json:"payment_method_id"`
	Capture         bool              `json:"capture"`
	Description     string            `json:"description,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// CreatePaymentResponse ответ провайдера на создание платежа.
type CreatePaymentResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Paid      bool      `json:"paid"`
	Amount    Amount    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// errorResponse тело ошибки провайдера.
type errorResponse struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Charge параметры авто-пополнения.
type Charge struct {
	UserUID         string
	PaymentMethodID string
	Tokens          int
	AmountCents     int64
	IdempotenceKey  string
}
