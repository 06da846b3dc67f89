package models

import "time"

// CreditType источник, из которого оплачена операция.
type CreditType string

const (
	CreditTrial        CreditType = "trial"
	CreditToken        CreditType = "token"
	CreditSubscription CreditType = "subscription"
)

// TransactionKind вид записи в журнале.
type TransactionKind string

const (
	KindPurchase   TransactionKind = "purchase"
	KindGeneration TransactionKind = "generation"
	KindRefund     TransactionKind = "refund"
)

// LedgerTransaction неизменяемая запись журнала, создаётся при каждом изменении баланса.
type LedgerTransaction struct {
	ID                int64           `json:"id"`
	UserUID           string          `json:"user_uid"`
	Kind              TransactionKind `json:"kind"`
	Amount            int             `json:"amount"`
	CreditType        *CreditType     `json:"credit_type,omitempty"`
	ExternalPaymentID *string         `json:"external_payment_id,omitempty"`
	OperationID       *string         `json:"operation_id,omitempty"`
	AmountPaidCents   *int64          `json:"amount_paid_cents,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ResolveFunc выбирает источник оплаты по заблокированному состоянию аккаунта.
// Второе значение false означает отказ.
type ResolveFunc func(a *Account) (CreditType, bool)

// Purchase подтверждённая провайдером покупка токенов.
type Purchase struct {
	ExternalPaymentID string
	UserUID           string
	Tokens            int
	AmountPaidCents   int64
}
