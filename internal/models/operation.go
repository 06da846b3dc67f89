package models

import "time"

// OperationStatus состояние оплачиваемой операции.
type OperationStatus string

const (
	OperationPending    OperationStatus = "pending"
	OperationProcessing OperationStatus = "processing"
	OperationCompleted  OperationStatus = "completed"
	OperationFailed     OperationStatus = "failed"
)

// Operation операция, за которую списан кредит. Флаг CreditRefunded
// гарантирует, что возврат выполняется не более одного раза.
type Operation struct {
	ID             string          `json:"id"`
	UserUID        string          `json:"user_uid"`
	CreditTypeUsed CreditType      `json:"credit_type_used"`
	CreditRefunded bool            `json:"credit_refunded"`
	Status         OperationStatus `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Consumption результат успешного списания.
type Consumption struct {
	OperationID string     `json:"operation_id"`
	CreditType  CreditType `json:"credit_type"`
}

// StartResult возвращается клиенту при старте операции.
type StartResult struct {
	OperationID        string     `json:"operation_id"`
	CreditType         CreditType `json:"credit_type"`
	RateLimitRemaining int        `json:"rate_limit_remaining"`
}
