// Package models содержит доменные структуры движка кредитов: аккаунт пользователя
// с балансами, журнал транзакций, операции, попытки rate limit и параметры авто-пополнения.
package models

import "time"

// SubscriptionStatus описывает состояние подписки пользователя.
type SubscriptionStatus string

const (
	SubscriptionInactive  SubscriptionStatus = "inactive"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Valid сообщает, является ли статус одним из известных значений.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionInactive, SubscriptionActive, SubscriptionPastDue, SubscriptionCancelled:
		return true
	}
	return false
}

// Authorizing сообщает, даёт ли статус право на операции без списания.
// past_due считается льготным периодом.
func (s SubscriptionStatus) Authorizing() bool {
	return s == SubscriptionActive || s == SubscriptionPastDue
}

// Account хранит балансы и настройки авто-пополнения одного пользователя.
// trial_remaining и token_balance никогда не бывают отрицательными,
// это гарантируется протоколом списания и check-ограничениями в БД.
type Account struct {
	UserUID                string             `json:"user_uid"`
	TrialRemaining         int                `json:"trial_remaining"`
	TrialUsed              int                `json:"trial_used"`
	TokenBalance           int                `json:"token_balance"`
	TotalPurchased         int                `json:"total_purchased"`
	TotalSpent             int                `json:"total_spent"`
	SubscriptionStatus     SubscriptionStatus `json:"subscription_status"`
	SubscriptionPeriodEnd  *time.Time         `json:"subscription_period_end,omitempty"`
	AutoReloadEnabled      bool               `json:"auto_reload_enabled"`
	AutoReloadThreshold    int                `json:"auto_reload_threshold"`
	AutoReloadAmount       int                `json:"auto_reload_amount"`
	AutoReloadFailureCount int                `json:"auto_reload_failure_count"`
	ReloadPaymentMethodID  string             `json:"reload_payment_method_id,omitempty"`
	LastReloadAt           *time.Time         `json:"last_reload_at,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// Balance сводка доступных кредитов для клиента.
type Balance struct {
	TrialRemaining     int                `json:"trial_remaining"`
	TokenBalance       int                `json:"token_balance"`
	TotalAvailable     int                `json:"total_available"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
}

// BalanceOf строит Balance по состоянию аккаунта.
func BalanceOf(a *Account) Balance {
	return Balance{
		TrialRemaining:     a.TrialRemaining,
		TokenBalance:       a.TokenBalance,
		TotalAvailable:     a.TrialRemaining + a.TokenBalance,
		SubscriptionStatus: a.SubscriptionStatus,
	}
}

// SubscriptionUpdate применяется при событиях подписки от платёжного провайдера.
type SubscriptionUpdate struct {
	UserUID   string
	Status    SubscriptionStatus
	PeriodEnd *time.Time
}
