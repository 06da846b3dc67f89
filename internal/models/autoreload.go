package models

// AutoReloadSettings пользовательские настройки авто-пополнения.
type AutoReloadSettings struct {
	Enabled         bool   `json:"enabled"`
	Threshold       int    `json:"threshold" validate:"min=1,max=100"`
	Amount          int    `json:"amount" validate:"min=10"`
	PaymentMethodID string `json:"payment_method_id,omitempty" validate:"omitempty,max=128"`
}

// TriggerInfo публикуется в очередь, когда баланс токенов опустился ниже порога.
type TriggerInfo struct {
	UserUID         string `json:"user_uid"`
	Amount          int    `json:"amount"`
	Balance         int    `json:"balance"`
	Threshold       int    `json:"threshold"`
	PaymentMethodID string `json:"payment_method_id,omitempty"`
}

// ReloadFailure состояние предохранителя после неудачной попытки.
// Settled == false значит, что исход попытки уже был учтён раньше.
type ReloadFailure struct {
	Settled      bool
	FailureCount int
	Disabled     bool
}
