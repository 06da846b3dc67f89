package models

import "time"

// RateLimitStatus ответ проверки скользящего окна.
type RateLimitStatus struct {
	Allowed           bool `json:"allowed"`
	Remaining         int  `json:"remaining"`
	RetryAfterSeconds int  `json:"retry_after_seconds"`
}

// AttemptWindow агрегат попыток пользователя внутри текущего окна.
type AttemptWindow struct {
	Count  int
	Oldest *time.Time
}
