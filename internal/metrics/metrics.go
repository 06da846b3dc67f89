// Package metrics содержит счётчики Prometheus движка кредитов.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/magabrotheeeer/credit-engine/internal/models"
)

const namespace = "credit_engine"

// Metrics набор счётчиков. Нулевой *Metrics допустим: все методы ничего не делают.
type Metrics struct {
	consumptions *prometheus.CounterVec
	insufficient prometheus.Counter
	refunds      *prometheus.CounterVec
	rateLimited  prometheus.Counter
	webhooks     *prometheus.CounterVec
	autoReload   *prometheus.CounterVec
}

// New создаёт счётчики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		consumptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumptions_total",
			Help:      "Successful credit consumptions by funding source.",
		}, []string{"credit_type"}),
		insufficient: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insufficient_total",
			Help:      "Consumptions denied for lack of credits.",
		}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refund attempts by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Operations rejected by the rolling-window limiter.",
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Purchase webhooks by result.",
		}, []string{"result"}),
		autoReload: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_reload_total",
			Help:      "Auto-reload decisions and outcomes.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.consumptions, m.insufficient, m.refunds, m.rateLimited, m.webhooks, m.autoReload)
	return m
}

func (m *Metrics) Consumed(ct models.CreditType) {
	if m == nil {
		return
	}
	m.consumptions.WithLabelValues(string(ct)).Inc()
}

func (m *Metrics) Insufficient() {
	if m == nil {
		return
	}
	m.insufficient.Inc()
}

// Refund result: refunded, noop, error.
func (m *Metrics) Refund(result string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// Webhook result: credited, duplicate, error.
func (m *Metrics) Webhook(result string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(result).Inc()
}

// AutoReload result: triggered, throttled, breaker_open, succeeded, failed, disabled.
func (m *Metrics) AutoReload(result string) {
	if m == nil {
		return
	}
	m.autoReload.WithLabelValues(result).Inc()
}
