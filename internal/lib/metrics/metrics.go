// Package metrics содержит счетчики Prometheus для HTTP и операций с учётными записями.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/magabrotheeeer/account-service/internal/models"
)

const namespace = "accounts"

// Metrics набор метрик сервиса. Методы безопасны для nil-получателя.
type Metrics struct {
	operations    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New регистрирует метрики в reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Account operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Emails handed to the notification sender by kind and outcome.",
		}, []string{"kind", "outcome"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Operation учитывает результат операции над учётной записью.
func (m *Metrics) Operation(name string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(name, Outcome(err)).Inc()
}

// Notification учитывает попытку отправки письма.
func (m *Metrics) Notification(kind models.EmailKind, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.notifications.WithLabelValues(string(kind), outcome).Inc()
}

// HTTPRequest учитывает обработанный HTTP запрос.
func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Outcome переводит ошибку сервиса в значение метки.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrValidation):
		return "invalid"
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrVersionConflict):
		return "conflict"
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalidToken):
		return "not_found"
	case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrEmailNotVerified):
		return "denied"
	case errors.Is(err, models.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
