package metrics

import (
	"time"

	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TokenizationMetrics интерфейс для метрик токенизации и способов оплаты
type TokenizationMetrics interface {
	IncTokenRequest(outcome string)
	ObserveTokenLatency(d time.Duration)
	IncMethodChange(operation string)
}

type tokenizationMetrics struct {
	log           *logger.Logger
	tokenRequests *prometheus.CounterVec
	tokenLatency  prometheus.Histogram
	methodChanges *prometheus.CounterVec
}

// NewTokenizationMetrics создает новые метрики токенизации
func NewTokenizationMetrics(registry *prometheus.Registry, log *logger.Logger) TokenizationMetrics {
	tokenRequests := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenization_requests_total",
			Help: "The total number of card tokenization requests by outcome",
		},
		[]string{"outcome"},
	)

	tokenLatency := promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tokenization_gateway_seconds",
			Help:    "Gateway round trip time for tokenization",
			Buckets: prometheus.DefBuckets,
		},
	)

	methodChanges := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_method_changes_total",
			Help: "The total number of stored payment method changes",
		},
		[]string{"operation"},
	)

	return &tokenizationMetrics{
		log:           log,
		tokenRequests: tokenRequests,
		tokenLatency:  tokenLatency,
		methodChanges: methodChanges,
	}
}

// IncTokenRequest увеличивает счетчик запросов токенизации
func (m *tokenizationMetrics) IncTokenRequest(outcome string) {
	m.tokenRequests.WithLabelValues(outcome).Inc()
}

// ObserveTokenLatency записывает время ответа шлюза
func (m *tokenizationMetrics) ObserveTokenLatency(d time.Duration) {
	m.tokenLatency.Observe(d.Seconds())
}

// IncMethodChange увеличивает счетчик изменений способов оплаты
func (m *tokenizationMetrics) IncMethodChange(operation string) {
	m.methodChanges.WithLabelValues(operation).Inc()
}
