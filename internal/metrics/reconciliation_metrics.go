package metrics

import (
	"time"

	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReconciliationMetrics интерфейс для метрик обработки уведомлений шлюза
type ReconciliationMetrics interface {
	IncNotification(source, outcome string)
	IncSignatureMismatch(source string)
	IncFlagged(reason string)
	ObserveProcessing(d time.Duration)
}

type reconciliationMetrics struct {
	log                *logger.Logger
	notifications      *prometheus.CounterVec
	signatureMismatch  *prometheus.CounterVec
	flagged            *prometheus.CounterVec
	processingDuration prometheus.Histogram
}

// NewReconciliationMetrics создает новые метрики сверки
func NewReconciliationMetrics(registry *prometheus.Registry, log *logger.Logger) ReconciliationMetrics {
	notifications := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_notifications_total",
			Help: "The total number of processed gateway notifications by outcome",
		},
		[]string{"source", "outcome"},
	)

	signatureMismatch := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_signature_mismatch_total",
			Help: "The total number of gateway notifications rejected for a bad signature",
		},
		[]string{"source"},
	)

	flagged := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reviews_flagged_total",
			Help: "The total number of payments flagged for manual review",
		},
		[]string{"reason"},
	)

	processingDuration := promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_notification_processing_seconds",
			Help:    "Time spent applying a gateway notification",
			Buckets: prometheus.DefBuckets,
		},
	)

	return &reconciliationMetrics{
		log:                log,
		notifications:      notifications,
		signatureMismatch:  signatureMismatch,
		flagged:            flagged,
		processingDuration: processingDuration,
	}
}

// IncNotification увеличивает счетчик уведомлений
func (m *reconciliationMetrics) IncNotification(source, outcome string) {
	m.notifications.WithLabelValues(source, outcome).Inc()
}

// IncSignatureMismatch увеличивает счетчик неверных подписей
func (m *reconciliationMetrics) IncSignatureMismatch(source string) {
	m.signatureMismatch.WithLabelValues(source).Inc()
}

// IncFlagged увеличивает счетчик записей ручной сверки
func (m *reconciliationMetrics) IncFlagged(reason string) {
	m.flagged.WithLabelValues(reason).Inc()
}

// ObserveProcessing записывает длительность обработки
func (m *reconciliationMetrics) ObserveProcessing(d time.Duration) {
	m.processingDuration.Observe(d.Seconds())
}
