package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics интерфейс для метрик HTTP запросов
type HTTPMetrics interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

type httpMetrics struct {
	requests *prometheus.HistogramVec
}

// NewHTTPMetrics создает новые метрики HTTP
func NewHTTPMetrics(registry *prometheus.Registry) HTTPMetrics {
	return &httpMetrics{
		requests: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency by route and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
}

// ObserveRequest записывает длительность запроса
func (m *httpMetrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
