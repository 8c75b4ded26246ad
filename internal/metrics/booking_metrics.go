package metrics

import (
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BookingMetrics интерфейс для метрик бронирований
type BookingMetrics interface {
	IncBookingCreated(service string)
	IncTransition(from, to string)
	IncTransitionRejected(from, to string)
	IncPaymentInitiation(outcome string)
	ObserveBookingPrice(service string, minorUnits int64)
}

type bookingMetrics struct {
	log                 *logger.Logger
	bookingsCreated     *prometheus.CounterVec
	transitions         *prometheus.CounterVec
	transitionsRejected *prometheus.CounterVec
	paymentInitiations  *prometheus.CounterVec
	bookingPrice        *prometheus.HistogramVec
}

// NewBookingMetrics создает новые метрики бронирований
func NewBookingMetrics(registry *prometheus.Registry, log *logger.Logger) BookingMetrics {
	bookingsCreated := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_created_total",
			Help: "The total number of submitted bookings",
		},
		[]string{"service"},
	)

	transitions := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "The total number of applied booking status transitions",
		},
		[]string{"from", "to"},
	)

	transitionsRejected := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_transitions_rejected_total",
			Help: "The total number of rejected booking status transitions",
		},
		[]string{"from", "to"},
	)

	paymentInitiations := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_payment_initiations_total",
			Help: "The total number of payment initiations by outcome",
		},
		[]string{"outcome"},
	)

	bookingPrice := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "booking_price_minor_units",
			Help:    "Booking price distribution in minor units",
			Buckets: prometheus.ExponentialBuckets(5000, 2, 6),
		},
		[]string{"service"},
	)

	return &bookingMetrics{
		log:                 log,
		bookingsCreated:     bookingsCreated,
		transitions:         transitions,
		transitionsRejected: transitionsRejected,
		paymentInitiations:  paymentInitiations,
		bookingPrice:        bookingPrice,
	}
}

// IncBookingCreated увеличивает счетчик созданных бронирований
func (m *bookingMetrics) IncBookingCreated(service string) {
	m.bookingsCreated.WithLabelValues(service).Inc()
}

// IncTransition увеличивает счетчик переходов
func (m *bookingMetrics) IncTransition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

// IncTransitionRejected увеличивает счетчик отклоненных переходов
func (m *bookingMetrics) IncTransitionRejected(from, to string) {
	m.transitionsRejected.WithLabelValues(from, to).Inc()
}

// IncPaymentInitiation увеличивает счетчик инициаций оплаты
func (m *bookingMetrics) IncPaymentInitiation(outcome string) {
	m.paymentInitiations.WithLabelValues(outcome).Inc()
}

// ObserveBookingPrice записывает цену бронирования
func (m *bookingMetrics) ObserveBookingPrice(service string, minorUnits int64) {
	m.bookingPrice.WithLabelValues(service).Observe(float64(minorUnits))
}
