package metrics

import (
	"fmt"

	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RegisterRuntimeMetrics добавляет в реестр метрики Go-рантайма и процесса,
// а также число бронирований, занятых изменением прямо сейчас.
// heldBookings опрашивается при каждом сборе метрик.
func RegisterRuntimeMetrics(registry *prometheus.Registry, heldBookings func() int, log *logger.Logger) error {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			log.Errorw("Failed to register runtime collector", "error", err)
			return fmt.Errorf("register runtime collector: %w", err)
		}
	}

	promauto.With(registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "booking_locks_held",
			Help: "Bookings currently locked for mutation or waited on",
		},
		func() float64 { return float64(heldBookings()) },
	)

	log.Infow("Runtime metrics registered")
	return nil
}
