package service

import (
	"context"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
)

// EventPublisher публикует события бронирований после фиксации изменений
type EventPublisher interface {
	Publish(ctx context.Context, events ...domain.BookingEvent) error
}

// publishAll отправляет события; ошибка публикации только логируется
func publishAll(ctx context.Context, p EventPublisher, log *logger.Logger, events ...domain.BookingEvent) {
	if p == nil || len(events) == 0 {
		return
	}
	if err := p.Publish(context.WithoutCancel(ctx), events...); err != nil {
		log.Warnw("Failed to publish booking events", "error", err, "count", len(events), "bookingID", events[0].BookingID)
	}
}
