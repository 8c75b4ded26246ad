package domain

import "time"

// EventType тип события жизненного цикла бронирования
type EventType string

const (
	// События бронирований
	EventBookingCreated   EventType = "booking.created"
	EventBookingConfirmed EventType = "booking.confirmed"
	EventBookingCancelled EventType = "booking.cancelled"
	EventBookingAssigned  EventType = "booking.assigned"
	EventBookingStarted   EventType = "booking.started"
	EventBookingCompleted EventType = "booking.completed"

	// События платежей
	EventPaymentInitiated EventType = "payment.initiated"
	EventPaymentRejected  EventType = "payment.rejected"
	EventPaymentFlagged   EventType = "payment.flagged"
)

// BookingEvent событие, публикуемое после фиксации перехода
type BookingEvent struct {
	Type                 EventType            `json:"type"`
	BookingID            string               `json:"booking_id"`
	CustomerID           string               `json:"customer_id"`
	DetailerID           string               `json:"detailer_id,omitempty"`
	Status               BookingStatus        `json:"status"`
	PaymentStatus        BookingPaymentStatus `json:"payment_status"`
	GatewayTransactionID string               `json:"gateway_transaction_id,omitempty"`
	AmountMinorUnits     int64                `json:"amount_minor_units"`
	OccurredAt           time.Time            `json:"occurred_at"`
}

// NewBookingEvent создает событие по текущему состоянию бронирования
func NewBookingEvent(eventType EventType, b *Booking, now time.Time) BookingEvent {
	return BookingEvent{
		Type:                 eventType,
		BookingID:            b.ID,
		CustomerID:           b.CustomerID,
		DetailerID:           b.DetailerID,
		Status:               b.Status,
		PaymentStatus:        b.PaymentStatus,
		GatewayTransactionID: b.PaymentID,
		AmountMinorUnits:     b.PriceMinorUnits,
		OccurredAt:           now,
	}
}
