package domain

import "time"

// ReviewReason причина ручной проверки платежа
type ReviewReason string

const (
	ReviewReasonAmountMismatch  ReviewReason = "amount_mismatch"
	ReviewReasonLateSettlement  ReviewReason = "late_settlement"
	ReviewReasonUnknownBooking  ReviewReason = "unknown_booking"
	ReviewReasonBookingMismatch ReviewReason = "booking_mismatch"
)

// ReviewStatus статус ручной проверки
type ReviewStatus string

const (
	ReviewStatusOpen     ReviewStatus = "open"
	ReviewStatusResolved ReviewStatus = "resolved"
)

// Review запись очереди ручной сверки
type Review struct {
	ID                   string       `json:"id" db:"id"`
	BookingID            string       `json:"booking_id" db:"booking_id"`
	GatewayTransactionID string       `json:"gateway_transaction_id" db:"gateway_transaction_id"`
	Reason               ReviewReason `json:"reason" db:"reason"`
	ExpectedMinorUnits   int64        `json:"expected_minor_units" db:"expected_minor_units"`
	ReceivedMinorUnits   int64        `json:"received_minor_units" db:"received_minor_units"`
	Payload              string       `json:"payload,omitempty" db:"payload"`
	Status               ReviewStatus `json:"status" db:"status"`
	Note                 string       `json:"note,omitempty" db:"note"`
	CreatedAt            time.Time    `json:"created_at" db:"created_at"`
	ResolvedAt           *time.Time   `json:"resolved_at,omitempty" db:"resolved_at"`
}
