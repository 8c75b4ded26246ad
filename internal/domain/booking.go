package domain

import (
	"time"
)

// BookingStatus статус бронирования
type BookingStatus string

const (
	BookingStatusDraft          BookingStatus = "DRAFT"
	BookingStatusPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingStatusConfirmed      BookingStatus = "CONFIRMED"
	BookingStatusInProgress     BookingStatus = "IN_PROGRESS"
	BookingStatusCompleted      BookingStatus = "COMPLETED"
	BookingStatusCancelled      BookingStatus = "CANCELLED"
)

// BookingPaymentStatus состояние оплаты бронирования
type BookingPaymentStatus string

const (
	BookingPaymentNone    BookingPaymentStatus = "NONE"
	BookingPaymentPending BookingPaymentStatus = "PENDING"
	BookingPaymentSettled BookingPaymentStatus = "SETTLED"
	BookingPaymentFailed  BookingPaymentStatus = "FAILED"
)

// bookingTransitions допустимые переходы статусов. DRAFT никогда не сохраняется.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusDraft:          {BookingStatusPendingPayment},
	BookingStatusPendingPayment: {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed:      {BookingStatusInProgress, BookingStatusCancelled},
	BookingStatusInProgress:     {BookingStatusCompleted},
}

// CanTransition проверяет, разрешен ли переход from -> to
func CanTransition(from, to BookingStatus) bool {
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для конечных статусов
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// BookingDraft черновик бронирования, который собирает клиент
type BookingDraft struct {
	Service       string `json:"service" validate:"notblank"`
	ScheduledDate string `json:"scheduled_date" validate:"notblank,bookingdate"`
	ScheduledTime string `json:"scheduled_time" validate:"notblank,timeslot"`
	Address       string `json:"address" validate:"notblank"`
	VehicleType   string `json:"vehicle_type" validate:"notblank"`
	PaymentMethod string `json:"payment_method" validate:"notblank"`
}

// Booking представляет собой сохраненное бронирование
type Booking struct {
	ID              string               `json:"id"`
	CustomerID      string               `json:"customer_id"`
	DetailerID      string               `json:"detailer_id,omitempty"`
	ServiceID       string               `json:"service_id"`
	VehicleType     string               `json:"vehicle_type"`
	ScheduledAt     time.Time            `json:"scheduled_at"`
	Address         string               `json:"address"`
	PaymentMethod   string               `json:"payment_method"`
	PriceMinorUnits int64                `json:"price_minor_units"`
	Status          BookingStatus        `json:"status"`
	PaymentID       string               `json:"payment_id,omitempty"`
	PaymentStatus   BookingPaymentStatus `json:"payment_status"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// IsCash возвращает true, если бронирование оплачивается наличными
func (b *Booking) IsCash() bool {
	return IsCashMethod(b.PaymentMethod)
}

// Clone возвращает копию бронирования
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// Transition переводит бронирование в новый статус по таблице переходов
func (b *Booking) Transition(to BookingStatus, now time.Time) error {
	if !CanTransition(b.Status, to) {
		return &TransitionError{BookingID: b.ID, From: b.Status, To: to}
	}
	b.Status = to
	b.UpdatedAt = now
	return nil
}

// Confirm подтверждает бронирование по проведенной транзакции
func (b *Booking) Confirm(tx *PaymentTransaction, now time.Time) error {
	if tx == nil || tx.Status != TransactionStatusSettled || tx.BookingID != b.ID {
		return &TransitionError{
			BookingID: b.ID,
			From:      b.Status,
			To:        BookingStatusConfirmed,
			Reason:    "no settled transaction for this booking",
		}
	}
	if err := b.Transition(BookingStatusConfirmed, now); err != nil {
		return err
	}
	b.PaymentID = tx.GatewayTransactionID
	b.PaymentStatus = BookingPaymentSettled
	return nil
}

// Reject отменяет ожидающее оплаты бронирование после отказа шлюза
func (b *Booking) Reject(tx *PaymentTransaction, now time.Time) error {
	if b.Status != BookingStatusPendingPayment {
		return &TransitionError{BookingID: b.ID, From: b.Status, To: BookingStatusCancelled, Reason: "payment rejection only applies while awaiting payment"}
	}
	if err := b.Transition(BookingStatusCancelled, now); err != nil {
		return err
	}
	if tx != nil {
		b.PaymentID = tx.GatewayTransactionID
	}
	b.PaymentStatus = BookingPaymentFailed
	return nil
}

// Start начинает выполнение работы назначенным исполнителем
func (b *Booking) Start(detailerID string, now time.Time) error {
	if b.DetailerID == "" {
		return &TransitionError{BookingID: b.ID, From: b.Status, To: BookingStatusInProgress, Reason: "no detailer assigned"}
	}
	if b.DetailerID != detailerID {
		return &TransitionError{BookingID: b.ID, From: b.Status, To: BookingStatusInProgress, Reason: "job is assigned to another detailer"}
	}
	return b.Transition(BookingStatusInProgress, now)
}
