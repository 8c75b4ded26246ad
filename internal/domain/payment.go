package domain

import (
	"strings"
	"time"
)

// CashPaymentMethod значение способа оплаты для оплаты наличными
const CashPaymentMethod = "cash"

// IsCashMethod проверяет, является ли способ оплаты наличными
func IsCashMethod(method string) bool {
	return strings.EqualFold(strings.TrimSpace(method), CashPaymentMethod)
}

// CashTransactionID идентификатор транзакции для оплаты наличными
func CashTransactionID(bookingID string) string {
	return "cash_" + bookingID
}

// PaymentMethod сохраненный токенизированный способ оплаты пользователя
type PaymentMethod struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Token       string    `json:"token"`
	Alias       string    `json:"alias"`
	Last4Digits string    `json:"last4_digits"`
	Brand       string    `json:"brand"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone возвращает копию способа оплаты
func (m *PaymentMethod) Clone() *PaymentMethod {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// TransactionStatus статус платежной транзакции
type TransactionStatus string

const (
	TransactionStatusInitiated TransactionStatus = "INITIATED"
	TransactionStatusSettled   TransactionStatus = "SETTLED"
	TransactionStatusRejected  TransactionStatus = "REJECTED"
)

// PaymentTransaction одна попытка расчета, ключ - идентификатор транзакции шлюза
type PaymentTransaction struct {
	GatewayTransactionID string            `json:"gateway_transaction_id"`
	BookingID            string            `json:"booking_id"`
	AmountMinorUnits     int64             `json:"amount_minor_units"`
	Signature            string            `json:"signature"`
	Status               TransactionStatus `json:"status"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Clone возвращает копию транзакции
func (t *PaymentTransaction) Clone() *PaymentTransaction {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// IsFinal возвращает true для проведенных и отклоненных транзакций
func (t *PaymentTransaction) IsFinal() bool {
	return t.Status == TransactionStatusSettled || t.Status == TransactionStatusRejected
}
