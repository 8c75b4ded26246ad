package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Notification field names
const (
	FieldGatewayTransactionID = "gateway_transaction_id"
	FieldBookingID            = "custom_str1"
	FieldPaymentToken         = "custom_str2"
	FieldAmount               = "amount"
	FieldPaymentStatus        = "payment_status"
	FieldSignature            = "signature"
)

// NotificationStatus результат платежа, сообщенный шлюзом
type NotificationStatus string

const (
	NotificationStatusComplete  NotificationStatus = "COMPLETE"
	NotificationStatusFailed    NotificationStatus = "FAILED"
	NotificationStatusCancelled NotificationStatus = "CANCELLED"
)

// TransactionStatus сопоставляет результат шлюза со статусом транзакции
func (s NotificationStatus) TransactionStatus() TransactionStatus {
	if s == NotificationStatusComplete {
		return TransactionStatusSettled
	}
	return TransactionStatusRejected
}

// Notification разобранное уведомление шлюза (ITN)
type Notification struct {
	GatewayTransactionID string
	BookingID            string
	AmountMinorUnits     int64
	Status               NotificationStatus
	Signature            string
	Params               map[string]string
}

// ParseNotification строго разбирает параметры уведомления.
// Отсутствующее обязательное поле - ошибка, значения по умолчанию не подставляются.
func ParseNotification(params map[string]string) (*Notification, error) {
	var errs ValidationErrors

	get := func(field string) string {
		v := strings.TrimSpace(params[field])
		if v == "" {
			errs.Add(field, "is required")
		}
		return v
	}

	n := &Notification{
		GatewayTransactionID: get(FieldGatewayTransactionID),
		BookingID:            get(FieldBookingID),
		Signature:            get(FieldSignature),
		Params:               params,
	}

	if raw := get(FieldAmount); raw != "" {
		amount, err := ParseAmount(raw)
		if err != nil {
			errs.Add(FieldAmount, err.Error())
		}
		n.AmountMinorUnits = amount
	}

	if raw := get(FieldPaymentStatus); raw != "" {
		switch status := NotificationStatus(strings.ToUpper(raw)); status {
		case NotificationStatusComplete, NotificationStatusFailed, NotificationStatusCancelled:
			n.Status = status
		default:
			errs.Add(FieldPaymentStatus, fmt.Sprintf("unknown status %q", raw))
		}
	}

	if errs.HasErrors() {
		return nil, fmt.Errorf("%w: %w", ErrMalformedNotification, errs)
	}
	return n, nil
}

// ParseAmount переводит десятичную строку ("450.00") в минорные единицы
func ParseAmount(s string) (int64, error) {
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || (hasFrac && (frac == "" || len(frac) > 2)) {
		return 0, fmt.Errorf("malformed amount %q", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseUint(whole, 10, 53)
	if err != nil {
		return 0, fmt.Errorf("malformed amount %q", s)
	}
	cents, err := strconv.ParseUint(frac, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("malformed amount %q", s)
	}
	return int64(units)*100 + int64(cents), nil
}

// FormatAmount форматирует минорные единицы как десятичную строку с двумя знаками
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
