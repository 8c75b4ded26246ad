package domain

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"450.00", 45000, false},
		{"450.5", 45050, false},
		{"450", 45000, false},
		{"0.07", 7, false},
		{"", 0, true},
		{".50", 0, true},
		{"450.", 0, true},
		{"450.001", 0, true},
		{"-1.00", 0, true},
		{"+1.00", 0, true},
		{"1,000.00", 0, true},
		{"4e2", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAmount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := map[int64]string{
		45000: "450.00",
		45050: "450.50",
		7:     "0.07",
		0:     "0.00",
	}
	for in, want := range tests {
		if got := FormatAmount(in); got != want {
			t.Errorf("FormatAmount(%d) = %q, want %q", in, got, want)
		}
	}
}

func validNotification() map[string]string {
	return map[string]string{
		FieldGatewayTransactionID: "tx1",
		FieldBookingID:            "b1",
		FieldAmount:               "450.00",
		FieldPaymentStatus:        "COMPLETE",
		FieldSignature:            "abc",
	}
}

func TestParseNotification(t *testing.T) {
	n, err := ParseNotification(validNotification())
	if err != nil {
		t.Fatalf("ParseNotification() error = %v", err)
	}
	if n.GatewayTransactionID != "tx1" || n.BookingID != "b1" || n.AmountMinorUnits != 45000 || n.Status != NotificationStatusComplete {
		t.Errorf("notification = %+v", n)
	}
	if n.Status.TransactionStatus() != TransactionStatusSettled {
		t.Errorf("COMPLETE maps to %s", n.Status.TransactionStatus())
	}
}

func TestParseNotificationFailsLoudly(t *testing.T) {
	for _, field := range []string{FieldGatewayTransactionID, FieldBookingID, FieldAmount, FieldPaymentStatus, FieldSignature} {
		t.Run("missing "+field, func(t *testing.T) {
			p := validNotification()
			delete(p, field)

			_, err := ParseNotification(p)
			if !errors.Is(err, ErrMalformedNotification) {
				t.Fatalf("error = %v, want ErrMalformedNotification", err)
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) || len(verrs) != 1 || verrs[0].Field != field {
				t.Errorf("validation errors = %v", verrs)
			}
		})
	}

	p := validNotification()
	p[FieldPaymentStatus] = "PENDING"
	if _, err := ParseNotification(p); !errors.Is(err, ErrMalformedNotification) {
		t.Errorf("unknown status error = %v", err)
	}
}

func TestNotificationStatusMapping(t *testing.T) {
	for _, s := range []NotificationStatus{NotificationStatusFailed, NotificationStatusCancelled} {
		if s.TransactionStatus() != TransactionStatusRejected {
			t.Errorf("%s maps to %s", s, s.TransactionStatus())
		}
	}
}
