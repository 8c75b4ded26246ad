package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
)

func newBooking(id string) *domain.Booking {
	now := time.Now()
	return &domain.Booking{
		ID:            id,
		CustomerID:    "c1",
		Status:        domain.BookingStatusPendingPayment,
		PaymentStatus: domain.BookingPaymentNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestInMemoryStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(logger.NewNop())

	b := newBooking("b1")
	if err := s.Bookings().Create(ctx, b); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Bookings().Create(ctx, b); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second Create() error = %v, want ErrDuplicate", err)
	}

	got, err := s.Bookings().Get(ctx, "b1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Status = domain.BookingStatusCancelled

	again, _ := s.Bookings().Get(ctx, "b1")
	if again.Status != domain.BookingStatusPendingPayment {
		t.Error("mutating a returned booking must not change the stored one")
	}

	if _, err := s.Bookings().Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestInMemoryStoreInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(logger.NewNop())
	_ = s.Bookings().Create(ctx, newBooking("b1"))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx Store) error {
		b, err := tx.Bookings().GetForUpdate(ctx, "b1")
		if err != nil {
			return err
		}
		b.Status = domain.BookingStatusConfirmed
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}
		if err := tx.Transactions().Insert(ctx, &domain.PaymentTransaction{GatewayTransactionID: "tx1", BookingID: "b1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}

	b, _ := s.Bookings().Get(ctx, "b1")
	if b.Status != domain.BookingStatusPendingPayment {
		t.Errorf("status = %s after rollback", b.Status)
	}
	if _, err := s.Transactions().Get(ctx, "tx1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("transaction visible after rollback: %v", err)
	}
}

func TestInMemoryStoreInTxCommits(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(logger.NewNop())
	_ = s.Bookings().Create(ctx, newBooking("b1"))

	err := s.InTx(ctx, func(tx Store) error {
		b, _ := tx.Bookings().GetForUpdate(ctx, "b1")
		b.Status = domain.BookingStatusConfirmed
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}
		return tx.Transactions().Insert(ctx, &domain.PaymentTransaction{GatewayTransactionID: "tx1", BookingID: "b1", Status: domain.TransactionStatusSettled})
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}

	b, _ := s.Bookings().Get(ctx, "b1")
	tx, err := s.Transactions().Get(ctx, "tx1")
	if err != nil || b.Status != domain.BookingStatusConfirmed || tx.Status != domain.TransactionStatusSettled {
		t.Errorf("after commit booking = %s, tx = %+v, err = %v", b.Status, tx, err)
	}

	list, _ := s.Transactions().ListByBooking(ctx, "b1")
	if len(list) != 1 {
		t.Errorf("ListByBooking() = %d transactions, want 1", len(list))
	}
}

func TestInMemoryStoreInTxCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewInMemoryStore(logger.NewNop())
	called := false
	err := s.InTx(ctx, func(Store) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("InTx() error = %v, called = %v", err, called)
	}
}

func TestInMemoryStoreListByCustomer(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(logger.NewNop())

	older := newBooking("b1")
	older.CreatedAt = time.Now().Add(-time.Hour)
	_ = s.Bookings().Create(ctx, older)
	_ = s.Bookings().Create(ctx, newBooking("b2"))
	other := newBooking("b3")
	other.CustomerID = "c2"
	_ = s.Bookings().Create(ctx, other)

	list, err := s.Bookings().ListByCustomer(ctx, "c1")
	if err != nil {
		t.Fatalf("ListByCustomer() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "b2" || list[1].ID != "b1" {
		t.Errorf("ListByCustomer() = %v", list)
	}
}
