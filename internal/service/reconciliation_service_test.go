package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/internal/metrics"
	"github.com/Dhoini/kleenpride-booking-service/internal/repository"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

func TestProcessNotification_DuplicateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.pendingBooking(t, customer("c1"))
	params := env.notification("tx1", b.ID, "450.00", domain.NotificationStatusComplete)

	first, err := env.reconciliation.ProcessNotification(ctx, SourceWebhook, params)
	if err != nil {
		t.Fatalf("first ProcessNotification() error = %v", err)
	}
	second, err := env.reconciliation.ProcessNotification(ctx, SourceWebhook, params)
	if err != nil {
		t.Fatalf("second ProcessNotification() error = %v", err)
	}

	if first.Outcome != OutcomeApplied {
		t.Errorf("first outcome = %s, want %s", first.Outcome, OutcomeApplied)
	}
	if second.Outcome != OutcomeDuplicate {
		t.Errorf("second outcome = %s, want %s", second.Outcome, OutcomeDuplicate)
	}

	txs := env.transactions(t, b.ID)
	if len(txs) != 1 || txs[0].GatewayTransactionID != "tx1" || txs[0].Status != domain.TransactionStatusSettled {
		t.Fatalf("transactions = %+v", txs)
	}
	stored := env.booking(t, b.ID)
	if stored.Status != domain.BookingStatusConfirmed || stored.PaymentID != "tx1" {
		t.Errorf("booking = %+v", stored)
	}

	confirmed := 0
	for _, typ := range env.publisher.types() {
		if typ == domain.EventBookingConfirmed {
			confirmed++
		}
	}
	if confirmed != 1 {
		t.Errorf("booking.confirmed published %d times, want 1", confirmed)
	}
}

func TestProcessNotification_ConcurrentDeliveries(t *testing.T) {
	env := newTestEnv(t)
	b := env.pendingBooking(t, customer("c1"))
	params := env.notification("tx1", b.ID, "450.00", domain.NotificationStatusComplete)

	const deliveries = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.reconciliation.ProcessNotification(context.Background(), SourceKafka, params)
			if err != nil {
				t.Errorf("ProcessNotification() error = %v", err)
				return
			}
			mu.Lock()
			outcomes[res.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if outcomes[OutcomeApplied] != 1 || outcomes[OutcomeDuplicate] != deliveries-1 {
		t.Errorf("outcomes = %v, want 1 applied and %d duplicates", outcomes, deliveries-1)
	}
	if txs := env.transactions(t, b.ID); len(txs) != 1 {
		t.Errorf("transactions = %d, want 1", len(txs))
	}
}

func TestProcessNotification_SignatureMismatch(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(p map[string]string)
	}{
		{"wrong signature", func(p map[string]string) { p[domain.FieldSignature] = "0123456789abcdef0123456789abcdef" }},
		{"missing signature", func(p map[string]string) { delete(p, domain.FieldSignature) }},
		{"amount altered", func(p map[string]string) { p[domain.FieldAmount] = "1.00" }},
		{"status altered", func(p map[string]string) { p[domain.FieldPaymentStatus] = "FAILED" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			b := env.pendingBooking(t, customer("c1"))
			params := env.notification("tx1", b.ID, "450.00", domain.NotificationStatusComplete)
			tt.tamper(params)

			res, err := env.reconciliation.ProcessNotification(context.Background(), SourceWebhook, params)
			if !errors.Is(err, domain.ErrSignatureMismatch) {
				t.Fatalf("ProcessNotification() error = %v, want ErrSignatureMismatch", err)
			}
			if res != nil {
				t.Errorf("result = %+v, want nil", res)
			}

			stored := env.booking(t, b.ID)
			if stored.Status != domain.BookingStatusPendingPayment {
				t.Errorf("Status = %s, want PENDING_PAYMENT", stored.Status)
			}
			if txs := env.transactions(t, b.ID); len(txs) != 0 {
				t.Errorf("transactions = %d, want 0", len(txs))
			}
		})
	}
}

func TestProcessNotification_Malformed(t *testing.T) {
	env := newTestEnv(t)
	b := env.pendingBooking(t, customer("c1"))

	params := map[string]string{
		domain.FieldBookingID:     b.ID,
		domain.FieldAmount:        "450.00",
		domain.FieldPaymentStatus: "COMPLETE",
	}
	signed, _ := env.signer.Signed(params)

	_, err := env.reconciliation.ProcessNotification(context.Background(), SourceWebhook, signed)
	if !errors.Is(err, domain.ErrMalformedNotification) {
		t.Fatalf("ProcessNotification() error = %v, want ErrMalformedNotification", err)
	}
	if stored := env.booking(t, b.ID); stored.Status != domain.BookingStatusPendingPayment {
		t.Errorf("Status = %s, want PENDING_PAYMENT", stored.Status)
	}
}

func TestProcessNotification_AmountMismatchIsFlagged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.pendingBooking(t, customer("c1"))
	params := env.notification("tx1", b.ID, "100.00", domain.NotificationStatusComplete)

	for i := 0; i < 2; i++ {
		res, err := env.reconciliation.ProcessNotification(ctx, SourceWebhook, params)

		var mismatch *domain.AmountMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("ProcessNotification() error = %v, want AmountMismatchError", err)
		}
		if mismatch.Expected != 45000 || mismatch.Received != 10000 {
			t.Errorf("mismatch = %+v", mismatch)
		}
		if res == nil || res.Outcome != OutcomeFlagged || res.ReviewReason != domain.ReviewReasonAmountMismatch {
			t.Errorf("result = %+v", res)
		}
	}

	stored := env.booking(t, b.ID)
	if stored.Status != domain.BookingStatusPendingPayment || stored.PaymentStatus == domain.BookingPaymentSettled {
		t.Errorf("booking advanced on amount mismatch: %+v", stored)
	}
	if txs := env.transactions(t, b.ID); len(txs) != 0 {
		t.Errorf("transactions = %+v, want none", txs)
	}

	open, err := env.reviews.ListOpen(ctx)
	if err != nil {
		t.Fatalf("ListOpen() error = %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open reviews = %d, want 1", len(open))
	}
	r := open[0]
	if r.Reason != domain.ReviewReasonAmountMismatch || r.ExpectedMinorUnits != 45000 || r.ReceivedMinorUnits != 10000 {
		t.Errorf("review = %+v", r)
	}
	if r.Payload == "" {
		t.Error("review payload is empty")
	}
	if !env.publisher.has(domain.EventPaymentFlagged) {
		t.Errorf("events = %v, want %s", env.publisher.types(), domain.EventPaymentFlagged)
	}

	// правильная сумма после сверки применяется
	res, err := env.reconciliation.ProcessNotification(ctx, SourceWebhook,
		env.notification("tx2", b.ID, "450.00", domain.NotificationStatusComplete))
	if err != nil || res.Outcome != OutcomeApplied {
		t.Fatalf("ProcessNotification() = %+v, %v; want applied", res, err)
	}
}

func TestProcessNotification_Rejection(t *testing.T) {
	for _, status := range []domain.NotificationStatus{domain.NotificationStatusFailed, domain.NotificationStatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			b := env.pendingBooking(t, customer("c1"))
			params := env.notification("tx1", b.ID, "450.00", status)

			res, err := env.reconciliation.ProcessNotification(ctx, SourceWebhook, params)
			if err != nil {
				t.Fatalf("ProcessNotification() error = %v", err)
			}
			if res.Outcome != OutcomeApplied || res.TransactionStatus != domain.TransactionStatusRejected {
				t.Errorf("result = %+v", res)
			}

			stored := env.booking(t, b.ID)
			if stored.Status != domain.BookingStatusCancelled || stored.PaymentStatus != domain.BookingPaymentFailed {
				t.Errorf("booking = %+v", stored)
			}
			if !env.publisher.has(domain.EventPaymentRejected) || !env.publisher.has(domain.EventBookingCancelled) {
				t.Errorf("events = %v", env.publisher.types())
			}

			again, err := env.reconciliation.ProcessNotification(ctx, SourceWebhook, params)
			if err != nil || again.Outcome != OutcomeDuplicate {
				t.Errorf("repeated rejection = %+v, %v; want duplicate", again, err)
			}
		})
	}
}

func TestProcessNotification_RejectionAfterConfirmIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.pendingBooking(t, customer("c1"))

	if _, err := env.reconciliation.ProcessNotification(ctx, SourceWebhook,
		env.notification("tx1", b.ID, "450.00", domain.NotificationStatusComplete)); err != nil {
		t.Fatalf("ProcessNotification(COMPLETE) error = %v", err)
	}

	res, err := env.reconciliation.ProcessNotification(ctx, SourceWebhook,
		env.notification("tx2", b.ID, "450.00", domain.NotificationStatusFailed))
	if err != nil {
		t.Fatalf("ProcessNotification(FAILED) error = %v", err)
	}
	if res.Outcome != OutcomeRecorded {
		t.Errorf("outcome = %s, want %s", res.Outcome, OutcomeRecorded)
	}
	if stored := env.booking(t, b.ID); stored.Status != domain.BookingStatusConfirmed || stored.PaymentID != "tx1" {
		t.Errorf("booking = %+v", stored)
	}
	if txs := env.transactions(t, b.ID); len(txs) != 2 {
		t.Errorf("transactions = %d, want 2", len(txs))
	}
}

func TestProcessNotification_UnknownBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.reconciliation.ProcessNotification(ctx, SourceWebhook,
		env.notification("tx1", "missing", "450.00", domain.NotificationStatusComplete))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ProcessNotification() error = %v, want ErrNotFound", err)
	}
	if res == nil || res.ReviewReason != domain.ReviewReasonUnknownBooking {
		t.Errorf("result = %+v", res)
	}
	if _, err := env.store.Transactions().Get(ctx, "tx1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("transaction stored for unknown booking: %v", err)
	}
	if open, _ := env.reviews.ListOpen(ctx); len(open) != 1 {
		t.Errorf("open reviews = %d, want 1", len(open))
	}
}

func TestProcessNotification_TransactionOfAnotherBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := customer("c1")
	first := env.pendingBooking(t, owner)
	second, err := env.bookings.Submit(ctx, owner, validDraft("tok_abc"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	init, err := env.bookings.InitiatePayment(ctx, owner, first.ID)
	if err != nil {
		t.Fatalf("InitiatePayment() error = %v", err)
	}

	res, err := env.reconciliation.ProcessNotification(ctx, SourceWebhook,
		env.notification(init.PaymentID, second.ID, "450.00", domain.NotificationStatusComplete))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("ProcessNotification() error = %v, want ErrInvalidInput", err)
	}
	if res.ReviewReason != domain.ReviewReasonBookingMismatch {
		t.Errorf("result = %+v", res)
	}
	for _, id := range []string{first.ID, second.ID} {
		if stored := env.booking(t, id); stored.Status != domain.BookingStatusPendingPayment {
			t.Errorf("booking %s Status = %s, want PENDING_PAYMENT", id, stored.Status)
		}
	}
}

// failingReviews очередь сверки, которая отказывает в записи, пока err не сброшен
type failingReviews struct {
	repository.ReviewQueue
	mu  sync.Mutex
	err error
}

func (f *failingReviews) Flag(ctx context.Context, r *domain.Review) (bool, error) {
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.ReviewQueue.Flag(ctx, r)
}

func (f *failingReviews) heal() {
	f.mu.Lock()
	f.err = nil
	f.mu.Unlock()
}

func TestProcessNotification_ReviewQueueFailureIsNotAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	log := logger.NewNop()
	reviews := &failingReviews{ReviewQueue: env.reviews, err: errors.New("db down")}
	reconciliation := NewReconciliationService(
		env.store, reviews, env.signer, NewKeyedMutex(), env.publisher,
		metrics.NewReconciliationMetrics(prometheus.NewRegistry(), log), log,
	)
	b := env.pendingBooking(t, customer("c1"))
	params := env.notification("tx1", b.ID, "100.00", domain.NotificationStatusComplete)

	res, err := reconciliation.ProcessNotification(ctx, SourceWebhook, params)
	if err == nil || res != nil {
		t.Fatalf("ProcessNotification() = %+v, %v; want storage error without result", res, err)
	}
	var mismatch *domain.AmountMismatchError
	if errors.As(err, &mismatch) {
		t.Errorf("error = %v, must not look like a flagged outcome", err)
	}
	if open, _ := env.reviews.ListOpen(ctx); len(open) != 0 {
		t.Errorf("open reviews = %d, want 0", len(open))
	}
	if env.publisher.has(domain.EventPaymentFlagged) {
		t.Errorf("events = %v, flagged event published without a review", env.publisher.types())
	}

	// повторная доставка после восстановления очереди создает запись
	reviews.heal()
	res, err = reconciliation.ProcessNotification(ctx, SourceWebhook, params)
	if !errors.As(err, &mismatch) || res == nil || res.Outcome != OutcomeFlagged {
		t.Fatalf("redelivery = %+v, %v; want flagged", res, err)
	}
	if open, _ := env.reviews.ListOpen(ctx); len(open) != 1 {
		t.Errorf("open reviews = %d, want 1", len(open))
	}
}
