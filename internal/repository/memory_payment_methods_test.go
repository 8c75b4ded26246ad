package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
)

func method(id, token string, created time.Time) *domain.PaymentMethod {
	return &domain.PaymentMethod{
		ID:          id,
		UserID:      "u1",
		Token:       token,
		Alias:       "Card " + id,
		Last4Digits: "4242",
		Brand:       "visa",
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func countDefaults(t *testing.T, r PaymentMethodRepository, userID string) int {
	t.Helper()
	list, err := r.ListByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	n := 0
	for _, m := range list {
		if m.IsDefault {
			n++
		}
	}
	return n
}

func TestPaymentMethodsFirstBecomesDefault(t *testing.T) {
	ctx := context.Background()
	r := NewInMemoryPaymentMethodRepository(logger.NewNop())
	now := time.Now()

	first, err := r.Insert(ctx, method("m1", "tok_1", now))
	if err != nil || !first.IsDefault {
		t.Fatalf("first Insert() = %+v, %v", first, err)
	}
	second, err := r.Insert(ctx, method("m2", "tok_2", now.Add(time.Second)))
	if err != nil || second.IsDefault {
		t.Fatalf("second Insert() = %+v, %v", second, err)
	}
	if tok, _ := r.DefaultToken(ctx, "u1"); tok != "tok_1" {
		t.Errorf("DefaultToken() = %q, want tok_1", tok)
	}
	if _, err := r.Insert(ctx, method("m3", "tok_1", now)); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate token error = %v", err)
	}
}

func TestPaymentMethodsSetDefault(t *testing.T) {
	ctx := context.Background()
	r := NewInMemoryPaymentMethodRepository(logger.NewNop())
	now := time.Now()
	_, _ = r.Insert(ctx, method("m1", "tok_1", now))
	_, _ = r.Insert(ctx, method("m2", "tok_2", now.Add(time.Second)))

	if _, err := r.SetDefault(ctx, "u1", "m2"); err != nil {
		t.Fatalf("SetDefault() error = %v", err)
	}

	m1, _ := r.Get(ctx, "u1", "m1")
	m2, _ := r.Get(ctx, "u1", "m2")
	if m1.IsDefault || !m2.IsDefault {
		t.Errorf("defaults m1=%v m2=%v", m1.IsDefault, m2.IsDefault)
	}
	if tok, _ := r.DefaultToken(ctx, "u1"); tok != "tok_2" {
		t.Errorf("DefaultToken() = %q, want tok_2", tok)
	}
}

func TestPaymentMethodsDeleteDefaultClears(t *testing.T) {
	ctx := context.Background()
	r := NewInMemoryPaymentMethodRepository(logger.NewNop())
	now := time.Now()
	_, _ = r.Insert(ctx, method("m1", "tok_1", now))
	_, _ = r.Insert(ctx, method("m2", "tok_2", now.Add(time.Second)))

	wasDefault, err := r.Delete(ctx, "u1", "m1")
	if err != nil || !wasDefault {
		t.Fatalf("Delete() = %v, %v", wasDefault, err)
	}
	if n := countDefaults(t, r, "u1"); n != 0 {
		t.Errorf("defaults after deleting default = %d, want 0 (no promotion)", n)
	}
	if tok, _ := r.DefaultToken(ctx, "u1"); tok != "" {
		t.Errorf("DefaultToken() = %q, want empty", tok)
	}
	if _, err := r.Delete(ctx, "u1", "m1"); !errors.Is(err, domain.ErrPaymentMethodNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestPaymentMethodsUpdateKeepsLast4(t *testing.T) {
	ctx := context.Background()
	r := NewInMemoryPaymentMethodRepository(logger.NewNop())
	_, _ = r.Insert(ctx, method("m1", "tok_1", time.Now()))

	upd := method("m1", "tok_9", time.Now())
	upd.Alias = "Work card"
	upd.Last4Digits = "0000"
	got, err := r.UpdateDetails(ctx, upd)
	if err != nil {
		t.Fatalf("UpdateDetails() error = %v", err)
	}
	if got.Last4Digits != "4242" || got.Alias != "Work card" || got.Token != "tok_9" {
		t.Errorf("UpdateDetails() = %+v", got)
	}
	if tok, _ := r.DefaultToken(ctx, "u1"); tok != "tok_9" {
		t.Errorf("DefaultToken() = %q, want tok_9", tok)
	}
}

func TestPaymentMethodsUpdateRejectsTokenOfAnotherMethod(t *testing.T) {
	ctx := context.Background()
	r := NewInMemoryPaymentMethodRepository(logger.NewNop())
	_, _ = r.Insert(ctx, method("m1", "tok_1", time.Now()))
	_, _ = r.Insert(ctx, method("m2", "tok_2", time.Now()))

	_, err := r.UpdateDetails(ctx, method("m2", "tok_1", time.Now()))
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("UpdateDetails() error = %v, want ErrDuplicate", err)
	}
	if got, _ := r.Get(ctx, "u1", "m2"); got.Token != "tok_2" {
		t.Errorf("token after rejected update = %q, want tok_2", got.Token)
	}

	// свой же токен при смене alias не считается дубликатом
	upd := method("m1", "tok_1", time.Now())
	upd.Alias = "Renamed"
	if _, err := r.UpdateDetails(ctx, upd); err != nil {
		t.Errorf("UpdateDetails() with own token error = %v", err)
	}
}

func TestPaymentMethodsConcurrentSetDefault(t *testing.T) {
	ctx := context.Background()
	r := NewInMemoryPaymentMethodRepository(logger.NewNop())
	now := time.Now()
	ids := []string{"m1", "m2", "m3", "m4"}
	for i, id := range ids {
		_, _ = r.Insert(ctx, method(id, "tok_"+id, now.Add(time.Duration(i)*time.Second)))
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	violations := make(chan int, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			list, _ := r.ListByUser(ctx, "u1")
			n := 0
			for _, m := range list {
				if m.IsDefault {
					n++
				}
			}
			if n != 1 {
				select {
				case violations <- n:
				default:
				}
			}
		}
	}()

	var writers sync.WaitGroup
	for i := 0; i < 200; i++ {
		writers.Add(1)
		go func(id string) {
			defer writers.Done()
			_, _ = r.SetDefault(ctx, "u1", id)
		}(ids[i%len(ids)])
	}
	writers.Wait()
	close(stop)
	wg.Wait()

	select {
	case n := <-violations:
		t.Fatalf("observed %d default methods at once", n)
	default:
	}
	if n := countDefaults(t, r, "u1"); n != 1 {
		t.Errorf("defaults = %d, want 1", n)
	}
}
