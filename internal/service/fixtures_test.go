package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/internal/gateway"
	"github.com/Dhoini/kleenpride-booking-service/internal/metrics"
	"github.com/Dhoini/kleenpride-booking-service/internal/repository"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const testPassphrase = "secret"

var testMerchant = gateway.Merchant{
	MerchantID:  "10000100",
	MerchantKey: "46f0cd694581a",
	ReturnURL:   "https://kleenpride.test/return",
	CancelURL:   "https://kleenpride.test/cancel",
	NotifyURL:   "https://kleenpride.test/webhooks/gateway/notify",
	ProcessURL:  "https://sandbox.gateway.test/eng/process",
}

type fakeGateway struct {
	mu                  sync.Mutex
	TokenizeFunc        func(ctx context.Context, req gateway.TokenizationRequest, signature string) (string, error)
	InitiatePaymentFunc func(ctx context.Context, req gateway.PaymentRequest, signature string) (string, error)
	tokenizeCalls       int
	initiateCalls       int
}

func (f *fakeGateway) Tokenize(ctx context.Context, req gateway.TokenizationRequest, signature string) (string, error) {
	f.mu.Lock()
	f.tokenizeCalls++
	f.mu.Unlock()
	if f.TokenizeFunc != nil {
		return f.TokenizeFunc(ctx, req, signature)
	}
	return "tok_" + req.Alias, nil
}

func (f *fakeGateway) InitiatePayment(ctx context.Context, req gateway.PaymentRequest, signature string) (string, error) {
	f.mu.Lock()
	f.initiateCalls++
	n := f.initiateCalls
	f.mu.Unlock()
	if f.InitiatePaymentFunc != nil {
		return f.InitiatePaymentFunc(ctx, req, signature)
	}
	return fmt.Sprintf("tx%d", n), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.BookingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...domain.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) has(t domain.EventType) bool {
	for _, got := range p.types() {
		if got == t {
			return true
		}
	}
	return false
}

// mapRedis хранит ключи Redis в памяти; реализованы только команды кеша бронирований
type mapRedis struct {
	redis.Cmdable
	mu   sync.Mutex
	data map[string]string
}

func newMapRedis() *mapRedis {
	return &mapRedis{data: make(map[string]string)}
}

func (m *mapRedis) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mapRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	default:
		m.data[key] = fmt.Sprint(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *mapRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type testEnv struct {
	store          *repository.InMemoryStore
	paymentMethods *repository.InMemoryPaymentMethodRepository
	reviews        *repository.InMemoryReviewQueue
	signer         *gateway.Signer
	gateway        *fakeGateway
	publisher      *recordingPublisher
	bookings       BookingService
	reconciliation ReconciliationService
	tokenization   TokenizationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return buildTestEnv(t, nil)
}

// newCachedTestEnv строит окружение, в котором сервисы читают бронирования через кеш
func newCachedTestEnv(t *testing.T) (*testEnv, *repository.BookingCache) {
	t.Helper()
	cache := repository.NewBookingCache(newMapRedis(), time.Minute, logger.NewNop())
	env := buildTestEnv(t, func(inner repository.Store) repository.Store {
		return repository.NewCachedStore(inner, cache, logger.NewNop())
	})
	return env, cache
}

func buildTestEnv(t *testing.T, wrap func(repository.Store) repository.Store) *testEnv {
	t.Helper()

	log := logger.NewNop()
	registry := prometheus.NewRegistry()

	env := &testEnv{
		store:          repository.NewInMemoryStore(log),
		paymentMethods: repository.NewInMemoryPaymentMethodRepository(log),
		reviews:        repository.NewInMemoryReviewQueue(),
		signer:         gateway.NewSigner(testPassphrase),
		gateway:        &fakeGateway{},
		publisher:      &recordingPublisher{},
	}

	var store repository.Store = env.store
	if wrap != nil {
		store = wrap(env.store)
	}

	locks := NewKeyedMutex()
	env.reconciliation = NewReconciliationService(
		store, env.reviews, env.signer, locks, env.publisher,
		metrics.NewReconciliationMetrics(registry, log), log,
	)
	prices := NewStaticPriceCatalog(map[string]map[string]int64{
		"Pride Wash": {"Sedan": 45000, "SUV": 55000},
	})
	env.bookings = NewBookingService(
		BookingServiceConfig{Merchant: testMerchant},
		store, env.paymentMethods, prices, env.signer, env.gateway, env.reconciliation,
		locks, env.publisher, metrics.NewBookingMetrics(registry, log), log,
	)
	env.tokenization = NewTokenizationService(
		testMerchant, 5*time.Minute, env.paymentMethods, env.signer, env.gateway,
		metrics.NewTokenizationMetrics(registry, log), log,
	)
	return env
}

func customer(id string) domain.Actor {
	return domain.Actor{
		ID:              id,
		Email:           id + "@example.com",
		FirstName:       "Thandi",
		LastName:        "Nkosi",
		Role:            domain.RoleCustomer,
		AuthenticatedAt: time.Now().UTC(),
	}
}

func detailer(id string) domain.Actor {
	return domain.Actor{ID: id, Role: domain.RoleDetailer, AuthenticatedAt: time.Now().UTC()}
}

var admin = domain.Actor{ID: "admin", Role: domain.RoleAdmin}

func tomorrow() string {
	return time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
}

func validDraft(paymentMethod string) domain.BookingDraft {
	return domain.BookingDraft{
		Service:       "Pride Wash",
		ScheduledDate: tomorrow(),
		ScheduledTime: "10:00 AM",
		Address:       "12 Oak St",
		VehicleType:   "Sedan",
		PaymentMethod: paymentMethod,
	}
}

// storeCard сохраняет карту с токеном напрямую в репозиторий
func (e *testEnv) storeCard(t *testing.T, userID, token string) *domain.PaymentMethod {
	t.Helper()
	now := time.Now().UTC()
	m, err := e.paymentMethods.Insert(context.Background(), &domain.PaymentMethod{
		ID:          "pm_" + token,
		UserID:      userID,
		Token:       token,
		Alias:       "Card " + token,
		Last4Digits: "4242",
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	return m
}

// pendingBooking создает бронирование в статусе PENDING_PAYMENT, оплачиваемое картой
func (e *testEnv) pendingBooking(t *testing.T, actor domain.Actor) *domain.Booking {
	t.Helper()
	e.storeCard(t, actor.ID, "tok_abc")
	b, err := e.bookings.Submit(context.Background(), actor, validDraft("tok_abc"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return b
}

// notification собирает подписанное уведомление шлюза
func (e *testEnv) notification(txID, bookingID, amount string, status domain.NotificationStatus) map[string]string {
	params := map[string]string{
		domain.FieldGatewayTransactionID: txID,
		domain.FieldBookingID:            bookingID,
		domain.FieldAmount:               amount,
		domain.FieldPaymentStatus:        string(status),
		"merchant_id":                    testMerchant.MerchantID,
	}
	signed, _ := e.signer.Signed(params)
	return signed
}

func (e *testEnv) booking(t *testing.T, id string) *domain.Booking {
	t.Helper()
	b, err := e.store.Bookings().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return b
}

func (e *testEnv) transactions(t *testing.T, bookingID string) []*domain.PaymentTransaction {
	t.Helper()
	list, err := e.store.Transactions().ListByBooking(context.Background(), bookingID)
	if err != nil {
		t.Fatalf("ListByBooking(%s) error = %v", bookingID, err)
	}
	return list
}
