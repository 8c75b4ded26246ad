package repository

import (
	"context"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
)

// CachedStore реализует Store с кешированием бронирований.
// Чтения внутри InTx и GetForUpdate всегда идут в основное хранилище.
type CachedStore struct {
	inner Store
	cache *BookingCache
	log   *logger.Logger
}

// NewCachedStore создает новое хранилище с кешированием
func NewCachedStore(inner Store, cache *BookingCache, log *logger.Logger) *CachedStore {
	return &CachedStore{inner: inner, cache: cache, log: log}
}

// Bookings возвращает репозиторий бронирований с кешем
func (s *CachedStore) Bookings() BookingRepository {
	return &cachedBookings{BookingRepository: s.inner.Bookings(), cache: s.cache, log: s.log}
}

// Transactions возвращает репозиторий транзакций без кеша
func (s *CachedStore) Transactions() TransactionRepository {
	return s.inner.Transactions()
}

// InTx выполняет fn в транзакции основного хранилища и после фиксации
// инвалидирует все затронутые бронирования
func (s *CachedStore) InTx(ctx context.Context, fn func(Store) error) error {
	touched := make(map[string]struct{})

	err := s.inner.InTx(ctx, func(tx Store) error {
		return fn(&trackingStore{Store: tx, touched: touched})
	})
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), ids...); err != nil {
		s.log.Warnw("Failed to invalidate booking cache after commit", "error", err, "bookingIDs", ids)
	}
	return nil
}

type cachedBookings struct {
	BookingRepository
	cache *BookingCache
	log   *logger.Logger
}

// Get получает бронирование (сначала из кеша, потом из БД)
func (r *cachedBookings) Get(ctx context.Context, id string) (*domain.Booking, error) {
	cached, err := r.cache.Get(ctx, id)
	if err != nil {
		r.log.Warnw("Error getting booking from cache", "error", err, "bookingID", id)
	}
	if cached != nil {
		return cached, nil
	}

	b, err := r.BookingRepository.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Put(ctx, b); err != nil {
		r.log.Warnw("Failed to cache booking after fetching", "error", err, "bookingID", id)
	}
	return b, nil
}

// Create сохраняет бронирование в БД и кеширует его
func (r *cachedBookings) Create(ctx context.Context, b *domain.Booking) error {
	if err := r.BookingRepository.Create(ctx, b); err != nil {
		return err
	}
	if err := r.cache.Put(ctx, b); err != nil {
		r.log.Warnw("Failed to cache booking after creation", "error", err, "bookingID", b.ID)
	}
	return nil
}

// Update обновляет бронирование и удаляет его из кеша
func (r *cachedBookings) Update(ctx context.Context, b *domain.Booking) error {
	if err := r.BookingRepository.Update(ctx, b); err != nil {
		return err
	}
	if err := r.cache.Invalidate(ctx, b.ID); err != nil {
		r.log.Warnw("Failed to invalidate booking cache", "error", err, "bookingID", b.ID)
	}
	return nil
}

// trackingStore запоминает бронирования, записанные внутри транзакции
type trackingStore struct {
	Store
	touched map[string]struct{}
}

func (t *trackingStore) Bookings() BookingRepository {
	return &trackingBookings{BookingRepository: t.Store.Bookings(), touched: t.touched}
}

func (t *trackingStore) InTx(ctx context.Context, fn func(Store) error) error {
	return fn(t)
}

type trackingBookings struct {
	BookingRepository
	touched map[string]struct{}
}

func (r *trackingBookings) Create(ctx context.Context, b *domain.Booking) error {
	if err := r.BookingRepository.Create(ctx, b); err != nil {
		return err
	}
	r.touched[b.ID] = struct{}{}
	return nil
}

func (r *trackingBookings) Update(ctx context.Context, b *domain.Booking) error {
	if err := r.BookingRepository.Update(ctx, b); err != nil {
		return err
	}
	r.touched[b.ID] = struct{}{}
	return nil
}
