package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
)

// memoryState снимок данных хранилища. Значения в картах не изменяются на месте,
// запись всегда подменяет указатель копией.
type memoryState struct {
	bookings     map[string]*domain.Booking
	transactions map[string]*domain.PaymentTransaction
}

func newMemoryState() *memoryState {
	return &memoryState{
		bookings:     make(map[string]*domain.Booking),
		transactions: make(map[string]*domain.PaymentTransaction),
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		bookings:     make(map[string]*domain.Booking, len(s.bookings)),
		transactions: make(map[string]*domain.PaymentTransaction, len(s.transactions)),
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	return c
}

// InMemoryStore реализация Store в памяти.
// writeMu сериализует писателей, mu защищает указатель на текущий снимок.
type InMemoryStore struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   *memoryState
	log     *logger.Logger
}

// NewInMemoryStore создает новое хранилище в памяти
func NewInMemoryStore(log *logger.Logger) *InMemoryStore {
	return &InMemoryStore{
		state: newMemoryState(),
		log:   log,
	}
}

// Bookings возвращает репозиторий бронирований
func (s *InMemoryStore) Bookings() BookingRepository {
	return memoryBookings{view{store: s}}
}

// Transactions возвращает репозиторий транзакций
func (s *InMemoryStore) Transactions() TransactionRepository {
	return memoryTransactions{view{store: s}}
}

// InTx выполняет fn на копии данных и публикует ее только при успехе
func (s *InMemoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	if err := fn(&memoryTx{store: s, state: working}); err != nil {
		s.log.Debugw("In-memory transaction rolled back", "error", err)
		return err
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

// memoryTx представление хранилища внутри InTx
type memoryTx struct {
	store *InMemoryStore
	state *memoryState
}

func (t *memoryTx) Bookings() BookingRepository {
	return memoryBookings{view{store: t.store, tx: t.state}}
}

func (t *memoryTx) Transactions() TransactionRepository {
	return memoryTransactions{view{store: t.store, tx: t.state}}
}

// InTx внутри транзакции выполняет fn в той же транзакции
func (t *memoryTx) InTx(_ context.Context, fn func(Store) error) error {
	return fn(t)
}

type view struct {
	store *InMemoryStore
	tx    *memoryState
}

func (v view) read(fn func(*memoryState) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return fn(v.store.state)
}

func (v view) write(fn func(*memoryState) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.writeMu.Lock()
	defer v.store.writeMu.Unlock()
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

type memoryBookings struct{ view }

func (r memoryBookings) Create(_ context.Context, b *domain.Booking) error {
	return r.write(func(st *memoryState) error {
		if _, exists := st.bookings[b.ID]; exists {
			return domain.NewDuplicateError("booking", "id", b.ID)
		}
		st.bookings[b.ID] = b.Clone()
		return nil
	})
}

func (r memoryBookings) Get(_ context.Context, id string) (*domain.Booking, error) {
	var out *domain.Booking
	err := r.read(func(st *memoryState) error {
		b, ok := st.bookings[id]
		if !ok {
			return domain.NewNotFoundError("booking", id)
		}
		out = b.Clone()
		return nil
	})
	return out, err
}

// GetForUpdate в памяти совпадает с Get: писатели уже сериализованы
func (r memoryBookings) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return r.Get(ctx, id)
}

func (r memoryBookings) Update(_ context.Context, b *domain.Booking) error {
	return r.write(func(st *memoryState) error {
		if _, ok := st.bookings[b.ID]; !ok {
			return domain.NewNotFoundError("booking", b.ID)
		}
		st.bookings[b.ID] = b.Clone()
		return nil
	})
}

func (r memoryBookings) ListByCustomer(_ context.Context, customerID string) ([]*domain.Booking, error) {
	var out []*domain.Booking
	err := r.read(func(st *memoryState) error {
		for _, b := range st.bookings {
			if b.CustomerID == customerID {
				out = append(out, b.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

type memoryTransactions struct{ view }

func (r memoryTransactions) Get(_ context.Context, id string) (*domain.PaymentTransaction, error) {
	var out *domain.PaymentTransaction
	err := r.read(func(st *memoryState) error {
		tx, ok := st.transactions[id]
		if !ok {
			return domain.NewNotFoundError("payment transaction", id)
		}
		out = tx.Clone()
		return nil
	})
	return out, err
}

func (r memoryTransactions) ListByBooking(_ context.Context, bookingID string) ([]*domain.PaymentTransaction, error) {
	var out []*domain.PaymentTransaction
	err := r.read(func(st *memoryState) error {
		for _, tx := range st.transactions {
			if tx.BookingID == bookingID {
				out = append(out, tx.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

func (r memoryTransactions) Insert(_ context.Context, tx *domain.PaymentTransaction) error {
	return r.write(func(st *memoryState) error {
		if _, exists := st.transactions[tx.GatewayTransactionID]; exists {
			return domain.NewDuplicateError("payment transaction", "gateway_transaction_id", tx.GatewayTransactionID)
		}
		st.transactions[tx.GatewayTransactionID] = tx.Clone()
		return nil
	})
}

func (r memoryTransactions) Update(_ context.Context, tx *domain.PaymentTransaction) error {
	return r.write(func(st *memoryState) error {
		if _, ok := st.transactions[tx.GatewayTransactionID]; !ok {
			return domain.NewNotFoundError("payment transaction", tx.GatewayTransactionID)
		}
		st.transactions[tx.GatewayTransactionID] = tx.Clone()
		return nil
	})
}
