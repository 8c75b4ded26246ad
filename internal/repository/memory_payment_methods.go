package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
)

// InMemoryPaymentMethodRepository реализация хранилища способов оплаты в памяти.
// Один мьютекс охватывает и способы оплаты, и default-токен пользователя.
type InMemoryPaymentMethodRepository struct {
	mu       sync.RWMutex
	methods  map[string]map[string]*domain.PaymentMethod
	defaults map[string]string
	log      *logger.Logger
}

// NewInMemoryPaymentMethodRepository создает новое хранилище способов оплаты в памяти
func NewInMemoryPaymentMethodRepository(log *logger.Logger) *InMemoryPaymentMethodRepository {
	return &InMemoryPaymentMethodRepository{
		methods:  make(map[string]map[string]*domain.PaymentMethod),
		defaults: make(map[string]string),
		log:      log,
	}
}

// ListByUser возвращает способы оплаты пользователя в порядке добавления
func (r *InMemoryPaymentMethodRepository) ListByUser(_ context.Context, userID string) ([]*domain.PaymentMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.PaymentMethod, 0, len(r.methods[userID]))
	for _, m := range r.methods[userID] {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Get возвращает способ оплаты пользователя по ID
func (r *InMemoryPaymentMethodRepository) Get(_ context.Context, userID, methodID string) (*domain.PaymentMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.methods[userID][methodID]
	if !ok {
		return nil, domain.ErrPaymentMethodNotFound
	}
	return m.Clone(), nil
}

// GetByToken возвращает способ оплаты пользователя по токену
func (r *InMemoryPaymentMethodRepository) GetByToken(_ context.Context, userID, token string) (*domain.PaymentMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.methods[userID] {
		if m.Token == token {
			return m.Clone(), nil
		}
	}
	return nil, domain.ErrPaymentMethodNotFound
}

// Insert сохраняет новый способ оплаты
func (r *InMemoryPaymentMethodRepository) Insert(_ context.Context, m *domain.PaymentMethod) (*domain.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userMethods, ok := r.methods[m.UserID]
	if !ok {
		userMethods = make(map[string]*domain.PaymentMethod)
		r.methods[m.UserID] = userMethods
	}
	if _, exists := userMethods[m.ID]; exists {
		return nil, domain.NewDuplicateError("payment method", "id", m.ID)
	}
	for _, existing := range userMethods {
		if existing.Token == m.Token {
			return nil, domain.NewDuplicateError("payment method", "token", m.Token)
		}
	}

	stored := m.Clone()
	stored.IsDefault = len(userMethods) == 0
	userMethods[stored.ID] = stored
	if stored.IsDefault {
		r.defaults[m.UserID] = stored.Token
	}
	return stored.Clone(), nil
}

// UpdateDetails обновляет alias, token и brand; последние 4 цифры не меняются
func (r *InMemoryPaymentMethodRepository) UpdateDetails(_ context.Context, m *domain.PaymentMethod) (*domain.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.methods[m.UserID][m.ID]
	if !ok {
		return nil, domain.ErrPaymentMethodNotFound
	}

	if m.Token != "" && m.Token != existing.Token {
		for id, other := range r.methods[m.UserID] {
			if id != m.ID && other.Token == m.Token {
				return nil, domain.NewDuplicateError("payment method", "token", m.Token)
			}
		}
	}

	updated := existing.Clone()
	updated.Alias = m.Alias
	updated.Brand = m.Brand
	if m.Token != "" {
		updated.Token = m.Token
	}
	updated.UpdatedAt = m.UpdatedAt

	if updated.IsDefault {
		r.defaults[m.UserID] = updated.Token
	}
	r.methods[m.UserID][m.ID] = updated
	return updated.Clone(), nil
}

// Delete удаляет способ оплаты; если он был основным, основной сбрасывается без замены
func (r *InMemoryPaymentMethodRepository) Delete(_ context.Context, userID, methodID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.methods[userID][methodID]
	if !ok {
		return false, domain.ErrPaymentMethodNotFound
	}
	delete(r.methods[userID], methodID)
	if existing.IsDefault {
		delete(r.defaults, userID)
	}
	return existing.IsDefault, nil
}

// SetDefault делает способ оплаты основным, снимая флаг с остальных
func (r *InMemoryPaymentMethodRepository) SetDefault(_ context.Context, userID, methodID string) (*domain.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.methods[userID][methodID]
	if !ok {
		return nil, domain.ErrPaymentMethodNotFound
	}

	for id, m := range r.methods[userID] {
		if m.IsDefault == (id == methodID) {
			continue
		}
		c := m.Clone()
		c.IsDefault = id == methodID
		r.methods[userID][id] = c
	}
	r.defaults[userID] = target.Token
	return r.methods[userID][methodID].Clone(), nil
}

// DefaultToken возвращает токен основного способа оплаты или пустую строку
func (r *InMemoryPaymentMethodRepository) DefaultToken(_ context.Context, userID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults[userID], nil
}
