package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/google/uuid"
)

// InMemoryReviewQueue очередь ручной сверки в памяти
type InMemoryReviewQueue struct {
	mu      sync.Mutex
	reviews map[string]domain.Review
}

// NewInMemoryReviewQueue создает новую очередь в памяти
func NewInMemoryReviewQueue() *InMemoryReviewQueue {
	return &InMemoryReviewQueue{reviews: make(map[string]domain.Review)}
}

// Flag добавляет запись, если открытой записи с той же транзакцией и причиной еще нет
func (q *InMemoryReviewQueue) Flag(_ context.Context, r *domain.Review) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.reviews {
		if existing.Status == domain.ReviewStatusOpen &&
			existing.GatewayTransactionID == r.GatewayTransactionID &&
			existing.Reason == r.Reason {
			*r = existing
			return false, nil
		}
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Status = domain.ReviewStatusOpen
	q.reviews[r.ID] = *r
	return true, nil
}

// ListOpen возвращает открытые записи, старые первыми
func (q *InMemoryReviewQueue) ListOpen(_ context.Context) ([]domain.Review, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.Review, 0, len(q.reviews))
	for _, r := range q.reviews {
		if r.Status == domain.ReviewStatusOpen {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Resolve закрывает запись с комментарием
func (q *InMemoryReviewQueue) Resolve(_ context.Context, id, note string) (*domain.Review, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.reviews[id]
	if !ok {
		return nil, domain.NewNotFoundError("review", id)
	}
	if r.Status == domain.ReviewStatusResolved {
		return &r, nil
	}

	now := time.Now().UTC()
	r.Status = domain.ReviewStatusResolved
	r.Note = note
	r.ResolvedAt = &now
	q.reviews[id] = r
	return &r, nil
}
