package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const reviewSchema = `
CREATE TABLE IF NOT EXISTS payment_reviews (
    id                     TEXT PRIMARY KEY,
    booking_id             TEXT        NOT NULL DEFAULT '',
    gateway_transaction_id TEXT        NOT NULL,
    reason                 TEXT        NOT NULL,
    expected_minor_units   BIGINT      NOT NULL DEFAULT 0,
    received_minor_units   BIGINT      NOT NULL DEFAULT 0,
    payload                TEXT        NOT NULL DEFAULT '',
    status                 TEXT        NOT NULL,
    note                   TEXT        NOT NULL DEFAULT '',
    created_at             TIMESTAMPTZ NOT NULL,
    resolved_at            TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_reviews_open
    ON payment_reviews (gateway_transaction_id, reason) WHERE status = 'open';
`

const reviewColumns = `id, booking_id, gateway_transaction_id, reason, expected_minor_units,
	received_minor_units, payload, status, note, created_at, resolved_at`

// ReviewStore очередь ручной сверки платежей в PostgreSQL
type ReviewStore struct {
	client *DBClient
}

// NewReviewStore создает новую очередь ручной сверки
func NewReviewStore(client *DBClient) *ReviewStore {
	return &ReviewStore{client: client}
}

// EnsureSchema создает таблицу очереди, если ее нет
func (s *ReviewStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.db.ExecContext(ctx, reviewSchema); err != nil {
		return fmt.Errorf("failed to create review schema: %w", err)
	}
	return nil
}

// Flag добавляет запись; открытая запись с той же транзакцией и причиной не дублируется
func (s *ReviewStore) Flag(ctx context.Context, r *domain.Review) (bool, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Status = domain.ReviewStatusOpen

	created := false
	err := s.client.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO payment_reviews (`+reviewColumns+`)
			VALUES (:id, :booking_id, :gateway_transaction_id, :reason, :expected_minor_units,
			        :received_minor_units, :payload, :status, :note, :created_at, :resolved_at)
			ON CONFLICT (gateway_transaction_id, reason) WHERE status = 'open' DO NOTHING
		`, r)
		if err != nil {
			return fmt.Errorf("failed to insert review: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows count: %w", err)
		}
		if n > 0 {
			created = true
			return nil
		}

		return tx.QueryRowxContext(ctx, `
			SELECT `+reviewColumns+` FROM payment_reviews
			WHERE gateway_transaction_id = $1 AND reason = $2 AND status = 'open'
		`, r.GatewayTransactionID, r.Reason).StructScan(r)
	})
	if err != nil {
		s.client.log.Errorw("Failed to flag payment for review", "error", err, "gatewayTransactionID", r.GatewayTransactionID)
		return false, err
	}

	if created {
		s.client.log.Infow("Payment flagged for manual review", "reviewID", r.ID, "reason", r.Reason, "bookingID", r.BookingID)
	}
	return created, nil
}

// ListOpen возвращает открытые записи, старые первыми
func (s *ReviewStore) ListOpen(ctx context.Context) ([]domain.Review, error) {
	reviews := make([]domain.Review, 0)
	err := s.client.db.SelectContext(ctx, &reviews,
		`SELECT `+reviewColumns+` FROM payment_reviews WHERE status = 'open' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

// Resolve закрывает запись с комментарием; повторное закрытие возвращает запись без изменений
func (s *ReviewStore) Resolve(ctx context.Context, id, note string) (*domain.Review, error) {
	var r domain.Review

	err := s.client.db.QueryRowxContext(ctx, `
		UPDATE payment_reviews
		SET status = 'resolved', note = $2, resolved_at = now()
		WHERE id = $1 AND status = 'open'
		RETURNING `+reviewColumns, id, note).StructScan(&r)
	if err == nil {
		return &r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve review: %w", err)
	}

	err = s.client.db.GetContext(ctx, &r, `SELECT `+reviewColumns+` FROM payment_reviews WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("review", id)
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return &r, nil
}
