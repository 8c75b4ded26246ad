package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/jackc/pgx/v5"
)

const bookingColumns = `id, customer_id, detailer_id, service_id, vehicle_type, scheduled_at, address,
	payment_method, price_minor_units, status, payment_id, payment_status, created_at, updated_at`

// BookingRepository реализация репозитория бронирований через PostgreSQL
type BookingRepository struct {
	q   querier
	log *logger.Logger
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID,
		&b.CustomerID,
		&b.DetailerID,
		&b.ServiceID,
		&b.VehicleType,
		&b.ScheduledAt,
		&b.Address,
		&b.PaymentMethod,
		&b.PriceMinorUnits,
		&b.Status,
		&b.PaymentID,
		&b.PaymentStatus,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create сохраняет новое бронирование
func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.q.Exec(ctx, query,
		b.ID,
		b.CustomerID,
		b.DetailerID,
		b.ServiceID,
		b.VehicleType,
		b.ScheduledAt,
		b.Address,
		b.PaymentMethod,
		b.PriceMinorUnits,
		b.Status,
		b.PaymentID,
		b.PaymentStatus,
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDuplicateError("booking", "id", b.ID)
		}
		r.log.Errorw("Failed to create booking", "error", err, "bookingID", b.ID)
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// Get возвращает бронирование по ID
func (r *BookingRepository) Get(ctx context.Context, id string) (*domain.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetForUpdate возвращает бронирование и блокирует строку до конца транзакции
func (r *BookingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *BookingRepository) get(ctx context.Context, query, id string) (*domain.Booking, error) {
	b, err := scanBooking(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("booking", id)
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// Update сохраняет изменяемые поля бронирования
func (r *BookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	query := `
		UPDATE bookings
		SET detailer_id = $2, status = $3, payment_id = $4, payment_status = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, b.ID, b.DetailerID, b.Status, b.PaymentID, b.PaymentStatus, b.UpdatedAt)
	if err != nil {
		r.log.Errorw("Failed to update booking", "error", err, "bookingID", b.ID)
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("booking", b.ID)
	}
	return nil
}

// ListByCustomer возвращает бронирования клиента, новые первыми
func (r *BookingRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE customer_id = $1 ORDER BY created_at DESC`

	rows, err := r.q.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}
