package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `gateway_transaction_id, booking_id, amount_minor_units, signature, status, created_at, updated_at`

// TransactionRepository реализация репозитория транзакций через PostgreSQL
type TransactionRepository struct {
	q   querier
	log *logger.Logger
}

func scanTransaction(row pgx.Row) (*domain.PaymentTransaction, error) {
	var tx domain.PaymentTransaction
	if err := row.Scan(
		&tx.GatewayTransactionID,
		&tx.BookingID,
		&tx.AmountMinorUnits,
		&tx.Signature,
		&tx.Status,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Get возвращает транзакцию по идентификатору шлюза
func (r *TransactionRepository) Get(ctx context.Context, id string) (*domain.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE gateway_transaction_id = $1`

	tx, err := scanTransaction(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("payment transaction", id)
		}
		return nil, fmt.Errorf("failed to get payment transaction: %w", err)
	}
	return tx, nil
}

// ListByBooking возвращает транзакции бронирования в порядке создания
func (r *TransactionRepository) ListByBooking(ctx context.Context, bookingID string) ([]*domain.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE booking_id = $1 ORDER BY created_at`

	rows, err := r.q.Query(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment transactions: %w", err)
	}
	defer rows.Close()

	var out []*domain.PaymentTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment transactions: %w", err)
	}
	return out, nil
}

// Insert сохраняет транзакцию; повторный идентификатор шлюза - ErrDuplicate
func (r *TransactionRepository) Insert(ctx context.Context, tx *domain.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.q.Exec(ctx, query,
		tx.GatewayTransactionID,
		tx.BookingID,
		tx.AmountMinorUnits,
		tx.Signature,
		tx.Status,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDuplicateError("payment transaction", "gateway_transaction_id", tx.GatewayTransactionID)
		}
		r.log.Errorw("Failed to insert payment transaction", "error", err, "gatewayTransactionID", tx.GatewayTransactionID)
		return fmt.Errorf("failed to insert payment transaction: %w", err)
	}
	return nil
}

// Update обновляет статус, сумму и подпись транзакции
func (r *TransactionRepository) Update(ctx context.Context, tx *domain.PaymentTransaction) error {
	query := `
		UPDATE payment_transactions
		SET amount_minor_units = $2, signature = $3, status = $4, updated_at = $5
		WHERE gateway_transaction_id = $1
	`

	result, err := r.q.Exec(ctx, query, tx.GatewayTransactionID, tx.AmountMinorUnits, tx.Signature, tx.Status, tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update payment transaction: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("payment transaction", tx.GatewayTransactionID)
	}
	return nil
}
