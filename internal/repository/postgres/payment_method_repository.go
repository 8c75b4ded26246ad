package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const methodColumns = `id, user_id, token, alias, last4_digits, brand, is_default, created_at, updated_at`

// PaymentMethodRepository реализация хранилища способов оплаты через PostgreSQL.
// Изменения флага по умолчанию выполняются в транзакции под блокировкой строки пользователя.
type PaymentMethodRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPaymentMethodRepository создает новый репозиторий способов оплаты
func NewPaymentMethodRepository(pool *pgxpool.Pool, log *logger.Logger) *PaymentMethodRepository {
	return &PaymentMethodRepository{pool: pool, log: log}
}

func scanMethod(row pgx.Row) (*domain.PaymentMethod, error) {
	var m domain.PaymentMethod
	if err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.Token,
		&m.Alias,
		&m.Last4Digits,
		&m.Brand,
		&m.IsDefault,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentMethodNotFound
		}
		return nil, err
	}
	return &m, nil
}

// lockUser создает запись пользователя при необходимости и блокирует ее
func lockUser(ctx context.Context, tx pgx.Tx, userID string) error {
	if _, err := tx.Exec(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID); err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID); err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	return nil
}

func setDefaultToken(ctx context.Context, tx pgx.Tx, userID, token string) error {
	_, err := tx.Exec(ctx, `UPDATE users SET default_payment_token = $2, updated_at = now() WHERE id = $1`, userID, token)
	if err != nil {
		return fmt.Errorf("failed to update default payment token: %w", err)
	}
	return nil
}

// ListByUser возвращает способы оплаты пользователя в порядке добавления
func (r *PaymentMethodRepository) ListByUser(ctx context.Context, userID string) ([]*domain.PaymentMethod, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+methodColumns+` FROM payment_methods WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment methods: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.PaymentMethod, 0)
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment methods: %w", err)
	}
	return out, nil
}

// Get возвращает способ оплаты пользователя по ID
func (r *PaymentMethodRepository) Get(ctx context.Context, userID, methodID string) (*domain.PaymentMethod, error) {
	return scanMethod(r.pool.QueryRow(ctx,
		`SELECT `+methodColumns+` FROM payment_methods WHERE user_id = $1 AND id = $2`, userID, methodID))
}

// GetByToken возвращает способ оплаты пользователя по токену
func (r *PaymentMethodRepository) GetByToken(ctx context.Context, userID, token string) (*domain.PaymentMethod, error) {
	return scanMethod(r.pool.QueryRow(ctx,
		`SELECT `+methodColumns+` FROM payment_methods WHERE user_id = $1 AND token = $2`, userID, token))
}

// Insert сохраняет способ оплаты; первый способ пользователя становится основным
func (r *PaymentMethodRepository) Insert(ctx context.Context, m *domain.PaymentMethod) (*domain.PaymentMethod, error) {
	var stored *domain.PaymentMethod

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, m.UserID); err != nil {
			return err
		}

		var existing int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM payment_methods WHERE user_id = $1`, m.UserID).Scan(&existing); err != nil {
			return fmt.Errorf("failed to count payment methods: %w", err)
		}

		query := `
			INSERT INTO payment_methods (` + methodColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING ` + methodColumns

		var err error
		stored, err = scanMethod(tx.QueryRow(ctx, query,
			m.ID, m.UserID, m.Token, m.Alias, m.Last4Digits, m.Brand, existing == 0, m.CreatedAt, m.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return domain.NewDuplicateError("payment method", "token", m.Token)
			}
			return fmt.Errorf("failed to insert payment method: %w", err)
		}

		if stored.IsDefault {
			return setDefaultToken(ctx, tx, m.UserID, stored.Token)
		}
		return nil
	})
	if err != nil {
		r.log.Errorw("Failed to insert payment method", "error", err, "userID", m.UserID)
		return nil, err
	}
	return stored, nil
}

// UpdateDetails меняет alias, token и brand; last4_digits не изменяется
func (r *PaymentMethodRepository) UpdateDetails(ctx context.Context, m *domain.PaymentMethod) (*domain.PaymentMethod, error) {
	var updated *domain.PaymentMethod

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, m.UserID); err != nil {
			return err
		}

		query := `
			UPDATE payment_methods
			SET alias = $3, brand = $4, token = COALESCE(NULLIF($5, ''), token), updated_at = $6
			WHERE user_id = $1 AND id = $2
			RETURNING ` + methodColumns

		var err error
		updated, err = scanMethod(tx.QueryRow(ctx, query, m.UserID, m.ID, m.Alias, m.Brand, m.Token, m.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return domain.NewDuplicateError("payment method", "token", m.Token)
			}
			return err
		}

		if updated.IsDefault {
			return setDefaultToken(ctx, tx, m.UserID, updated.Token)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete удаляет способ оплаты; основной не переназначается автоматически
func (r *PaymentMethodRepository) Delete(ctx context.Context, userID, methodID string) (bool, error) {
	var wasDefault bool

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}

		err := tx.QueryRow(ctx,
			`DELETE FROM payment_methods WHERE user_id = $1 AND id = $2 RETURNING is_default`, userID, methodID,
		).Scan(&wasDefault)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrPaymentMethodNotFound
			}
			return fmt.Errorf("failed to delete payment method: %w", err)
		}

		if wasDefault {
			return setDefaultToken(ctx, tx, userID, "")
		}
		return nil
	})
	return wasDefault, err
}

// SetDefault делает способ оплаты основным и снимает флаг с предыдущего в одной транзакции
func (r *PaymentMethodRepository) SetDefault(ctx context.Context, userID, methodID string) (*domain.PaymentMethod, error) {
	var target *domain.PaymentMethod

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE payment_methods SET is_default = FALSE, updated_at = now() WHERE user_id = $1 AND is_default AND id <> $2`,
			userID, methodID,
		); err != nil {
			return fmt.Errorf("failed to clear default payment method: %w", err)
		}

		var err error
		target, err = scanMethod(tx.QueryRow(ctx,
			`UPDATE payment_methods SET is_default = TRUE, updated_at = now() WHERE user_id = $1 AND id = $2 RETURNING `+methodColumns,
			userID, methodID,
		))
		if err != nil {
			return err
		}

		return setDefaultToken(ctx, tx, userID, target.Token)
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

// DefaultToken возвращает токен основного способа оплаты или пустую строку
func (r *PaymentMethodRepository) DefaultToken(ctx context.Context, userID string) (string, error) {
	var token string
	err := r.pool.QueryRow(ctx, `SELECT default_payment_token FROM users WHERE id = $1`, userID).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get default payment token: %w", err)
	}
	return token, nil
}
