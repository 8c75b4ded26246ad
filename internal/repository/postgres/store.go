package postgres

import (
	"context"
	"errors"

	"github.com/Dhoini/kleenpride-booking-service/internal/repository"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier общий интерфейс пула и транзакции pgx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store реализация repository.Store через PostgreSQL
type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
	log  *logger.Logger
}

// NewStore создает новое хранилище PostgreSQL
func NewStore(pool *pgxpool.Pool, log *logger.Logger) *Store {
	return &Store{pool: pool, q: pool, log: log}
}

// Bookings возвращает репозиторий бронирований
func (s *Store) Bookings() repository.BookingRepository {
	return &BookingRepository{q: s.q, log: s.log}
}

// Transactions возвращает репозиторий транзакций
func (s *Store) Transactions() repository.TransactionRepository {
	return &TransactionRepository{q: s.q, log: s.log}
}

// InTx выполняет fn в транзакции БД. Откат выполняется и при отмене ctx.
func (s *Store) InTx(ctx context.Context, fn func(repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&Store{pool: s.pool, q: tx, inTx: true, log: s.log})
	})
}

// isUniqueViolation проверяет код ошибки на нарушение уникальности
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
