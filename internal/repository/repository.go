// Package repository описывает хранилища бронирований, транзакций, способов оплаты
// и очереди ручной сверки, а также их реализации в памяти и кеширующий декоратор.
package repository

import (
	"context"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
)

// BookingRepository интерфейс для работы с бронированиями
type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) error
	Get(ctx context.Context, id string) (*domain.Booking, error)
	// GetForUpdate читает бронирование с блокировкой строки до конца транзакции
	GetForUpdate(ctx context.Context, id string) (*domain.Booking, error)
	Update(ctx context.Context, b *domain.Booking) error
	ListByCustomer(ctx context.Context, customerID string) ([]*domain.Booking, error)
}

// TransactionRepository интерфейс для работы с платежными транзакциями.
// Ключ - идентификатор транзакции шлюза, повторная вставка возвращает ErrDuplicate.
type TransactionRepository interface {
	Get(ctx context.Context, gatewayTransactionID string) (*domain.PaymentTransaction, error)
	ListByBooking(ctx context.Context, bookingID string) ([]*domain.PaymentTransaction, error)
	Insert(ctx context.Context, tx *domain.PaymentTransaction) error
	Update(ctx context.Context, tx *domain.PaymentTransaction) error
}

// Store объединяет бронирования и транзакции под общей транзакцией хранилища
type Store interface {
	Bookings() BookingRepository
	Transactions() TransactionRepository
	// InTx выполняет fn атомарно: либо применяются все записи, либо ни одной
	InTx(ctx context.Context, fn func(Store) error) error
}

// PaymentMethodRepository хранилище способов оплаты пользователя.
// Все методы, меняющие флаг по умолчанию, атомарны вместе с полем default_payment_token пользователя.
type PaymentMethodRepository interface {
	ListByUser(ctx context.Context, userID string) ([]*domain.PaymentMethod, error)
	Get(ctx context.Context, userID, methodID string) (*domain.PaymentMethod, error)
	GetByToken(ctx context.Context, userID, token string) (*domain.PaymentMethod, error)
	// Insert сохраняет способ оплаты; первый способ пользователя становится основным
	Insert(ctx context.Context, m *domain.PaymentMethod) (*domain.PaymentMethod, error)
	// UpdateDetails меняет только alias, token и brand
	UpdateDetails(ctx context.Context, m *domain.PaymentMethod) (*domain.PaymentMethod, error)
	// Delete удаляет способ оплаты и сбрасывает основной, если удален он
	Delete(ctx context.Context, userID, methodID string) (wasDefault bool, err error)
	// SetDefault делает способ основным и снимает флаг с предыдущего
	SetDefault(ctx context.Context, userID, methodID string) (*domain.PaymentMethod, error)
	DefaultToken(ctx context.Context, userID string) (string, error)
}

// ReviewQueue очередь ручной сверки платежей.
// Flag идемпотентен по паре (gateway_transaction_id, reason) для открытых записей.
type ReviewQueue interface {
	Flag(ctx context.Context, r *domain.Review) (created bool, err error)
	ListOpen(ctx context.Context) ([]domain.Review, error)
	Resolve(ctx context.Context, id, note string) (*domain.Review, error)
}
