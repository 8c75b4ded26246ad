package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate дубликат записи
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrUnauthenticated пользователь не аутентифицирован
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden действие запрещено для текущего пользователя
	ErrForbidden = errors.New("forbidden")

	// ErrReauthRequired требуется повторная аутентификация перед изменением платежных данных
	ErrReauthRequired = errors.New("reauthentication required")

	// ErrIllegalTransition недопустимый переход статуса бронирования
	ErrIllegalTransition = errors.New("illegal booking status transition")

	// ErrExternalServiceUnavailable внешний сервис недоступен
	ErrExternalServiceUnavailable = errors.New("external service unavailable")

	// ErrSignatureMismatch подпись уведомления шлюза не совпала
	ErrSignatureMismatch = errors.New("gateway signature mismatch")

	// ErrAmountMismatch сумма уведомления не совпадает с ценой бронирования
	ErrAmountMismatch = errors.New("settlement amount mismatch")

	// ErrLateSettlement оплата пришла для бронирования, которое уже не ожидает оплаты
	ErrLateSettlement = errors.New("settlement for booking not awaiting payment")

	// ErrPaymentMethodNotFound метод оплаты не найден
	ErrPaymentMethodNotFound = errors.New("payment method not found")

	// ErrPaymentInFlight платеж по бронированию уже отправлен шлюзу и ждет уведомления
	ErrPaymentInFlight = errors.New("payment already initiated")

	// ErrCashPayment бронирование оплачивается наличными и не отправляется в шлюз
	ErrCashPayment = errors.New("booking is paid in cash")

	// ErrMalformedNotification в уведомлении отсутствуют обязательные поля
	ErrMalformedNotification = errors.New("malformed gateway notification")
)

// ValidationError представляет ошибку валидации
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors представляет набор ошибок валидации
type ValidationErrors []ValidationError

// Error реализует интерфейс error
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}

	if len(e) == 1 {
		return fmt.Sprintf("validation failed: %s - %s", e[0].Field, e[0].Message)
	}

	return fmt.Sprintf("validation failed: %d errors", len(e))
}

// Is позволяет сравнивать с ErrInvalidInput
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidInput
}

// Add добавляет ошибку валидации
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// HasErrors проверяет наличие ошибок
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields возвращает список полей с ошибками
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}

// TransitionError описывает отклоненный переход статуса
type TransitionError struct {
	BookingID string
	From      BookingStatus
	To        BookingStatus
	Reason    string
}

// Error реализует интерфейс error
func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("booking %s: cannot move from %s to %s: %s", e.BookingID, e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("booking %s: cannot move from %s to %s", e.BookingID, e.From, e.To)
}

// Is проверяет, является ли ошибка ошибкой перехода
func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// ExternalServiceError представляет ошибку внешнего сервиса
type ExternalServiceError struct {
	Service     string
	Code        string
	Message     string
	StatusCode  int
	OriginalErr error
}

// Error реализует интерфейс error
func (e *ExternalServiceError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s service error [%s]: %s: %v", e.Service, e.Code, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("%s service error [%s]: %s", e.Service, e.Code, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *ExternalServiceError) Unwrap() error {
	return e.OriginalErr
}

// Is сопоставляет ошибку с ErrExternalServiceUnavailable
func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrExternalServiceUnavailable
}

// NewExternalServiceError создает новую ошибку внешнего сервиса
func NewExternalServiceError(service, code, message string, statusCode int, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:     service,
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		OriginalErr: err,
	}
}

// AmountMismatchError сумма в уведомлении отличается от цены бронирования
type AmountMismatchError struct {
	BookingID string
	Expected  int64
	Received  int64
}

// Error реализует интерфейс error
func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("booking %s: expected %d minor units, notification carried %d", e.BookingID, e.Expected, e.Received)
}

// Is сопоставляет ошибку с ErrAmountMismatch
func (e *AmountMismatchError) Is(target error) bool {
	return target == ErrAmountMismatch
}

// NotFoundError представляет ошибку "не найдено"
type NotFoundError struct {
	Entity string
	ID     string
}

// Error реализует интерфейс error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Is проверяет, является ли ошибка ошибкой типа "не найдено"
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError создает новую ошибку "не найдено"
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// DuplicateError представляет ошибку дубликата
type DuplicateError struct {
	Entity string
	Field  string
	Value  string
}

// Error реализует интерфейс error
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s with %s '%s' already exists", e.Entity, e.Field, e.Value)
}

// Is проверяет, является ли ошибка ошибкой дубликата
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// NewDuplicateError создает новую ошибку дубликата
func NewDuplicateError(entity, field, value string) *DuplicateError {
	return &DuplicateError{
		Entity: entity,
		Field:  field,
		Value:  value,
	}
}
