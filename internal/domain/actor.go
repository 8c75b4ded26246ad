package domain

import "time"

// Role роль пользователя
type Role string

const (
	RoleCustomer Role = "customer"
	RoleDetailer Role = "detailer"
	RoleAdmin    Role = "admin"
)

// Actor аутентифицированный пользователь, выполняющий операцию
type Actor struct {
	ID              string
	Email           string
	FirstName       string
	LastName        string
	Role            Role
	AuthenticatedAt time.Time
}

// IsAdmin проверяет роль администратора
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Owns проверяет, принадлежит ли бронирование пользователю
func (a Actor) Owns(b *Booking) bool {
	return a.ID != "" && a.ID == b.CustomerID
}

// IsAssignedTo проверяет, назначен ли пользователь исполнителем бронирования
func (a Actor) IsAssignedTo(b *Booking) bool {
	return a.ID != "" && a.ID == b.DetailerID
}

// AuthenticatedWithin проверяет, что вход выполнен не раньше window назад
func (a Actor) AuthenticatedWithin(window time.Duration, now time.Time) bool {
	if window <= 0 {
		return true
	}
	return !a.AuthenticatedAt.IsZero() && now.Sub(a.AuthenticatedAt) <= window
}
