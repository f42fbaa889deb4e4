// Package model содержит доменные сущности сервиса печати и лояльности.
package model

import "time"

// Role описывает роль участника системы.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleLocation Role = "location"
	RoleAdmin    Role = "admin"
)

// Valid сообщает, является ли роль известной.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleLocation, RoleAdmin:
		return true
	}
	return false
}

// User представляет зарегистрированного пользователя.
type User struct {
	ID           int64     `db:"id"`
	Login        string    `db:"login"`
	PasswordHash []byte    `db:"password_hash"`
	Role         Role      `db:"role"`
	LocationID   *int64    `db:"location_id"`
	CreatedAt    time.Time `db:"created_at"`
}

// Actor описывает аутентифицированного участника, выполняющего операцию.
type Actor struct {
	ID         int64
	Role       Role
	LocationID int64
}

// Actor возвращает участника, соответствующего пользователю.
func (u *User) Actor() Actor {
	a := Actor{ID: u.ID, Role: u.Role}
	if u.LocationID != nil {
		a.LocationID = *u.LocationID
	}
	return a
}

// IsAdmin сообщает, является ли участник администратором.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// OperatesLocation сообщает, обслуживает ли участник указанную точку.
func (a Actor) OperatesLocation(locationID int64) bool {
	return a.Role == RoleLocation && a.LocationID != 0 && a.LocationID == locationID
}

// Notification описывает уведомление пользователю.
type Notification struct {
	UserID  int64  `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

// AlertKind описывает тип несогласованности данных.
type AlertKind string

const AlertIssueResumeFailed AlertKind = "issue_resume_failed"

// Alert фиксирует несогласованность, требующую ручной сверки администратором.
type Alert struct {
	ID        int64      `json:"id" db:"id"`
	Kind      AlertKind  `json:"kind" db:"kind"`
	TicketID  string     `json:"ticket_id" db:"ticket_id"`
	OrderID   string     `json:"order_id" db:"order_id"`
	Message   string     `json:"message" db:"message"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	ClearedAt *time.Time `json:"cleared_at,omitempty" db:"cleared_at"`
}
