package model

import (
	"time"

	"github.com/google/uuid"
)

// TicketType описывает тип обращения в поддержку.
type TicketType string

const (
	TicketSystemReport  TicketType = "system_report"
	TicketOrderIssue    TicketType = "order_issue"
	TicketClientGeneral TicketType = "client_general"
)

// Valid сообщает, является ли тип обращения известным.
func (t TicketType) Valid() bool {
	switch t {
	case TicketSystemReport, TicketOrderIssue, TicketClientGeneral:
		return true
	}
	return false
}

// TicketStatus описывает статус обращения.
type TicketStatus string

const (
	TicketOpen     TicketStatus = "open"
	TicketResolved TicketStatus = "resolved"
)

// SupportTicket описывает обращение в поддержку, возможно связанное с заказом.
type SupportTicket struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	Type        TicketType   `json:"type" db:"type"`
	Category    string       `json:"category" db:"category"`
	Description string       `json:"description" db:"description"`
	Status      TicketStatus `json:"status" db:"status"`
	CreatorID   int64        `json:"creator_id" db:"creator_id"`
	LocationID  *int64       `json:"location_id,omitempty" db:"location_id"`
	OrderID     *uuid.UUID   `json:"order_id,omitempty" db:"order_id"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty" db:"resolved_at"`
}

// TicketMessage описывает сообщение в переписке по обращению.
type TicketMessage struct {
	ID        int64     `json:"id" db:"id"`
	TicketID  uuid.UUID `json:"ticket_id" db:"ticket_id"`
	SenderID  int64     `json:"sender_id" db:"sender_id"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
