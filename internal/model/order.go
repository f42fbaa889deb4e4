package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus описывает статус заказа на печать.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPrinting  OrderStatus = "en_proceso"
	OrderStatusPaused    OrderStatus = "paused"
	OrderStatusReady     OrderStatus = "listo"
	OrderStatusDelivered OrderStatus = "entregado"
	OrderStatusCancelled OrderStatus = "cancelado"
)

// Terminal сообщает, является ли статус конечным.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Valid сообщает, является ли статус известным.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPrinting, OrderStatusPaused,
		OrderStatusReady, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// MaxNotesLength ограничивает длину комментария к заказу в символах.
const MaxNotesLength = 500

// Order описывает заказ клиента на печать набора файлов в точке.
type Order struct {
	ID           uuid.UUID          `json:"id"`
	Number       int64              `json:"number"`
	CustomerID   int64              `json:"customer_id"`
	LocationID   int64              `json:"location_id"`
	Files        []string           `json:"files"`
	Spec         PrintSpecification `json:"specifications"`
	Notes        string             `json:"notes,omitempty"`
	TotalAmount  decimal.Decimal    `json:"total_amount"`
	PointsEarned int64              `json:"points_earned"`
	Status       OrderStatus        `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
}

// Clone возвращает копию заказа, не разделяющую срезы и указатели с оригиналом.
func (o *Order) Clone() *Order {
	c := *o
	c.Files = append([]string(nil), o.Files...)
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
