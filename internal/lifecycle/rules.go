// Package lifecycle реализует машину состояний заказа на печать.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/model"
)

// Via описывает способ, которым инициирован переход.
type Via int

const (
	// ViaAction — прямое действие участника.
	ViaAction Via = iota
	// ViaIssue — переход в рамках обращения по заказу.
	ViaIssue
)

type rule struct {
	from    model.OrderStatus
	to      model.OrderStatus
	via     Via
	allowed func(a model.Actor, o *model.Order) bool
	actors  string
}

func operator(a model.Actor, o *model.Order) bool {
	return a.OperatesLocation(o.LocationID)
}

func customerOrAdmin(a model.Actor, o *model.Order) bool {
	return a.IsAdmin() || (a.Role == model.RoleCustomer && a.ID == o.CustomerID)
}

func anyParticipant(a model.Actor, o *model.Order) bool {
	return customerOrAdmin(a, o) || operator(a, o)
}

var rules = []rule{
	{model.OrderStatusPending, model.OrderStatusPrinting, ViaAction, operator, "location operator"},
	{model.OrderStatusPending, model.OrderStatusCancelled, ViaAction, customerOrAdmin, "customer or admin"},
	{model.OrderStatusPrinting, model.OrderStatusReady, ViaAction, operator, "location operator"},
	{model.OrderStatusPrinting, model.OrderStatusPaused, ViaIssue, operator, "location operator"},
	{model.OrderStatusPrinting, model.OrderStatusPending, ViaAction, operator, "location operator"},
	{model.OrderStatusPaused, model.OrderStatusPrinting, ViaIssue, anyParticipant, "customer, location operator or admin"},
	{model.OrderStatusReady, model.OrderStatusDelivered, ViaAction, operator, "location operator"},
}

func find(from, to model.OrderStatus) (rule, bool) {
	for _, r := range rules {
		if r.from == from && r.to == to {
			return r, true
		}
	}
	return rule{}, false
}

// Allowed сообщает, присутствует ли переход в таблице переходов.
func Allowed(from, to model.OrderStatus) bool {
	_, ok := find(from, to)
	return ok
}

// Targets возвращает статусы, в которые участник может перевести заказ прямым действием.
func Targets(a model.Actor, o *model.Order) []model.OrderStatus {
	var res []model.OrderStatus
	for _, r := range rules {
		if r.from == o.Status && r.via == ViaAction && r.allowed(a, o) {
			res = append(res, r.to)
		}
	}
	return res
}

// Check проверяет, может ли участник перевести заказ в статус to указанным способом.
// Переход вне таблицы даёт errs.TransitionError, чужая роль даёт errs.ErrForbidden.
func Check(a model.Actor, o *model.Order, to model.OrderStatus, via Via) error {
	if o.Status.Terminal() {
		return &errs.TransitionError{From: string(o.Status), To: string(to), Reason: "order is closed"}
	}
	r, ok := find(o.Status, to)
	if !ok {
		return &errs.TransitionError{From: string(o.Status), To: string(to)}
	}
	if r.via != via {
		reason := "requires an issue ticket"
		if r.via == ViaAction {
			reason = "not driven by an issue ticket"
		}
		return &errs.TransitionError{From: string(o.Status), To: string(to), Reason: reason}
	}
	if !r.allowed(a, o) {
		return fmt.Errorf("%w: only %s may move order %s -> %s", errs.ErrForbidden, r.actors, o.Status, to)
	}
	return nil
}

// Effect описывает побочные эффекты перехода.
type Effect struct {
	CreditPoints int64
	CompletedAt  *time.Time
}

// Effects вычисляет побочные эффекты перехода; начисление баллов есть только при выдаче.
func Effects(o *model.Order, to model.OrderStatus, now time.Time) Effect {
	if o.Status == model.OrderStatusReady && to == model.OrderStatusDelivered {
		t := now
		return Effect{CreditPoints: o.PointsEarned, CompletedAt: &t}
	}
	return Effect{}
}
