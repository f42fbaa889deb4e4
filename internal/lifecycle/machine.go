package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/metrics"
	"github.com/mmeshcher/printpoints/internal/model"
)

// Store описывает хранилище заказов, используемое машиной состояний.
type Store interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	// UpdateOrderStatus меняет статус, только если текущий статус равен from, и в той же
	// транзакции применяет эффекты перехода. Если статус уже другой, возвращает errs.ErrStaleData.
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus, eff Effect) (*model.Order, error)
}

// Publisher получает изменённые заказы для рассылки подписчикам.
type Publisher interface {
	OrderChanged(ctx context.Context, o *model.Order)
}

// Machine применяет переходы статусов заказа.
type Machine struct {
	store  Store
	events Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewMachine создаёт машину состояний. events и logger могут быть nil.
func NewMachine(store Store, events Publisher, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		store:  store,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Transition переводит заказ в статус to прямым действием участника.
func (m *Machine) Transition(ctx context.Context, a model.Actor, orderID uuid.UUID, to model.OrderStatus) (*model.Order, error) {
	return m.apply(ctx, a, orderID, to, ViaAction)
}

// Pause приостанавливает печать заказа. Вызывается только при открытии обращения по заказу.
func (m *Machine) Pause(ctx context.Context, a model.Actor, orderID uuid.UUID) (*model.Order, error) {
	return m.apply(ctx, a, orderID, model.OrderStatusPaused, ViaIssue)
}

// Resume возвращает приостановленный заказ в печать. Вызывается только при закрытии обращения.
func (m *Machine) Resume(ctx context.Context, a model.Actor, orderID uuid.UUID) (*model.Order, error) {
	return m.apply(ctx, a, orderID, model.OrderStatusPrinting, ViaIssue)
}

// CanResume проверяет право участника вернуть заказ в печать, не изменяя его.
func (m *Machine) CanResume(ctx context.Context, a model.Actor, orderID uuid.UUID) (*model.Order, error) {
	o, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := Check(a, o, model.OrderStatusPrinting, ViaIssue); err != nil {
		return nil, err
	}
	return o, nil
}

func (m *Machine) apply(ctx context.Context, a model.Actor, orderID uuid.UUID, to model.OrderStatus, via Via) (*model.Order, error) {
	// Статус перечитывается перед каждой попыткой: запись условна по прочитанному статусу,
	// и при конкурентном изменении переход проверяется заново по свежим данным.
	for attempt := 0; ; attempt++ {
		o, err := m.store.GetOrder(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("get order: %w", err)
		}
		if err := Check(a, o, to, via); err != nil {
			return nil, err
		}

		eff := Effects(o, to, m.now())
		updated, err := m.store.UpdateOrderStatus(ctx, orderID, o.Status, to, eff)
		if errors.Is(err, errs.ErrStaleData) && attempt == 0 {
			metrics.StaleRetriesTotal.Inc()
			m.logger.Info("order changed concurrently, re-reading",
				zap.String("order", orderID.String()), zap.String("to", string(to)))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update order status: %w", err)
		}

		metrics.TransitionsTotal.WithLabelValues(string(o.Status), string(to)).Inc()
		if eff.CreditPoints > 0 {
			metrics.PointsCreditedTotal.Add(float64(eff.CreditPoints))
		}
		m.logger.Info("order transition applied",
			zap.String("order", orderID.String()),
			zap.String("from", string(o.Status)),
			zap.String("to", string(to)),
			zap.Int64("actor", a.ID),
		)
		if m.events != nil {
			m.events.OrderChanged(ctx, updated)
		}
		return updated, nil
	}
}
