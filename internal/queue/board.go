// Package queue хранит актуальные заказы точек в памяти: и прямые изменения,
// и события из ленты проходят через один метод Apply.
package queue

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/printpoints/internal/metrics"
	"github.com/mmeshcher/printpoints/internal/model"
)

// OrderRepository загружает незавершённые заказы.
type OrderRepository interface {
	ListActiveOrders(ctx context.Context) ([]model.Order, error)
}

// Queue содержит очередь заказов точки, разбитую по статусам.
type Queue struct {
	Pending  []*model.Order `json:"pending"`
	Printing []*model.Order `json:"printing"`
	// OnHold содержит приостановленные заказы, в очередь печати они не попадают до закрытия обращения.
	OnHold []*model.Order `json:"on_hold"`
	Ready  []*model.Order `json:"ready"`
}

// Board хранит незавершённые заказы всех точек.
type Board struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*model.Order
	repo   OrderRepository
	logger *zap.Logger
}

// NewBoard создаёт пустую доску заказов.
func NewBoard(repo OrderRepository, logger *zap.Logger) *Board {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Board{
		orders: make(map[uuid.UUID]*model.Order),
		repo:   repo,
		logger: logger,
	}
}

// Load заполняет доску незавершёнными заказами из хранилища.
func (b *Board) Load(ctx context.Context) error {
	orders, err := b.repo.ListActiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("list active orders: %w", err)
	}
	for i := range orders {
		b.Apply(&orders[i])
	}
	b.logger.Info("order board loaded", zap.Int("orders", b.Len()))
	return nil
}

// Apply применяет новое состояние заказа. Завершённые заказы удаляются,
// состояние старше уже известного игнорируется.
func (b *Board) Apply(o *model.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, found := b.orders[o.ID]
	if found && o.UpdatedAt.Before(cur.UpdatedAt) {
		return
	}
	if o.Status.Terminal() {
		if found {
			delete(b.orders, o.ID)
			b.updateGauge(o.LocationID)
		}
		return
	}
	b.orders[o.ID] = o.Clone()
	b.updateGauge(o.LocationID)
}

// OrderChanged применяет заказ из ленты событий.
func (b *Board) OrderChanged(ctx context.Context, o *model.Order) {
	b.Apply(o)
}

// Get возвращает копию заказа.
func (b *Board) Get(id uuid.UUID) (*model.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, found := b.orders[id]
	if !found {
		return nil, false
	}
	return o.Clone(), true
}

// Queue возвращает очередь точки; заказы в каждой группе упорядочены по номеру.
func (b *Board) Queue(locationID int64) Queue {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var q Queue
	for _, o := range b.orders {
		if o.LocationID != locationID {
			continue
		}
		c := o.Clone()
		switch o.Status {
		case model.OrderStatusPending:
			q.Pending = append(q.Pending, c)
		case model.OrderStatusPrinting:
			q.Printing = append(q.Printing, c)
		case model.OrderStatusPaused:
			q.OnHold = append(q.OnHold, c)
		case model.OrderStatusReady:
			q.Ready = append(q.Ready, c)
		}
	}
	for _, group := range [][]*model.Order{q.Pending, q.Printing, q.OnHold, q.Ready} {
		slices.SortFunc(group, func(x, y *model.Order) int {
			switch {
			case x.Number < y.Number:
				return -1
			case x.Number > y.Number:
				return 1
			}
			return 0
		})
	}
	return q
}

// Len возвращает число заказов на доске.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}

func (b *Board) updateGauge(locationID int64) {
	n := 0
	for _, o := range b.orders {
		if o.LocationID == locationID {
			n++
		}
	}
	metrics.BoardOrders.WithLabelValues(strconv.FormatInt(locationID, 10)).Set(float64(n))
}
