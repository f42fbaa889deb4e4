package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/printpoints/internal/metrics"
	"github.com/mmeshcher/printpoints/internal/model"
)

// Kind описывает тип события.
type Kind string

const (
	KindOrder   Kind = "order"
	KindTicket  Kind = "ticket"
	KindMessage Kind = "message"
)

// Event описывает изменение заказа или обращения либо новое сообщение.
type Event struct {
	Kind    Kind                 `json:"kind"`
	Channel string               `json:"channel"`
	Order   *model.Order         `json:"order,omitempty"`
	Ticket  *model.SupportTicket `json:"ticket,omitempty"`
	Message *model.TicketMessage `json:"message,omitempty"`
}

// ChannelAllOrders получает изменения всех заказов; на него подписаны доска заказов и сессии печати.
const ChannelAllOrders = "orders:all"

// LocationChannel возвращает канал заказов точки.
func LocationChannel(id int64) string { return fmt.Sprintf("orders:location:%d", id) }

// CustomerChannel возвращает канал заказов клиента.
func CustomerChannel(id int64) string { return fmt.Sprintf("orders:customer:%d", id) }

// TicketChannel возвращает канал обращения.
func TicketChannel(id uuid.UUID) string { return "tickets:" + id.String() }

// Subscription представляет подписку на события. Каждая подписка имеет уникальный идентификатор
// и принадлежит открывшему её запросу, который обязан вызвать Close.
type Subscription struct {
	ID     uuid.UUID
	events chan Event
	done   chan struct{}
	feed   Feed
	hub    *Hub
	once   sync.Once
}

// Events возвращает канал событий; он закрывается после Close.
func (s *Subscription) Events() <-chan Event { return s.events }

// Close отменяет подписку.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		if err := s.feed.Close(); err != nil {
			s.hub.logger.Warn("close feed", zap.String("subscription", s.ID.String()), zap.Error(err))
		}
		s.hub.mu.Lock()
		delete(s.hub.subs, s.ID)
		s.hub.mu.Unlock()
	})
}

// Hub публикует события в брокер и выдаёт подписки на них.
type Hub struct {
	broker Broker
	logger *zap.Logger
	mu     sync.Mutex
	subs   map[uuid.UUID]*Subscription
}

// NewHub создаёт Hub поверх брокера.
func NewHub(broker Broker, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{broker: broker, logger: logger, subs: make(map[uuid.UUID]*Subscription)}
}

// OrderChanged публикует заказ в каналы его точки и клиента.
func (h *Hub) OrderChanged(ctx context.Context, o *model.Order) {
	for _, ch := range []string{ChannelAllOrders, LocationChannel(o.LocationID), CustomerChannel(o.CustomerID)} {
		h.publish(ctx, Event{Kind: KindOrder, Channel: ch, Order: o})
	}
}

// TicketChanged публикует изменение обращения.
func (h *Hub) TicketChanged(ctx context.Context, t *model.SupportTicket) {
	h.publish(ctx, Event{Kind: KindTicket, Channel: TicketChannel(t.ID), Ticket: t})
}

// MessagePosted публикует новое сообщение обращения.
func (h *Hub) MessagePosted(ctx context.Context, m *model.TicketMessage) {
	h.publish(ctx, Event{Kind: KindMessage, Channel: TicketChannel(m.TicketID), Message: m})
}

func (h *Hub) publish(ctx context.Context, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event", zap.String("channel", ev.Channel), zap.Error(err))
		return
	}
	if err := h.broker.Publish(ctx, ev.Channel, body); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("realtime_publish").Inc()
		h.logger.Warn("publish event failed", zap.String("channel", ev.Channel), zap.Error(err))
	}
}

// Subscribe подписывается на каналы.
func (h *Hub) Subscribe(ctx context.Context, channels ...string) (*Subscription, error) {
	feed, err := h.broker.Subscribe(ctx, channels...)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	s := &Subscription{
		ID:     uuid.New(),
		events: make(chan Event, feedBuffer),
		done:   make(chan struct{}),
		feed:   feed,
		hub:    h,
	}
	h.mu.Lock()
	h.subs[s.ID] = s
	h.mu.Unlock()

	go h.decode(s)
	return s, nil
}

func (h *Hub) decode(s *Subscription) {
	defer close(s.events)
	for msg := range s.feed.Messages() {
		var ev Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			h.logger.Warn("malformed event", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// Active возвращает число открытых подписок.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Feed вызывает fn для каждого изменённого заказа до отмены контекста.
func (h *Hub) Feed(ctx context.Context, fn func(ctx context.Context, o *model.Order)) error {
	sub, err := h.Subscribe(ctx, ChannelAllOrders)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if ev.Order != nil {
				fn(ctx, ev.Order)
			}
		}
	}
}
