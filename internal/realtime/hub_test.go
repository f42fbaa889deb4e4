package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/printpoints/internal/model"
)

func receive(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return Event{}
}

func TestHub_OrderChannels(t *testing.T) {
	broker := NewLocalBroker()
	hub := NewHub(broker, nil)
	ctx := context.Background()

	loc, err := hub.Subscribe(ctx, LocationChannel(3))
	require.NoError(t, err)
	defer loc.Close()
	cust, err := hub.Subscribe(ctx, CustomerChannel(10))
	require.NoError(t, err)
	defer cust.Close()
	other, err := hub.Subscribe(ctx, LocationChannel(4))
	require.NoError(t, err)
	defer other.Close()

	o := &model.Order{ID: uuid.New(), CustomerID: 10, LocationID: 3, Status: model.OrderStatusPending}
	hub.OrderChanged(ctx, o)

	for _, s := range []*Subscription{loc, cust} {
		ev := receive(t, s)
		assert.Equal(t, KindOrder, ev.Kind)
		require.NotNil(t, ev.Order)
		assert.Equal(t, o.ID, ev.Order.ID)
		assert.Equal(t, model.OrderStatusPending, ev.Order.Status)
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("unexpected event on another location: %+v", ev)
	default:
	}
}

func TestHub_TicketChannel(t *testing.T) {
	hub := NewHub(NewLocalBroker(), nil)
	ctx := context.Background()
	ticketID := uuid.New()

	s, err := hub.Subscribe(ctx, TicketChannel(ticketID))
	require.NoError(t, err)
	defer s.Close()

	hub.MessagePosted(ctx, &model.TicketMessage{TicketID: ticketID, Body: "hello"})
	ev := receive(t, s)
	assert.Equal(t, KindMessage, ev.Kind)
	assert.Equal(t, "hello", ev.Message.Body)

	hub.TicketChanged(ctx, &model.SupportTicket{ID: ticketID, Status: model.TicketResolved})
	ev = receive(t, s)
	assert.Equal(t, KindTicket, ev.Kind)
	assert.Equal(t, model.TicketResolved, ev.Ticket.Status)
}

func TestSubscription_UniqueAndClosed(t *testing.T) {
	broker := NewLocalBroker()
	hub := NewHub(broker, nil)
	ctx := context.Background()

	a, err := hub.Subscribe(ctx, LocationChannel(3))
	require.NoError(t, err)
	b, err := hub.Subscribe(ctx, LocationChannel(3))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, hub.Active())
	assert.Equal(t, 2, broker.subscribers(LocationChannel(3)))

	a.Close()
	a.Close()
	assert.Equal(t, 1, hub.Active())
	assert.Equal(t, 1, broker.subscribers(LocationChannel(3)))

	select {
	case _, ok := <-a.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("events channel not closed")
	}

	b.Close()
	assert.Zero(t, hub.Active())
	assert.Zero(t, broker.subscribers(LocationChannel(3)))
}

func TestHub_Feed(t *testing.T) {
	hub := NewHub(NewLocalBroker(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan *model.Order, 1)
	done := make(chan error, 1)
	go func() {
		done <- hub.Feed(ctx, func(ctx context.Context, o *model.Order) { got <- o })
	}()

	require.Eventually(t, func() bool { return hub.Active() == 1 }, time.Second, 10*time.Millisecond)

	o := &model.Order{ID: uuid.New(), CustomerID: 1, LocationID: 2, Status: model.OrderStatusReady}
	hub.OrderChanged(ctx, o)

	select {
	case fed := <-got:
		assert.Equal(t, o.ID, fed.ID)
	case <-time.After(time.Second):
		t.Fatal("order not fed")
	}

	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, hub.Active())
}
