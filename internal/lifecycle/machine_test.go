package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/model"
)

const (
	customerID int64 = 10
	locationID int64 = 3
)

var (
	customer  = model.Actor{ID: customerID, Role: model.RoleCustomer}
	operator3 = model.Actor{ID: 20, Role: model.RoleLocation, LocationID: locationID}
	otherShop = model.Actor{ID: 21, Role: model.RoleLocation, LocationID: 99}
	admin     = model.Actor{ID: 1, Role: model.RoleAdmin}
)

type stubStore struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]*model.Order
	credits map[int64]int64

	// beforeUpdate вызывается перед условной записью и позволяет изобразить конкурентное изменение.
	beforeUpdate func(o *model.Order)
	staleOnce    bool
	updates      int
	updateErr    error
}

func newStubStore(orders ...*model.Order) *stubStore {
	s := &stubStore{orders: map[uuid.UUID]*model.Order{}, credits: map[int64]int64{}}
	for _, o := range orders {
		s.orders[o.ID] = o.Clone()
	}
	return s
}

func (s *stubStore) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *stubStore) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus, eff Effect) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	if s.staleOnce {
		s.staleOnce = false
		return nil, errs.ErrStaleData
	}
	o := s.orders[id]
	if s.beforeUpdate != nil {
		hook := s.beforeUpdate
		s.beforeUpdate = nil
		hook(o)
	}
	if o.Status != from {
		return nil, errs.ErrStaleData
	}
	o.Status = to
	if eff.CompletedAt != nil {
		o.CompletedAt = eff.CompletedAt
	}
	s.credits[o.CustomerID] += eff.CreditPoints
	return o.Clone(), nil
}

type recorder struct {
	mu     sync.Mutex
	orders []*model.Order
}

func (r *recorder) OrderChanged(ctx context.Context, o *model.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o)
}

func newOrder(status model.OrderStatus) *model.Order {
	return &model.Order{
		ID:           uuid.New(),
		CustomerID:   customerID,
		LocationID:   locationID,
		Files:        []string{"a.pdf"},
		Spec:         model.PrintSpecification{Size: model.SizeA4, Quality: model.QualityStandard, Copies: 2},
		TotalAmount:  decimal.NewFromInt(720),
		PointsEarned: 72,
		Status:       status,
	}
}

var allStatuses = []model.OrderStatus{
	model.OrderStatusPending,
	model.OrderStatusPrinting,
	model.OrderStatusPaused,
	model.OrderStatusReady,
	model.OrderStatusDelivered,
	model.OrderStatusCancelled,
}

func TestAllowed_TableOnly(t *testing.T) {
	valid := map[[2]model.OrderStatus]bool{
		{model.OrderStatusPending, model.OrderStatusPrinting}:  true,
		{model.OrderStatusPending, model.OrderStatusCancelled}: true,
		{model.OrderStatusPrinting, model.OrderStatusReady}:    true,
		{model.OrderStatusPrinting, model.OrderStatusPaused}:   true,
		{model.OrderStatusPrinting, model.OrderStatusPending}:  true,
		{model.OrderStatusPaused, model.OrderStatusPrinting}:   true,
		{model.OrderStatusReady, model.OrderStatusDelivered}:   true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			assert.Equal(t, valid[[2]model.OrderStatus{from, to}], Allowed(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransition_RejectsPairsOutsideTable(t *testing.T) {
	ctx := context.Background()
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			if Allowed(from, to) {
				continue
			}
			o := newOrder(from)
			store := newStubStore(o)
			m := NewMachine(store, nil, nil)

			for _, a := range []model.Actor{customer, operator3, admin} {
				_, err := m.Transition(ctx, a, o.ID, to)
				require.Error(t, err, "%s -> %s by %s", from, to, a.Role)
				assert.ErrorIs(t, err, errs.ErrInvalidTransition, "%s -> %s by %s", from, to, a.Role)
			}

			got, _ := store.GetOrder(ctx, o.ID)
			assert.Equal(t, from, got.Status)
		}
	}
}

func TestTransition_PendingToReadyIsInvalid(t *testing.T) {
	o := newOrder(model.OrderStatusPending)
	store := newStubStore(o)
	m := NewMachine(store, nil, nil)

	_, err := m.Transition(context.Background(), operator3, o.ID, model.OrderStatusReady)

	var te *errs.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "pending", te.From)
	assert.Equal(t, "listo", te.To)

	got, _ := store.GetOrder(context.Background(), o.ID)
	assert.Equal(t, model.OrderStatusPending, got.Status)
}

func TestTransition_RolePermissions(t *testing.T) {
	tests := []struct {
		name  string
		from  model.OrderStatus
		to    model.OrderStatus
		actor model.Actor
		ok    bool
	}{
		{"operator accepts", model.OrderStatusPending, model.OrderStatusPrinting, operator3, true},
		{"other shop cannot accept", model.OrderStatusPending, model.OrderStatusPrinting, otherShop, false},
		{"customer cannot accept", model.OrderStatusPending, model.OrderStatusPrinting, customer, false},
		{"customer cancels", model.OrderStatusPending, model.OrderStatusCancelled, customer, true},
		{"admin cancels", model.OrderStatusPending, model.OrderStatusCancelled, admin, true},
		{"operator cannot cancel", model.OrderStatusPending, model.OrderStatusCancelled, operator3, false},
		{"stranger cannot cancel", model.OrderStatusPending, model.OrderStatusCancelled, model.Actor{ID: 99, Role: model.RoleCustomer}, false},
		{"operator marks ready", model.OrderStatusPrinting, model.OrderStatusReady, operator3, true},
		{"operator returns to pending", model.OrderStatusPrinting, model.OrderStatusPending, operator3, true},
		{"admin cannot deliver", model.OrderStatusReady, model.OrderStatusDelivered, admin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrder(tt.from)
			m := NewMachine(newStubStore(o), nil, nil)

			got, err := m.Transition(context.Background(), tt.actor, o.ID, tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, got.Status)
				return
			}
			assert.ErrorIs(t, err, errs.ErrForbidden)
		})
	}
}

func TestTransition_PauseOnlyThroughIssue(t *testing.T) {
	o := newOrder(model.OrderStatusPrinting)
	store := newStubStore(o)
	m := NewMachine(store, nil, nil)
	ctx := context.Background()

	_, err := m.Transition(ctx, operator3, o.ID, model.OrderStatusPaused)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)

	paused, err := m.Pause(ctx, operator3, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaused, paused.Status)

	_, err = m.Transition(ctx, customer, o.ID, model.OrderStatusPrinting)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)

	resumed, err := m.Resume(ctx, customer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPrinting, resumed.Status)
}

func TestTransition_DeliveryCreditsOnce(t *testing.T) {
	o := newOrder(model.OrderStatusReady)
	store := newStubStore(o)
	events := &recorder{}
	m := NewMachine(store, events, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = m.Transition(ctx, operator3, o.ID, model.OrderStatusDelivered)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(72), store.credits[customerID])

	got, _ := store.GetOrder(ctx, o.ID)
	assert.Equal(t, model.OrderStatusDelivered, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, decimal.NewFromInt(720).Equal(got.TotalAmount))
	assert.Len(t, events.orders, 1)
}

func TestTransition_OnlyDeliveryCredits(t *testing.T) {
	o := newOrder(model.OrderStatusPending)
	store := newStubStore(o)
	m := NewMachine(store, nil, nil)
	ctx := context.Background()

	steps := []struct {
		actor model.Actor
		to    model.OrderStatus
	}{
		{operator3, model.OrderStatusPrinting},
		{operator3, model.OrderStatusPending},
		{operator3, model.OrderStatusPrinting},
		{operator3, model.OrderStatusReady},
	}
	for _, s := range steps {
		_, err := m.Transition(ctx, s.actor, o.ID, s.to)
		require.NoError(t, err)
		assert.Zero(t, store.credits[customerID])
	}

	_, err := m.Transition(ctx, operator3, o.ID, model.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, int64(72), store.credits[customerID])
}

func TestTransition_StaleDataRechecked(t *testing.T) {
	ctx := context.Background()

	t.Run("still valid after re-read", func(t *testing.T) {
		o := newOrder(model.OrderStatusPrinting)
		store := newStubStore(o)
		store.staleOnce = true
		m := NewMachine(store, nil, nil)

		got, err := m.Transition(ctx, operator3, o.ID, model.OrderStatusReady)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusReady, got.Status)
		assert.Equal(t, 2, store.updates)
	})

	t.Run("returned to queue concurrently", func(t *testing.T) {
		o := newOrder(model.OrderStatusPrinting)
		store := newStubStore(o)
		store.beforeUpdate = func(cur *model.Order) { cur.Status = model.OrderStatusPending }
		m := NewMachine(store, nil, nil)

		_, err := m.Transition(ctx, operator3, o.ID, model.OrderStatusReady)
		assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	})

	t.Run("invalid after re-read", func(t *testing.T) {
		o := newOrder(model.OrderStatusPending)
		store := newStubStore(o)
		store.beforeUpdate = func(cur *model.Order) { cur.Status = model.OrderStatusCancelled }
		m := NewMachine(store, nil, nil)

		_, err := m.Transition(ctx, operator3, o.ID, model.OrderStatusPrinting)
		assert.ErrorIs(t, err, errs.ErrInvalidTransition)

		got, _ := store.GetOrder(ctx, o.ID)
		assert.Equal(t, model.OrderStatusCancelled, got.Status)
	})
}

func TestTransition_BackendErrorIsNotSuccess(t *testing.T) {
	o := newOrder(model.OrderStatusPending)
	store := newStubStore(o)
	store.updateErr = errors.New("connection reset by peer")
	events := &recorder{}
	m := NewMachine(store, events, nil)

	_, err := m.Transition(context.Background(), operator3, o.ID, model.OrderStatusPrinting)
	require.Error(t, err)
	assert.Empty(t, events.orders)
}

func TestEffects(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o := newOrder(model.OrderStatusReady)

	eff := Effects(o, model.OrderStatusDelivered, now)
	assert.Equal(t, int64(72), eff.CreditPoints)
	require.NotNil(t, eff.CompletedAt)
	assert.Equal(t, now, *eff.CompletedAt)

	o.Status = model.OrderStatusPending
	assert.Equal(t, Effect{}, Effects(o, model.OrderStatusPrinting, now))
}

func TestTargets(t *testing.T) {
	o := newOrder(model.OrderStatusPrinting)
	assert.ElementsMatch(t,
		[]model.OrderStatus{model.OrderStatusReady, model.OrderStatusPending},
		Targets(operator3, o))
	assert.Empty(t, Targets(customer, o))
}
