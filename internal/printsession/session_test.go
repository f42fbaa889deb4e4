package printsession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/issue"
	"github.com/mmeshcher/printpoints/internal/lifecycle"
	"github.com/mmeshcher/printpoints/internal/model"
)

var (
	customer  = model.Actor{ID: 10, Role: model.RoleCustomer}
	operator  = model.Actor{ID: 20, Role: model.RoleLocation, LocationID: 3}
	colleague = model.Actor{ID: 21, Role: model.RoleLocation, LocationID: 3}
	otherShop = model.Actor{ID: 30, Role: model.RoleLocation, LocationID: 4}
)

// memStore хранит заказы и обращения в памяти.
type memStore struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*model.Order
	tickets  map[uuid.UUID]*model.SupportTicket
	messages []model.TicketMessage
}

func newMemStore(orders ...*model.Order) *memStore {
	s := &memStore{orders: map[uuid.UUID]*model.Order{}, tickets: map[uuid.UUID]*model.SupportTicket{}}
	for _, o := range orders {
		s.orders[o.ID] = o.Clone()
	}
	return s
}

func (s *memStore) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *memStore) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus, eff lifecycle.Effect) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	if o.Status != from {
		return nil, errs.ErrStaleData
	}
	o.Status = to
	return o.Clone(), nil
}

func (s *memStore) GetLocation(ctx context.Context, id int64) (*model.Location, error) {
	return &model.Location{ID: id}, nil
}

func (s *memStore) CreateTicket(ctx context.Context, t *model.SupportTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *t
	s.tickets[t.ID] = &c
	return nil
}

func (s *memStore) GetTicket(ctx context.Context, id uuid.UUID) (*model.SupportTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (s *memStore) FindOpenTicket(ctx context.Context, orderID uuid.UUID) (*model.SupportTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.OrderID != nil && *t.OrderID == orderID && t.Status == model.TicketOpen {
			c := *t
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (s *memStore) ResolveTicket(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tickets[id]
	if t.Status != model.TicketOpen {
		return errs.ErrStaleData
	}
	t.Status, t.ResolvedAt = model.TicketResolved, &at
	return nil
}

func (s *memStore) AddMessage(ctx context.Context, m *model.TicketMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *m)
	return nil
}

func (s *memStore) ListMessages(ctx context.Context, ticketID uuid.UUID) ([]model.TicketMessage, error) {
	return nil, nil
}

func (s *memStore) CreateAlert(ctx context.Context, a *model.Alert) error        { return nil }
func (s *memStore) ListOpenAlerts(ctx context.Context) ([]model.Alert, error)    { return nil, nil }
func (s *memStore) ClearAlert(ctx context.Context, id int64, at time.Time) error { return nil }

func (s *memStore) status(id uuid.UUID) model.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Status
}

type stubPrinter struct {
	mu   sync.Mutex
	jobs []Job
	// gate, если задан, задерживает печать до закрытия канала.
	gate    chan struct{}
	started chan struct{}
}

func (p *stubPrinter) Print(ctx context.Context, job Job) error {
	if p.started != nil {
		close(p.started)
	}
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return nil
}

type stubPreviews struct {
	calls int
}

func (p *stubPreviews) URL(ctx context.Context, path string) (string, error) {
	p.calls++
	return "https://cdn.example/" + path, nil
}

// relay передаёт события машины состояний менеджеру сессий.
type relay struct {
	target interface {
		OrderChanged(ctx context.Context, o *model.Order)
	}
}

func (r *relay) OrderChanged(ctx context.Context, o *model.Order) {
	if r.target != nil {
		r.target.OrderChanged(ctx, o)
	}
}

type env struct {
	store    *memStore
	machine  *lifecycle.Machine
	issues   *issue.Service
	printer  *stubPrinter
	previews *stubPreviews
	manager  *Manager
}

func newEnv(orders ...*model.Order) *env {
	e := &env{store: newMemStore(orders...), printer: &stubPrinter{}, previews: &stubPreviews{}}
	r := &relay{}
	e.machine = lifecycle.NewMachine(e.store, r, nil)
	e.issues = issue.NewService(e.store, e.machine, nil, nil, issue.Config{ResolveAttempts: 1}, nil)
	e.manager = NewManager(e.store, e.machine, e.issues, e.printer, e.previews, time.Minute, nil)
	r.target = e.manager
	return e
}

func newOrder(status model.OrderStatus, files int) *model.Order {
	o := &model.Order{
		ID:         uuid.New(),
		Number:     42,
		CustomerID: customer.ID,
		LocationID: operator.LocationID,
		Spec:       model.PrintSpecification{Size: model.SizeA4, Quality: model.QualityStandard, Copies: 1},
		Status:     status,
	}
	for i := 0; i < files; i++ {
		o.Files = append(o.Files, "orders/10/x/"+string(rune('a'+i))+".pdf")
	}
	return o
}

func TestOpen_ModeFollowsStatus(t *testing.T) {
	tests := []struct {
		status model.OrderStatus
		mode   Mode
	}{
		{model.OrderStatusPending, ModeReview},
		{model.OrderStatusPrinting, ModePrinting},
		{model.OrderStatusReady, ModeReprint},
		{model.OrderStatusPaused, ModeChat},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			o := newOrder(tt.status, 1)
			e := newEnv(o)
			s, err := e.manager.Open(context.Background(), operator, o.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, s.State().Mode)
		})
	}

	for _, status := range []model.OrderStatus{model.OrderStatusDelivered, model.OrderStatusCancelled} {
		o := newOrder(status, 1)
		e := newEnv(o)
		_, err := e.manager.Open(context.Background(), operator, o.ID)
		assert.ErrorIs(t, err, errs.ErrValidation)
	}
}

func TestOpen_OtherLocationForbidden(t *testing.T) {
	o := newOrder(model.OrderStatusPrinting, 1)
	e := newEnv(o)

	_, err := e.manager.Open(context.Background(), otherShop, o.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	s, err := e.manager.Open(context.Background(), operator, o.ID)
	require.NoError(t, err)
	_, err = e.manager.Get(colleague, s.ID())
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestViewer(t *testing.T) {
	o := newOrder(model.OrderStatusPrinting, 3)
	e := newEnv(o)
	s, err := e.manager.Open(context.Background(), operator, o.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, s.Advance(-1).FileIndex)

	for i := 0; i < 20; i++ {
		s.ZoomIn()
	}
	st := s.Rotate(true)
	assert.Equal(t, MaxZoom, st.Zoom)
	assert.Equal(t, 90, st.Rotation)

	st = s.Advance(1)
	assert.Equal(t, 1, st.FileIndex)
	assert.Equal(t, DefaultZoom, st.Zoom)
	assert.Equal(t, 0, st.Rotation)

	s.Advance(1)
	assert.Equal(t, 2, s.Advance(1).FileIndex)

	for i := 0; i < 20; i++ {
		s.ZoomOut()
	}
	assert.Equal(t, MinZoom, s.State().Zoom)

	assert.Equal(t, -90, s.Rotate(false).Rotation)
	s.Rotate(true)
	assert.Equal(t, 0, s.State().Rotation)

	for i := 0; i < 5; i++ {
		s.Rotate(true)
	}
	assert.Equal(t, 450, s.State().Rotation)
}

func TestPreview_CachedAndReleased(t *testing.T) {
	o := newOrder(model.OrderStatusPrinting, 2)
	e := newEnv(o)
	s, err := e.manager.Open(context.Background(), operator, o.ID)
	require.NoError(t, err)
	ctx := context.Background()

	url, err := s.Preview(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/"+o.Files[0], url)
	_, err = s.Preview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, e.previews.calls)

	require.NoError(t, e.manager.Close(operator, s.ID()))
	assert.Empty(t, s.previews)
	_, err = s.Preview(ctx)
	assert.Error(t, err)
	assert.Equal(t, model.OrderStatusPrinting, e.store.status(o.ID))
}

func TestPrint_Modes(t *testing.T) {
	tests := []struct {
		status model.OrderStatus
		ok     bool
	}{
		{model.OrderStatusPending, false},
		{model.OrderStatusPrinting, true},
		{model.OrderStatusReady, true},
		{model.OrderStatusPaused, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			o := newOrder(tt.status, 2)
			e := newEnv(o)
			s, err := e.manager.Open(context.Background(), operator, o.ID)
			require.NoError(t, err)

			err = s.Print(context.Background())
			if !tt.ok {
				assert.ErrorIs(t, err, errs.ErrValidation)
				assert.Empty(t, e.printer.jobs)
				return
			}
			require.NoError(t, err)
			require.Len(t, e.printer.jobs, 1)
			assert.Equal(t, o.Files[0], e.printer.jobs[0].File)
			assert.Equal(t, tt.status == model.OrderStatusReady, e.printer.jobs[0].Reprint)
			assert.Equal(t, tt.status, e.store.status(o.ID))
		})
	}
}

func TestAcceptThenMarkReady(t *testing.T) {
	o := newOrder(model.OrderStatusPending, 1)
	e := newEnv(o)
	ctx := context.Background()
	s, err := e.manager.Open(ctx, operator, o.ID)
	require.NoError(t, err)

	_, err = s.MarkReady(ctx)
	assert.ErrorIs(t, err, errs.ErrValidation)

	st, err := s.Accept(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModePrinting, st.Mode)
	assert.Equal(t, model.OrderStatusPrinting, e.store.status(o.ID))

	ready, err := s.MarkReady(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusReady, ready.Status)
	assert.True(t, s.Closed())

	_, err = e.manager.Get(operator, s.ID())
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestReturnToPending(t *testing.T) {
	o := newOrder(model.OrderStatusPrinting, 1)
	e := newEnv(o)
	ctx := context.Background()
	s, err := e.manager.Open(ctx, operator, o.ID)
	require.NoError(t, err)

	back, err := s.ReturnToPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, back.Status)
	assert.True(t, s.Closed())
}

func TestBusyRejectsOverlappingCalls(t *testing.T) {
	o := newOrder(model.OrderStatusPrinting, 1)
	e := newEnv(o)
	e.printer.gate = make(chan struct{})
	e.printer.started = make(chan struct{})
	ctx := context.Background()
	s, err := e.manager.Open(ctx, operator, o.ID)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Print(ctx) }()
	<-e.printer.started

	assert.ErrorIs(t, s.Print(ctx), errs.ErrBusy)
	_, err = s.MarkReady(ctx)
	assert.ErrorIs(t, err, errs.ErrBusy)

	close(e.printer.gate)
	require.NoError(t, <-done)
	assert.Equal(t, model.OrderStatusPrinting, e.store.status(o.ID))
}

func TestReportIssue_PausesAndResumes(t *testing.T) {
	o := newOrder(model.OrderStatusPrinting, 2)
	e := newEnv(o)
	ctx := context.Background()
	s, err := e.manager.Open(ctx, operator, o.ID)
	require.NoError(t, err)

	ticket, err := s.ReportIssue(ctx, "file", "page 3 is corrupted")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaused, e.store.status(o.ID))

	st := s.State()
	assert.Equal(t, ModeChat, st.Mode)
	require.NotNil(t, st.TicketID)
	assert.Equal(t, ticket.ID, *st.TicketID)

	assert.ErrorIs(t, s.Print(ctx), errs.ErrValidation)
	_, err = s.MarkReady(ctx)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Empty(t, e.printer.jobs)

	_, err = e.issues.Resolve(ctx, customer, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPrinting, e.store.status(o.ID))

	st = s.State()
	assert.Equal(t, ModePrinting, st.Mode)
	assert.Nil(t, st.TicketID)
	require.NoError(t, s.Print(ctx))
}

func TestOpen_PausedAttachesTicket(t *testing.T) {
	o := newOrder(model.OrderStatusPrinting, 1)
	e := newEnv(o)
	ctx := context.Background()

	ticket, err := e.issues.Open(ctx, operator, o.ID, "paper", "out of paper")
	require.NoError(t, err)

	s, err := e.manager.Open(ctx, colleague, o.ID)
	require.NoError(t, err)
	st := s.State()
	assert.Equal(t, ModeChat, st.Mode)
	require.NotNil(t, st.TicketID)
	assert.Equal(t, ticket.ID, *st.TicketID)
}

func TestSync_ConcurrentChangeFromAnotherSession(t *testing.T) {
	o := newOrder(model.OrderStatusPrinting, 1)
	e := newEnv(o)
	ctx := context.Background()

	first, err := e.manager.Open(ctx, operator, o.ID)
	require.NoError(t, err)
	second, err := e.manager.Open(ctx, colleague, o.ID)
	require.NoError(t, err)

	_, err = first.MarkReady(ctx)
	require.NoError(t, err)

	assert.Equal(t, ModeReprint, second.State().Mode)
	_, err = second.ReturnToPending(ctx)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, model.OrderStatusReady, e.store.status(o.ID))
}

func TestSweep(t *testing.T) {
	o := newOrder(model.OrderStatusPrinting, 1)
	e := newEnv(o)
	s, err := e.manager.Open(context.Background(), operator, o.ID)
	require.NoError(t, err)

	assert.Zero(t, e.manager.Sweep(time.Now()))
	assert.Equal(t, 1, e.manager.Sweep(time.Now().Add(2*time.Minute)))
	assert.True(t, s.Closed())
	assert.Zero(t, e.manager.Len())
}
