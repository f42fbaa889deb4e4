package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/lifecycle"
	"github.com/mmeshcher/printpoints/internal/model"
)

// newTestRepository подключается к БД из DATABASE_URI; без неё тест пропускается.
func newTestRepository(t *testing.T) *PostgresRepository {
	t.Helper()
	dsn := os.Getenv("DATABASE_URI")
	if dsn == "" {
		t.Skip("DATABASE_URI is not set")
	}
	r, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	r.delays = []time.Duration{10 * time.Millisecond}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

type fixture struct {
	customerID int64
	location   *model.Location
}

func newFixture(t *testing.T, r *PostgresRepository) fixture {
	t.Helper()
	ctx := context.Background()

	loc := &model.Location{
		Name:         "Centro " + uuid.NewString()[:8],
		Status:       model.LocationActive,
		MaxBWSize:    model.SizeClassA4,
		MaxColorSize: model.SizeClassA4,
	}
	require.NoError(t, r.CreateLocation(ctx, loc))

	id, err := r.CreateUser(ctx, "customer-"+uuid.NewString(), []byte("hash"), model.RoleCustomer, nil)
	require.NoError(t, err)
	return fixture{customerID: id, location: loc}
}

func (f fixture) order(t *testing.T, r *PostgresRepository) *model.Order {
	t.Helper()
	o := &model.Order{
		ID:           uuid.New(),
		CustomerID:   f.customerID,
		LocationID:   f.location.ID,
		Files:        []string{"orders/1/a.pdf"},
		Spec:         model.PrintSpecification{Size: model.SizeA4, Quality: model.QualityStandard, Copies: 1},
		TotalAmount:  decimal.NewFromInt(500),
		PointsEarned: 50,
		Status:       model.OrderStatusPending,
	}
	require.NoError(t, r.CreateOrder(context.Background(), o))
	return o
}

func TestPostgres_UpdateOrderStatusIsConditional(t *testing.T) {
	r := newTestRepository(t)
	f := newFixture(t, r)
	o := f.order(t, r)
	ctx := context.Background()

	got, err := r.UpdateOrderStatus(ctx, o.ID, model.OrderStatusPending, model.OrderStatusPrinting, lifecycle.Effect{})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPrinting, got.Status)

	// Второй участник действует по устаревшему статусу.
	_, err = r.UpdateOrderStatus(ctx, o.ID, model.OrderStatusPending, model.OrderStatusCancelled, lifecycle.Effect{})
	assert.ErrorIs(t, err, errs.ErrStaleData)

	_, err = r.UpdateOrderStatus(ctx, uuid.New(), model.OrderStatusPending, model.OrderStatusPrinting, lifecycle.Effect{})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	stored, err := r.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPrinting, stored.Status)
}

func TestPostgres_DeliveryCreditsPointsOnce(t *testing.T) {
	r := newTestRepository(t)
	f := newFixture(t, r)
	o := f.order(t, r)
	ctx := context.Background()

	for _, step := range [][2]model.OrderStatus{
		{model.OrderStatusPending, model.OrderStatusPrinting},
		{model.OrderStatusPrinting, model.OrderStatusReady},
	} {
		_, err := r.UpdateOrderStatus(ctx, o.ID, step[0], step[1], lifecycle.Effect{})
		require.NoError(t, err)
	}

	now := time.Now()
	eff := lifecycle.Effect{CreditPoints: o.PointsEarned, CompletedAt: &now}
	delivered, err := r.UpdateOrderStatus(ctx, o.ID, model.OrderStatusReady, model.OrderStatusDelivered, eff)
	require.NoError(t, err)
	assert.NotNil(t, delivered.CompletedAt)

	// Повторная выдача отклоняется условием на статус.
	_, err = r.UpdateOrderStatus(ctx, o.ID, model.OrderStatusReady, model.OrderStatusDelivered, eff)
	assert.ErrorIs(t, err, errs.ErrStaleData)

	// Повторная запись в журнал по тому же заказу не меняет баланс.
	require.NoError(t, r.inTx(ctx, func(tx pgx.Tx) error {
		return creditPoints(ctx, tx, f.customerID, o.ID, o.PointsEarned)
	}))

	acc, err := r.GetPointsAccount(ctx, f.customerID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), acc.CurrentPoints)
	assert.Equal(t, int64(50), acc.LifetimePoints)
	assert.Equal(t, model.TierBronze, acc.TierLevel)
}

func TestPostgres_ResolveAndResume(t *testing.T) {
	r := newTestRepository(t)
	f := newFixture(t, r)
	o := f.order(t, r)
	ctx := context.Background()

	_, err := r.UpdateOrderStatus(ctx, o.ID, model.OrderStatusPending, model.OrderStatusPrinting, lifecycle.Effect{})
	require.NoError(t, err)
	_, err = r.UpdateOrderStatus(ctx, o.ID, model.OrderStatusPrinting, model.OrderStatusPaused, lifecycle.Effect{})
	require.NoError(t, err)

	newTicket := func() *model.SupportTicket {
		return &model.SupportTicket{
			ID:          uuid.New(),
			Type:        model.TicketOrderIssue,
			Category:    "paper",
			Description: "out of paper",
			Status:      model.TicketOpen,
			CreatorID:   f.customerID,
			LocationID:  &f.location.ID,
			OrderID:     &o.ID,
			CreatedAt:   time.Now(),
		}
	}
	ticket := newTicket()
	require.NoError(t, r.CreateTicket(ctx, ticket))
	assert.ErrorIs(t, r.CreateTicket(ctx, newTicket()), errs.ErrStaleData)

	msg := &model.TicketMessage{TicketID: ticket.ID, SenderID: f.customerID, Body: "use letter", CreatedAt: time.Now()}
	require.NoError(t, r.AddMessage(ctx, msg))
	assert.NotZero(t, msg.ID)

	resumed, err := r.ResolveAndResume(ctx, ticket.ID, time.Now(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPrinting, resumed.Status)

	stored, err := r.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketResolved, stored.Status)
	assert.NotNil(t, stored.ResolvedAt)

	_, err = r.ResolveAndResume(ctx, ticket.ID, time.Now(), o.ID)
	assert.ErrorIs(t, err, errs.ErrStaleData)

	late := &model.TicketMessage{TicketID: ticket.ID, SenderID: f.customerID, Body: "thanks", CreatedAt: time.Now()}
	assert.ErrorIs(t, r.AddMessage(ctx, late), errs.ErrStaleData)
	unknown := &model.TicketMessage{TicketID: uuid.New(), SenderID: f.customerID, Body: "hello", CreatedAt: time.Now()}
	assert.ErrorIs(t, r.AddMessage(ctx, unknown), errs.ErrNotFound)

	msgs, err := r.ListMessages(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestPostgres_NullCustomPriceIsIgnored(t *testing.T) {
	r := newTestRepository(t)
	f := newFixture(t, r)
	ctx := context.Background()

	_, err := r.pool.Exec(ctx,
		`UPDATE locations SET allow_custom_prices = TRUE, custom_prices = '{"a4_eco": null, "a3_eco": "90"}' WHERE id = $1`,
		f.location.ID,
	)
	require.NoError(t, err)

	loc, err := r.GetLocation(ctx, f.location.ID)
	require.NoError(t, err)
	assert.NotContains(t, loc.CustomPrices, "a4_eco")
	assert.True(t, loc.CustomPrices["a3_eco"].Equal(decimal.NewFromInt(90)))
}
