package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/printpoints/internal/accrual"
	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/lifecycle"
	"github.com/mmeshcher/printpoints/internal/model"
)

const orderColumns = `id, number, customer_id, location_id, files, size, quality, copies, color,
	notes, total_amount, points_earned, status, created_at, updated_at, completed_at`

type orderRow struct {
	ID           uuid.UUID       `db:"id"`
	Number       int64           `db:"number"`
	CustomerID   int64           `db:"customer_id"`
	LocationID   int64           `db:"location_id"`
	Files        []string        `db:"files"`
	Size         string          `db:"size"`
	Quality      string          `db:"quality"`
	Copies       int             `db:"copies"`
	Color        bool            `db:"color"`
	Notes        string          `db:"notes"`
	TotalAmount  decimal.Decimal `db:"total_amount"`
	PointsEarned int64           `db:"points_earned"`
	Status       string          `db:"status"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
	CompletedAt  *time.Time      `db:"completed_at"`
}

func (r orderRow) toModel() *model.Order {
	return &model.Order{
		ID:         r.ID,
		Number:     r.Number,
		CustomerID: r.CustomerID,
		LocationID: r.LocationID,
		Files:      r.Files,
		Spec: model.PrintSpecification{
			Size:    model.SizeID(r.Size),
			Quality: model.Quality(r.Quality),
			Copies:  r.Copies,
			Color:   r.Color,
		},
		Notes:        r.Notes,
		TotalAmount:  r.TotalAmount,
		PointsEarned: r.PointsEarned,
		Status:       model.OrderStatus(r.Status),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		CompletedAt:  r.CompletedAt,
	}
}

func toOrders(rows []orderRow) []model.Order {
	res := make([]model.Order, 0, len(rows))
	for _, row := range rows {
		res = append(res, *row.toModel())
	}
	return res
}

// CreateOrder сохраняет новый заказ; номер выдаётся последовательностью БД.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO orders (id, customer_id, location_id, files, size, quality, copies, color,
			notes, total_amount, points_earned, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING number, created_at, updated_at`,
		o.ID, o.CustomerID, o.LocationID, o.Files,
		string(o.Spec.Size), string(o.Spec.Quality), o.Spec.Copies, o.Spec.Color,
		o.Notes, o.TotalAmount, o.PointsEarned, string(o.Status),
	).Scan(&o.Number, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetOrderByNumber возвращает заказ по номеру.
func (r *PostgresRepository) GetOrderByNumber(ctx context.Context, number int64) (*model.Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE number = $1`, number)
}

func (r *PostgresRepository) getOrder(ctx context.Context, query string, arg any) (*model.Order, error) {
	var row orderRow
	err := r.withRetry(ctx, func() error {
		return pgxscan.Get(ctx, r.pool, &row, query, arg)
	})
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("order %v: %w", arg, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return row.toModel(), nil
}

// ListOrdersByCustomer возвращает заказы клиента, новые первыми.
func (r *PostgresRepository) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	var rows []orderRow
	err := pgxscan.Select(ctx, r.pool, &rows,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	return toOrders(rows), nil
}

// ListOrdersByLocation возвращает заказы точки, новые первыми.
func (r *PostgresRepository) ListOrdersByLocation(ctx context.Context, locationID int64) ([]model.Order, error) {
	var rows []orderRow
	err := pgxscan.Select(ctx, r.pool, &rows,
		`SELECT `+orderColumns+` FROM orders WHERE location_id = $1 ORDER BY created_at DESC`,
		locationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	return toOrders(rows), nil
}

// ListActiveOrders возвращает все незавершённые заказы.
func (r *PostgresRepository) ListActiveOrders(ctx context.Context) ([]model.Order, error) {
	var rows []orderRow
	err := pgxscan.Select(ctx, r.pool, &rows,
		`SELECT `+orderColumns+` FROM orders WHERE status NOT IN ($1, $2) ORDER BY number`,
		string(model.OrderStatusDelivered), string(model.OrderStatusCancelled),
	)
	if err != nil {
		return nil, fmt.Errorf("select active orders: %w", err)
	}
	return toOrders(rows), nil
}

// UpdateOrderStatus меняет статус заказа, только если текущий статус равен from.
// Начисление баллов выполняется в той же транзакции и не более одного раза на заказ.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus, eff lifecycle.Effect) (*model.Order, error) {
	var updated *model.Order
	err := r.withRetry(ctx, func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			o, err := updateStatus(ctx, tx, id, from, to, eff.CompletedAt)
			if err != nil {
				return err
			}
			if eff.CreditPoints > 0 {
				if err := creditPoints(ctx, tx, o.CustomerID, o.ID, eff.CreditPoints); err != nil {
					return err
				}
			}
			updated = o
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func updateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.OrderStatus, completedAt *time.Time) (*model.Order, error) {
	var row orderRow
	err := pgxscan.Get(ctx, tx, &row,
		`UPDATE orders SET status = $3, updated_at = now(), completed_at = COALESCE($4, completed_at)
		 WHERE id = $1 AND status = $2
		 RETURNING `+orderColumns,
		id, string(from), string(to), completedAt,
	)
	if err == nil {
		return row.toModel(), nil
	}
	if !pgxscan.NotFound(err) {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("order %s: %w", id, errs.ErrNotFound)
	}
	return nil, fmt.Errorf("order %s is no longer %s: %w", id, from, errs.ErrStaleData)
}

func creditPoints(ctx context.Context, tx pgx.Tx, customerID int64, orderID uuid.UUID, points int64) error {
	tag, err := tx.Exec(ctx,
		`INSERT INTO points_ledger (customer_id, order_id, points) VALUES ($1, $2, $3)
		 ON CONFLICT (order_id) DO NOTHING`,
		customerID, orderID, points,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO points_accounts (customer_id, tier_level) VALUES ($1, $2) ON CONFLICT (customer_id) DO NOTHING`,
		customerID, string(model.TierBronze),
	)
	if err != nil {
		return fmt.Errorf("ensure points account: %w", err)
	}

	var acc model.PointsAccount
	err = pgxscan.Get(ctx, tx, &acc,
		`SELECT customer_id, current_points, lifetime_points, tier_level
		 FROM points_accounts WHERE customer_id = $1 FOR UPDATE`,
		customerID,
	)
	if err != nil {
		return fmt.Errorf("lock points account: %w", err)
	}

	acc = accrual.Credit(acc, points)
	_, err = tx.Exec(ctx,
		`UPDATE points_accounts SET current_points = $2, lifetime_points = $3, tier_level = $4 WHERE customer_id = $1`,
		customerID, acc.CurrentPoints, acc.LifetimePoints, string(acc.TierLevel),
	)
	if err != nil {
		return fmt.Errorf("update points account: %w", err)
	}
	return nil
}

// GetPointsAccount возвращает счёт баллов клиента; у клиента без счёта баланс нулевой.
func (r *PostgresRepository) GetPointsAccount(ctx context.Context, customerID int64) (*model.PointsAccount, error) {
	var acc model.PointsAccount
	err := pgxscan.Get(ctx, r.pool, &acc,
		`SELECT customer_id, current_points, lifetime_points, tier_level FROM points_accounts WHERE customer_id = $1`,
		customerID,
	)
	if err != nil {
		if pgxscan.NotFound(err) {
			return &model.PointsAccount{CustomerID: customerID, TierLevel: model.TierBronze}, nil
		}
		return nil, fmt.Errorf("get points account: %w", err)
	}
	return &acc, nil
}
