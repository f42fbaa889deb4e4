package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/model"
)

const locationColumns = `id, name, address, status, has_fotoya, has_color_printing, allow_custom_prices,
	max_bw_size, max_color_size, custom_prices, is_open, last_activity, operator_id`

// ListLocations возвращает все точки печати.
func (r *PostgresRepository) ListLocations(ctx context.Context) ([]model.Location, error) {
	var res []model.Location
	if err := pgxscan.Select(ctx, r.pool, &res, `SELECT `+locationColumns+` FROM locations ORDER BY id`); err != nil {
		return nil, fmt.Errorf("select locations: %w", err)
	}
	return res, nil
}

// GetLocation возвращает точку печати.
func (r *PostgresRepository) GetLocation(ctx context.Context, id int64) (*model.Location, error) {
	var l model.Location
	err := pgxscan.Get(ctx, r.pool, &l, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("location %d: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &l, nil
}

func customPrices(l *model.Location) model.CustomPrices {
	if l.CustomPrices == nil {
		return model.CustomPrices{}
	}
	return l.CustomPrices
}

// CreateLocation сохраняет новую точку и заполняет её идентификатор.
func (r *PostgresRepository) CreateLocation(ctx context.Context, l *model.Location) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO locations (name, address, status, has_fotoya, has_color_printing, allow_custom_prices,
			max_bw_size, max_color_size, custom_prices)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		l.Name, l.Address, string(l.Status), l.HasFotoya, l.HasColorPrinting, l.AllowCustomPrices,
		string(l.MaxBWSize), string(l.MaxColorSize), customPrices(l),
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("insert location: %w", err)
	}
	return nil
}

// UpdateLocation сохраняет настройки точки, заданные администратором.
func (r *PostgresRepository) UpdateLocation(ctx context.Context, l *model.Location) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE locations SET name = $2, address = $3, status = $4, has_fotoya = $5, has_color_printing = $6,
			allow_custom_prices = $7, max_bw_size = $8, max_color_size = $9, custom_prices = $10
		 WHERE id = $1`,
		l.ID, l.Name, l.Address, string(l.Status), l.HasFotoya, l.HasColorPrinting,
		l.AllowCustomPrices, string(l.MaxBWSize), string(l.MaxColorSize), customPrices(l),
	)
	if err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("location %d: %w", l.ID, errs.ErrNotFound)
	}
	return nil
}

// Heartbeat отмечает активность точки. Повторный вызов безопасен.
func (r *PostgresRepository) Heartbeat(ctx context.Context, locationID int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE locations SET last_activity = GREATEST(COALESCE(last_activity, $2), $2) WHERE id = $1`,
		locationID, at,
	)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("location %d: %w", locationID, errs.ErrNotFound)
	}
	return nil
}

// SetOpen открывает или закрывает точку и отмечает её активность.
func (r *PostgresRepository) SetOpen(ctx context.Context, locationID int64, open bool, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE locations SET is_open = $2, last_activity = $3 WHERE id = $1`,
		locationID, open, at,
	)
	if err != nil {
		return fmt.Errorf("set open: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("location %d: %w", locationID, errs.ErrNotFound)
	}
	return nil
}

type priceRow struct {
	Key   string          `db:"key"`
	Price decimal.Decimal `db:"price"`
}

// GetPrices возвращает глобальную таблицу цен.
func (r *PostgresRepository) GetPrices(ctx context.Context) (model.PriceTable, error) {
	var rows []priceRow
	err := r.withRetry(ctx, func() error {
		rows = nil
		return pgxscan.Select(ctx, r.pool, &rows, `SELECT key, price FROM prices`)
	})
	if err != nil {
		return nil, fmt.Errorf("select prices: %w", err)
	}
	table := make(model.PriceTable, len(rows))
	for _, p := range rows {
		table[p.Key] = p.Price
	}
	return table, nil
}

// PutPrices добавляет или обновляет цены глобальной таблицы.
func (r *PostgresRepository) PutPrices(ctx context.Context, prices model.PriceTable) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for key, price := range prices {
			batch.Queue(
				`INSERT INTO prices (key, price) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET price = EXCLUDED.price`,
				key, price,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert prices: %w", err)
		}
		return nil
	})
}
