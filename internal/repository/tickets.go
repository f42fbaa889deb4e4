package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/model"
)

const ticketColumns = `id, type, category, description, status, creator_id, location_id, order_id, created_at, resolved_at`

// CreateTicket сохраняет обращение. Второе открытое обращение по заказу отклоняется
// уникальным индексом, и возвращается errs.ErrStaleData.
func (r *PostgresRepository) CreateTicket(ctx context.Context, t *model.SupportTicket) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO support_tickets (id, type, category, description, status, creator_id, location_id, order_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, string(t.Type), t.Category, t.Description, string(t.Status), t.CreatorID, t.LocationID, t.OrderID, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("open ticket for order already exists: %w", errs.ErrStaleData)
		}
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

// GetTicket возвращает обращение.
func (r *PostgresRepository) GetTicket(ctx context.Context, id uuid.UUID) (*model.SupportTicket, error) {
	var t model.SupportTicket
	err := pgxscan.Get(ctx, r.pool, &t, `SELECT `+ticketColumns+` FROM support_tickets WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("ticket %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return &t, nil
}

// FindOpenTicket возвращает открытое обращение по заказу.
func (r *PostgresRepository) FindOpenTicket(ctx context.Context, orderID uuid.UUID) (*model.SupportTicket, error) {
	var t model.SupportTicket
	err := pgxscan.Get(ctx, r.pool, &t,
		`SELECT `+ticketColumns+` FROM support_tickets WHERE order_id = $1 AND type = $2 AND status = $3`,
		orderID, string(model.TicketOrderIssue), string(model.TicketOpen),
	)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("open ticket for order %s: %w", orderID, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("find open ticket: %w", err)
	}
	return &t, nil
}

// ListTickets возвращает обращения участника; для creatorID = 0 возвращаются все.
func (r *PostgresRepository) ListTickets(ctx context.Context, creatorID int64) ([]model.SupportTicket, error) {
	var res []model.SupportTicket
	err := pgxscan.Select(ctx, r.pool, &res,
		`SELECT `+ticketColumns+` FROM support_tickets WHERE $1 = 0 OR creator_id = $1 ORDER BY created_at DESC`,
		creatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("select tickets: %w", err)
	}
	return res, nil
}

// ResolveTicket закрывает открытое обращение.
func (r *PostgresRepository) ResolveTicket(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.withRetry(ctx, func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			return resolveTicket(ctx, tx, id, at)
		})
	})
}

// ResolveAndResume закрывает обращение и возвращает заказ в печать одной транзакцией.
func (r *PostgresRepository) ResolveAndResume(ctx context.Context, ticketID uuid.UUID, at time.Time, orderID uuid.UUID) (*model.Order, error) {
	var resumed *model.Order
	err := r.withRetry(ctx, func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			if err := resolveTicket(ctx, tx, ticketID, at); err != nil {
				return err
			}
			o, err := updateStatus(ctx, tx, orderID, model.OrderStatusPaused, model.OrderStatusPrinting, nil)
			if err != nil {
				return err
			}
			resumed = o
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return resumed, nil
}

func resolveTicket(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	tag, err := tx.Exec(ctx,
		`UPDATE support_tickets SET status = $3, resolved_at = $4 WHERE id = $1 AND status = $2`,
		id, string(model.TicketOpen), string(model.TicketResolved), at,
	)
	if err != nil {
		return fmt.Errorf("resolve ticket: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM support_tickets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check ticket: %w", err)
	}
	if !exists {
		return fmt.Errorf("ticket %s: %w", id, errs.ErrNotFound)
	}
	return fmt.Errorf("ticket %s is not open: %w", id, errs.ErrStaleData)
}

// AddMessage сохраняет сообщение и заполняет его идентификатор. Сообщение записывается,
// только если обращение открыто в момент вставки; иначе возвращается errs.ErrStaleData.
func (r *PostgresRepository) AddMessage(ctx context.Context, m *model.TicketMessage) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO ticket_messages (ticket_id, sender_id, body, created_at)
		 SELECT $1::uuid, $2::bigint, $3::text, $4::timestamptz
		 WHERE EXISTS (SELECT 1 FROM support_tickets WHERE id = $1 AND status = $5 FOR SHARE)
		 RETURNING id`,
		m.TicketID, m.SenderID, m.Body, m.CreatedAt, string(model.TicketOpen),
	).Scan(&m.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("insert message: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM support_tickets WHERE id = $1)`, m.TicketID).Scan(&exists); err != nil {
		return fmt.Errorf("check ticket: %w", err)
	}
	if !exists {
		return fmt.Errorf("ticket %s: %w", m.TicketID, errs.ErrNotFound)
	}
	return fmt.Errorf("ticket %s is not open: %w", m.TicketID, errs.ErrStaleData)
}

// ListMessages возвращает сообщения обращения по возрастанию времени.
func (r *PostgresRepository) ListMessages(ctx context.Context, ticketID uuid.UUID) ([]model.TicketMessage, error) {
	var res []model.TicketMessage
	err := pgxscan.Select(ctx, r.pool, &res,
		`SELECT id, ticket_id, sender_id, body, created_at FROM ticket_messages WHERE ticket_id = $1 ORDER BY created_at, id`,
		ticketID,
	)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	return res, nil
}

// CreateAlert сохраняет предупреждение о несогласованности.
func (r *PostgresRepository) CreateAlert(ctx context.Context, a *model.Alert) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO alerts (kind, ticket_id, order_id, message, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		string(a.Kind), a.TicketID, a.OrderID, a.Message, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListOpenAlerts возвращает неснятые предупреждения, старые первыми.
func (r *PostgresRepository) ListOpenAlerts(ctx context.Context) ([]model.Alert, error) {
	var res []model.Alert
	err := pgxscan.Select(ctx, r.pool, &res,
		`SELECT id, kind, ticket_id, order_id, message, created_at, cleared_at FROM alerts WHERE cleared_at IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select alerts: %w", err)
	}
	return res, nil
}

// ClearAlert снимает предупреждение. Повторное снятие ничего не меняет.
func (r *PostgresRepository) ClearAlert(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE alerts SET cleared_at = $2 WHERE id = $1 AND cleared_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("clear alert: %w", err)
	}
	return nil
}
