// Package issue реализует обращения в поддержку, в том числе обращения по заказу,
// которые приостанавливают печать до своего закрытия.
package issue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/lifecycle"
	"github.com/mmeshcher/printpoints/internal/metrics"
	"github.com/mmeshcher/printpoints/internal/model"
)

// MaxMessageLength ограничивает длину сообщения в символах.
const MaxMessageLength = 2000

// Store описывает хранилище обращений, используемое сервисом.
type Store interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetLocation(ctx context.Context, id int64) (*model.Location, error)
	// CreateTicket сохраняет обращение. Если по заказу уже есть открытое обращение, возвращает errs.ErrStaleData.
	CreateTicket(ctx context.Context, t *model.SupportTicket) error
	GetTicket(ctx context.Context, id uuid.UUID) (*model.SupportTicket, error)
	// FindOpenTicket возвращает открытое обращение по заказу или errs.ErrNotFound.
	FindOpenTicket(ctx context.Context, orderID uuid.UUID) (*model.SupportTicket, error)
	// ResolveTicket закрывает обращение, только если оно открыто; иначе возвращает errs.ErrStaleData.
	ResolveTicket(ctx context.Context, id uuid.UUID, at time.Time) error
	// AddMessage сохраняет сообщение, только если обращение ещё открыто; иначе возвращает errs.ErrStaleData.
	AddMessage(ctx context.Context, m *model.TicketMessage) error
	ListMessages(ctx context.Context, ticketID uuid.UUID) ([]model.TicketMessage, error)
	CreateAlert(ctx context.Context, a *model.Alert) error
	ListOpenAlerts(ctx context.Context) ([]model.Alert, error)
	ClearAlert(ctx context.Context, id int64, at time.Time) error
}

// TxResolver реализуется хранилищем, способным закрыть обращение и вернуть заказ в печать
// одной транзакцией. Если статус обращения или заказа уже изменился, возвращает errs.ErrStaleData.
type TxResolver interface {
	ResolveAndResume(ctx context.Context, ticketID uuid.UUID, at time.Time, orderID uuid.UUID) (*model.Order, error)
}

// Orders описывает переходы заказа, которыми управляет обращение.
type Orders interface {
	Pause(ctx context.Context, a model.Actor, orderID uuid.UUID) (*model.Order, error)
	Resume(ctx context.Context, a model.Actor, orderID uuid.UUID) (*model.Order, error)
	CanResume(ctx context.Context, a model.Actor, orderID uuid.UUID) (*model.Order, error)
}

// Publisher рассылает изменения обращений подписчикам.
type Publisher interface {
	OrderChanged(ctx context.Context, o *model.Order)
	TicketChanged(ctx context.Context, t *model.SupportTicket)
	MessagePosted(ctx context.Context, m *model.TicketMessage)
}

// Notifier доставляет уведомления пользователям.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification)
}

// Config задаёт политику повторов при возврате заказа в печать.
type Config struct {
	ResolveAttempts int
	RetryDelay      time.Duration
}

// Service реализует протокол обращений.
type Service struct {
	store    Store
	orders   Orders
	events   Publisher
	notifier Notifier
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewService создаёт сервис обращений. events, notifier и logger могут быть nil.
func NewService(store Store, orders Orders, events Publisher, notifier Notifier, cfg Config, logger *zap.Logger) *Service {
	if cfg.ResolveAttempts < 1 {
		cfg.ResolveAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		orders:   orders,
		events:   events,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func checkText(field, text string, limit int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.Validation(field, "required")
	}
	if utf8.RuneCountInString(text) > limit {
		return "", errs.Validation(field, fmt.Sprintf("max %d characters", limit))
	}
	return text, nil
}

// Open открывает обращение по заказу и приостанавливает его печать.
// Если по заказу уже есть открытое обращение, сообщение добавляется в него.
func (s *Service) Open(ctx context.Context, a model.Actor, orderID uuid.UUID, category, message string) (*model.SupportTicket, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, errs.Validation("category", "required")
	}
	message, err := checkText("message", message, MaxMessageLength)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindOpenTicket(ctx, orderID)
	switch {
	case err == nil:
		if _, err := s.Post(ctx, a, existing.ID, message); err != nil {
			return nil, err
		}
		return existing, nil
	case !errors.Is(err, errs.ErrNotFound):
		return nil, fmt.Errorf("find open ticket: %w", err)
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := lifecycle.Check(a, o, model.OrderStatusPaused, lifecycle.ViaIssue); err != nil {
		return nil, err
	}

	locID := o.LocationID
	t := &model.SupportTicket{
		ID:          uuid.New(),
		Type:        model.TicketOrderIssue,
		Category:    category,
		Description: message,
		Status:      model.TicketOpen,
		CreatorID:   a.ID,
		LocationID:  &locID,
		OrderID:     &o.ID,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateTicket(ctx, t); err != nil {
		if errors.Is(err, errs.ErrStaleData) {
			// Обращение по заказу успели открыть параллельно.
			return s.Open(ctx, a, orderID, category, message)
		}
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	if _, err := s.orders.Pause(ctx, a, orderID); err != nil {
		if cerr := s.store.ResolveTicket(ctx, t.ID, s.now()); cerr != nil {
			s.logger.Error("failed to close ticket after pause failure",
				zap.String("ticket", t.ID.String()), zap.Error(cerr))
		}
		return nil, fmt.Errorf("pause order: %w", err)
	}

	s.logger.Info("order issue opened",
		zap.String("ticket", t.ID.String()),
		zap.String("order", orderID.String()),
		zap.String("category", category),
	)
	if s.events != nil {
		s.events.TicketChanged(ctx, t)
	}
	s.notifyCounterparts(ctx, a, o, "Problem with your order",
		fmt.Sprintf("Printing is paused: %s", category), ticketLink(t.ID))
	return t, nil
}

// CreateTicket создаёт общее обращение, не связанное с заказом.
func (s *Service) CreateTicket(ctx context.Context, a model.Actor, typ model.TicketType, category, description string) (*model.SupportTicket, error) {
	if typ != model.TicketSystemReport && typ != model.TicketClientGeneral {
		return nil, errs.Validation("type", "must be system_report or client_general")
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, errs.Validation("category", "required")
	}
	description, err := checkText("description", description, MaxMessageLength)
	if err != nil {
		return nil, err
	}

	t := &model.SupportTicket{
		ID:          uuid.New(),
		Type:        typ,
		Category:    category,
		Description: description,
		Status:      model.TicketOpen,
		CreatorID:   a.ID,
		CreatedAt:   s.now(),
	}
	if a.Role == model.RoleLocation && a.LocationID != 0 {
		locID := a.LocationID
		t.LocationID = &locID
	}
	if err := s.store.CreateTicket(ctx, t); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	if s.events != nil {
		s.events.TicketChanged(ctx, t)
	}
	return t, nil
}

// Ticket возвращает обращение, если участник может работать с ним.
func (s *Service) Ticket(ctx context.Context, a model.Actor, ticketID uuid.UUID) (*model.SupportTicket, error) {
	t, _, err := s.load(ctx, a, ticketID)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindOpen возвращает открытое обращение по заказу или errs.ErrNotFound.
func (s *Service) FindOpen(ctx context.Context, orderID uuid.UUID) (*model.SupportTicket, error) {
	t, err := s.store.FindOpenTicket(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find open ticket: %w", err)
	}
	return t, nil
}

// Post добавляет сообщение в открытое обращение.
func (s *Service) Post(ctx context.Context, a model.Actor, ticketID uuid.UUID, text string) (*model.TicketMessage, error) {
	text, err := checkText("body", text, MaxMessageLength)
	if err != nil {
		return nil, err
	}
	t, o, err := s.load(ctx, a, ticketID)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TicketOpen {
		return nil, errs.Validation("ticket", "resolved")
	}

	m := &model.TicketMessage{
		TicketID:  t.ID,
		SenderID:  a.ID,
		Body:      text,
		CreatedAt: s.now(),
	}
	if err := s.store.AddMessage(ctx, m); err != nil {
		if errors.Is(err, errs.ErrStaleData) {
			return nil, errs.Validation("ticket", "resolved")
		}
		return nil, fmt.Errorf("add message: %w", err)
	}
	if s.events != nil {
		s.events.MessagePosted(ctx, m)
	}
	if o != nil {
		s.notifyCounterparts(ctx, a, o, "New message about your order", text, ticketLink(t.ID))
	}
	return m, nil
}

// Messages возвращает переписку по обращению: описание обращения первым сообщением,
// затем сохранённые сообщения по возрастанию времени.
func (s *Service) Messages(ctx context.Context, a model.Actor, ticketID uuid.UUID) ([]model.TicketMessage, error) {
	t, _, err := s.load(ctx, a, ticketID)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.ListMessages(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	slices.SortStableFunc(stored, func(x, y model.TicketMessage) int {
		return x.CreatedAt.Compare(y.CreatedAt)
	})

	res := make([]model.TicketMessage, 0, len(stored)+1)
	res = append(res, model.TicketMessage{
		TicketID:  t.ID,
		SenderID:  t.CreatorID,
		Body:      t.Description,
		CreatedAt: t.CreatedAt,
	})
	return append(res, stored...), nil
}

// Resolve закрывает обращение. Для обращения по заказу заказ возвращается в печать:
// одной транзакцией, если хранилище это поддерживает, иначе двумя записями с повтором второй.
// Если вернуть заказ не удалось, сохраняется Alert и возвращается errs.PartialFailureError.
func (s *Service) Resolve(ctx context.Context, a model.Actor, ticketID uuid.UUID) (*model.SupportTicket, error) {
	t, o, err := s.load(ctx, a, ticketID)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TicketOpen {
		return nil, errs.Validation("ticket", "already resolved")
	}

	if o == nil {
		if t.CreatorID == a.ID && !a.IsAdmin() {
			return nil, fmt.Errorf("%w: ticket must be resolved by support", errs.ErrForbidden)
		}
		if err := s.resolveTicket(ctx, t); err != nil {
			return nil, err
		}
		return t, nil
	}

	if o.Status == model.OrderStatusPrinting {
		// Заказ уже в печати, например после ручной сверки.
		if err := s.resolveTicket(ctx, t); err != nil {
			return nil, err
		}
		return t, nil
	}
	if _, err := s.orders.CanResume(ctx, a, o.ID); err != nil {
		return nil, err
	}

	if tx, ok := s.store.(TxResolver); ok {
		now := s.now()
		resumed, err := tx.ResolveAndResume(ctx, t.ID, now, o.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve and resume: %w", err)
		}
		t.Status, t.ResolvedAt = model.TicketResolved, &now
		metrics.TransitionsTotal.WithLabelValues(string(model.OrderStatusPaused), string(model.OrderStatusPrinting)).Inc()
		s.logger.Info("order issue resolved",
			zap.String("ticket", t.ID.String()), zap.String("order", o.ID.String()), zap.Int64("actor", a.ID))
		if s.events != nil {
			s.events.TicketChanged(ctx, t)
			s.events.OrderChanged(ctx, resumed)
		}
		s.notifyCounterparts(ctx, a, o, "Issue resolved", "Printing of your order continues", ticketLink(t.ID))
		return t, nil
	}

	if err := s.resolveTicket(ctx, t); err != nil {
		return nil, err
	}
	if err := s.resumeWithRetry(ctx, a, o.ID); err != nil {
		return t, s.partialFailure(ctx, t, o, err)
	}
	s.notifyCounterparts(ctx, a, o, "Issue resolved", "Printing of your order continues", ticketLink(t.ID))
	return t, nil
}

func (s *Service) resolveTicket(ctx context.Context, t *model.SupportTicket) error {
	now := s.now()
	if err := s.store.ResolveTicket(ctx, t.ID, now); err != nil {
		if errors.Is(err, errs.ErrStaleData) {
			return errs.Validation("ticket", "already resolved")
		}
		return fmt.Errorf("resolve ticket: %w", err)
	}
	t.Status, t.ResolvedAt = model.TicketResolved, &now
	if s.events != nil {
		s.events.TicketChanged(ctx, t)
	}
	return nil
}

func (s *Service) resumeWithRetry(ctx context.Context, a model.Actor, orderID uuid.UUID) error {
	var err error
	for attempt := 1; attempt <= s.cfg.ResolveAttempts; attempt++ {
		_, err = s.orders.Resume(ctx, a, orderID)
		if err == nil {
			return nil
		}
		if errors.Is(err, errs.ErrInvalidTransition) {
			// Заказ мог вернуться в печать в другой сессии.
			if o, gerr := s.store.GetOrder(ctx, orderID); gerr == nil && o.Status == model.OrderStatusPrinting {
				return nil
			}
			return err
		}
		s.logger.Warn("order resume failed",
			zap.String("order", orderID.String()), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < s.cfg.ResolveAttempts && s.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.RetryDelay):
			}
		}
	}
	return err
}

func (s *Service) partialFailure(ctx context.Context, t *model.SupportTicket, o *model.Order, cause error) error {
	metrics.PartialFailuresTotal.Inc()
	pf := &errs.PartialFailureError{
		TicketID: t.ID.String(),
		OrderID:  o.ID.String(),
		Attempts: s.cfg.ResolveAttempts,
		Err:      cause,
	}
	alert := &model.Alert{
		Kind:      model.AlertIssueResumeFailed,
		TicketID:  pf.TicketID,
		OrderID:   pf.OrderID,
		Message:   pf.Error(),
		CreatedAt: s.now(),
	}
	if err := s.store.CreateAlert(ctx, alert); err != nil {
		s.logger.Error("failed to store alert", zap.String("order", pf.OrderID), zap.Error(err))
	}
	s.logger.Error("ticket resolved but order not resumed",
		zap.String("ticket", pf.TicketID), zap.String("order", pf.OrderID), zap.Error(cause))
	return pf
}

// ReconcileAlerts повторяет возврат в печать заказов из открытых предупреждений и
// снимает предупреждения, по которым заказ уже в печати. Возвращает число снятых предупреждений.
func (s *Service) ReconcileAlerts(ctx context.Context) (int, error) {
	alerts, err := s.store.ListOpenAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list alerts: %w", err)
	}
	system := model.Actor{Role: model.RoleAdmin}
	cleared := 0
	for _, al := range alerts {
		if al.Kind != model.AlertIssueResumeFailed {
			continue
		}
		orderID, err := uuid.Parse(al.OrderID)
		if err != nil {
			s.logger.Warn("alert with malformed order id", zap.Int64("alert", al.ID), zap.String("order", al.OrderID))
			continue
		}
		o, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			s.logger.Warn("reconcile: get order failed", zap.String("order", al.OrderID), zap.Error(err))
			continue
		}
		if o.Status == model.OrderStatusPaused {
			if _, err := s.orders.Resume(ctx, system, orderID); err != nil {
				s.logger.Warn("reconcile: resume failed", zap.String("order", al.OrderID), zap.Error(err))
				continue
			}
		}
		if err := s.store.ClearAlert(ctx, al.ID, s.now()); err != nil {
			return cleared, fmt.Errorf("clear alert: %w", err)
		}
		cleared++
	}
	return cleared, nil
}

// load читает обращение и связанный заказ и проверяет, что участник может работать с обращением.
func (s *Service) load(ctx context.Context, a model.Actor, ticketID uuid.UUID) (*model.SupportTicket, *model.Order, error) {
	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, fmt.Errorf("get ticket: %w", err)
	}
	if t.OrderID == nil {
		if !a.IsAdmin() && a.ID != t.CreatorID && !(t.LocationID != nil && a.OperatesLocation(*t.LocationID)) {
			return nil, nil, fmt.Errorf("%w: not a ticket participant", errs.ErrForbidden)
		}
		return t, nil, nil
	}
	o, err := s.store.GetOrder(ctx, *t.OrderID)
	if err != nil {
		return nil, nil, fmt.Errorf("get order: %w", err)
	}
	if !participant(a, o) {
		return nil, nil, fmt.Errorf("%w: not a ticket participant", errs.ErrForbidden)
	}
	return t, o, nil
}

func participant(a model.Actor, o *model.Order) bool {
	return a.IsAdmin() || a.OperatesLocation(o.LocationID) ||
		(a.Role == model.RoleCustomer && a.ID == o.CustomerID)
}

// notifyCounterparts уведомляет сторону заказа, противоположную отправителю.
func (s *Service) notifyCounterparts(ctx context.Context, a model.Actor, o *model.Order, title, message, link string) {
	if s.notifier == nil {
		return
	}
	if a.ID != o.CustomerID {
		s.notifier.Notify(ctx, model.Notification{UserID: o.CustomerID, Title: title, Message: message, Link: link})
	}
	if a.OperatesLocation(o.LocationID) {
		return
	}
	loc, err := s.store.GetLocation(ctx, o.LocationID)
	if err != nil {
		s.logger.Warn("notify: get location failed", zap.Int64("location", o.LocationID), zap.Error(err))
		return
	}
	if loc.OperatorID != nil {
		s.notifier.Notify(ctx, model.Notification{UserID: *loc.OperatorID, Title: title, Message: message, Link: link})
	}
}

func ticketLink(id uuid.UUID) string {
	return "/tickets/" + id.String()
}
