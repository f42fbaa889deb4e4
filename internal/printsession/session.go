// Package printsession реализует рабочую сессию оператора точки над одним заказом:
// просмотр файлов, печать и переходы статуса.
package printsession

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/model"
)

// Mode описывает режим сессии.
type Mode string

const (
	// ModeReview — заказ ожидает, доступен только просмотр и принятие.
	ModeReview Mode = "review"
	// ModePrinting — заказ в печати.
	ModePrinting Mode = "printing"
	// ModeReprint — заказ готов, доступна только повторная печать.
	ModeReprint Mode = "reprint"
	// ModeChat — по заказу открыто обращение, печать приостановлена.
	ModeChat Mode = "chat"
)

// Границы и шаг масштаба просмотра файла в сессии.
const (
	// MinZoom задаёт минимальный масштаб.
	MinZoom = 0.25
	// MaxZoom задаёт максимальный масштаб.
	MaxZoom = 3.0
	// ZoomStep задаёт шаг изменения масштаба.
	ZoomStep = 0.25
	// DefaultZoom задаёт масштаб при открытии файла.
	DefaultZoom = 1.0
)

// Orders описывает переходы статуса, доступные из сессии.
type Orders interface {
	Transition(ctx context.Context, a model.Actor, orderID uuid.UUID, to model.OrderStatus) (*model.Order, error)
}

// Issues описывает открытие обращения по заказу.
type Issues interface {
	Open(ctx context.Context, a model.Actor, orderID uuid.UUID, category, message string) (*model.SupportTicket, error)
	FindOpen(ctx context.Context, orderID uuid.UUID) (*model.SupportTicket, error)
}

// Previews выдаёт ссылки для просмотра файлов заказа.
type Previews interface {
	URL(ctx context.Context, path string) (string, error)
}

// Job описывает задание на печать одного файла заказа.
type Job struct {
	OrderID     uuid.UUID                `json:"order_id"`
	OrderNumber int64                    `json:"order_number"`
	LocationID  int64                    `json:"location_id"`
	File        string                   `json:"file"`
	FileIndex   int                      `json:"file_index"`
	Spec        model.PrintSpecification `json:"spec"`
	Reprint     bool                     `json:"reprint"`
	RequestedBy int64                    `json:"requested_by"`
	RequestedAt time.Time                `json:"requested_at"`
}

// Printer отправляет задание на печать.
type Printer interface {
	Print(ctx context.Context, job Job) error
}

// State содержит снимок состояния сессии.
type State struct {
	ID          uuid.UUID         `json:"id"`
	OrderID     uuid.UUID         `json:"order_id"`
	OrderStatus model.OrderStatus `json:"order_status"`
	Mode        Mode              `json:"mode"`
	FileIndex   int               `json:"file_index"`
	FileCount   int               `json:"file_count"`
	Zoom        float64           `json:"zoom"`
	Rotation    int               `json:"rotation"`
	TicketID    *uuid.UUID        `json:"ticket_id,omitempty"`
	Closed      bool              `json:"closed"`
}

type deps struct {
	orders  Orders
	issues  Issues
	printer Printer
	viewer  Previews
	logger  *zap.Logger
	now     func() time.Time
}

// Session ведёт работу оператора над заказом. Безопасна для конкурентного использования;
// изменяющие операции, пока выполняется предыдущая, отклоняются с errs.ErrBusy.
type Session struct {
	mu       sync.Mutex
	id       uuid.UUID
	actor    model.Actor
	order    *model.Order
	mode     Mode
	index    int
	zoom     float64
	rotation int
	ticket   *model.SupportTicket
	previews map[int]string
	busy     bool
	closed   bool
	lastUsed time.Time
	deps
}

func modeFor(status model.OrderStatus) (Mode, bool) {
	switch status {
	case model.OrderStatusPending:
		return ModeReview, true
	case model.OrderStatusPrinting:
		return ModePrinting, true
	case model.OrderStatusReady:
		return ModeReprint, true
	case model.OrderStatusPaused:
		return ModeChat, true
	}
	return "", false
}

func newSession(a model.Actor, o *model.Order, d deps) (*Session, error) {
	mode, ok := modeFor(o.Status)
	if !ok {
		return nil, errs.Validation("order", fmt.Sprintf("order is %s", o.Status))
	}
	return &Session{
		id:       uuid.New(),
		actor:    a,
		order:    o.Clone(),
		mode:     mode,
		zoom:     DefaultZoom,
		previews: map[int]string{},
		lastUsed: d.now(),
		deps:     d,
	}, nil
}

// ID возвращает идентификатор сессии.
func (s *Session) ID() uuid.UUID { return s.id }

// State возвращает снимок состояния.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	st := State{
		ID:          s.id,
		OrderID:     s.order.ID,
		OrderStatus: s.order.Status,
		Mode:        s.mode,
		FileIndex:   s.index,
		FileCount:   len(s.order.Files),
		Zoom:        s.zoom,
		Rotation:    s.rotation,
		Closed:      s.closed,
	}
	if s.ticket != nil {
		id := s.ticket.ID
		st.TicketID = &id
	}
	return st
}

// Advance переходит к следующему (dir > 0) или предыдущему (dir < 0) файлу
// в пределах заказа. При смене файла масштаб и поворот сбрасываются.
func (s *Session) Advance(dir int) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.index
	switch {
	case dir > 0:
		next++
	case dir < 0:
		next--
	}
	next = max(0, min(next, len(s.order.Files)-1))
	if next != s.index {
		s.index = next
		s.zoom = DefaultZoom
		s.rotation = 0
	}
	return s.stateLocked()
}

// ZoomIn увеличивает масштаб на один шаг.
func (s *Session) ZoomIn() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = min(s.zoom+ZoomStep, MaxZoom)
	return s.stateLocked()
}

// ZoomOut уменьшает масштаб на один шаг.
func (s *Session) ZoomOut() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = max(s.zoom-ZoomStep, MinZoom)
	return s.stateLocked()
}

// Rotate поворачивает файл на 90 градусов. Угол накапливается без приведения к 360,
// отрицательный угол означает поворот против часовой стрелки.
func (s *Session) Rotate(clockwise bool) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if clockwise {
		s.rotation += 90
	} else {
		s.rotation -= 90
	}
	return s.stateLocked()
}

// Preview возвращает ссылку для просмотра текущего файла.
func (s *Session) Preview(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errs.Validation("session", "closed")
	}
	idx := s.index
	if url, ok := s.previews[idx]; ok {
		s.mu.Unlock()
		return url, nil
	}
	p := s.order.Files[idx]
	s.mu.Unlock()

	url, err := s.viewer.URL(ctx, p)
	if err != nil {
		return "", fmt.Errorf("preview url: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.previews[idx] = url
	}
	return url, nil
}

// begin захватывает сессию для изменяющей операции, допустимой в указанных режимах,
// и возвращает идентификатор заказа.
func (s *Session) begin(op string, modes ...Mode) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return uuid.Nil, errs.Validation("session", "closed")
	}
	if s.busy {
		return uuid.Nil, errs.ErrBusy
	}
	if !slices.Contains(modes, s.mode) {
		return uuid.Nil, errs.Validation("mode", fmt.Sprintf("%s is not available in %s mode", op, s.mode))
	}
	s.busy = true
	s.lastUsed = s.now()
	return s.order.ID, nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// Print отправляет текущий файл на печать. Статус заказа не меняется.
func (s *Session) Print(ctx context.Context) error {
	if _, err := s.begin("print", ModePrinting, ModeReprint); err != nil {
		return err
	}
	defer s.end()

	s.mu.Lock()
	job := Job{
		OrderID:     s.order.ID,
		OrderNumber: s.order.Number,
		LocationID:  s.order.LocationID,
		File:        s.order.Files[s.index],
		FileIndex:   s.index,
		Spec:        s.order.Spec,
		Reprint:     s.mode == ModeReprint,
		RequestedBy: s.actor.ID,
		RequestedAt: s.now(),
	}
	s.mu.Unlock()

	if err := s.printer.Print(ctx, job); err != nil {
		return fmt.Errorf("dispatch print job: %w", err)
	}
	s.logger.Info("print job dispatched",
		zap.String("order", job.OrderID.String()), zap.Int("file", job.FileIndex), zap.Bool("reprint", job.Reprint))
	return nil
}

// Accept принимает ожидающий заказ в печать.
func (s *Session) Accept(ctx context.Context) (State, error) {
	orderID, err := s.begin("accept", ModeReview)
	if err != nil {
		return State{}, err
	}
	defer s.end()

	o, err := s.orders.Transition(ctx, s.actor, orderID, model.OrderStatusPrinting)
	if err != nil {
		return State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(o)
	return s.stateLocked(), nil
}

// MarkReady отмечает заказ напечатанным и закрывает сессию.
func (s *Session) MarkReady(ctx context.Context) (*model.Order, error) {
	return s.finish(ctx, "mark ready", model.OrderStatusReady)
}

// ReturnToPending возвращает заказ в очередь и закрывает сессию.
func (s *Session) ReturnToPending(ctx context.Context) (*model.Order, error) {
	return s.finish(ctx, "return to pending", model.OrderStatusPending)
}

func (s *Session) finish(ctx context.Context, op string, to model.OrderStatus) (*model.Order, error) {
	orderID, err := s.begin(op, ModePrinting)
	if err != nil {
		return nil, err
	}
	defer s.end()

	o, err := s.orders.Transition(ctx, s.actor, orderID, to)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.order = o.Clone()
	s.closeLocked()
	s.mu.Unlock()
	return o, nil
}

// ReportIssue открывает обращение по заказу; сессия переходит в режим переписки.
func (s *Session) ReportIssue(ctx context.Context, category, message string) (*model.SupportTicket, error) {
	orderID, err := s.begin("report issue", ModePrinting)
	if err != nil {
		return nil, err
	}
	defer s.end()

	t, err := s.issues.Open(ctx, s.actor, orderID, category, message)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticket = t
	s.order.Status = model.OrderStatusPaused
	s.mode = ModeChat
	return t, nil
}

// Sync применяет изменение заказа, полученное из ленты событий или от другой сессии.
func (s *Session) Sync(o *model.Order) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || o.ID != s.order.ID || o.UpdatedAt.Before(s.order.UpdatedAt) {
		return s.stateLocked()
	}
	s.applyLocked(o)
	return s.stateLocked()
}

func (s *Session) applyLocked(o *model.Order) {
	s.order = o.Clone()
	if o.Status.Terminal() {
		s.closeLocked()
		return
	}
	mode, _ := modeFor(o.Status)
	if mode != ModeChat {
		s.ticket = nil
	}
	s.mode = mode
	if s.index > len(o.Files)-1 {
		s.index = max(0, len(o.Files)-1)
	}
}

func (s *Session) attachTicket(t *model.SupportTicket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticket = t
}

// Close закрывает сессию и освобождает ссылки просмотра. Применённые переходы не откатываются.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	clear(s.previews)
}

// Closed сообщает, закрыта ли сессия.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = s.now()
	s.mu.Unlock()
}
