package printsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/metrics"
	"github.com/mmeshcher/printpoints/internal/model"
)

// OrderReader читает заказ для открытия сессии.
type OrderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
}

// Manager хранит открытые сессии операторов и закрывает простаивающие.
type Manager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	reader   OrderReader
	deps     deps
	idle     time.Duration
}

// NewManager создаёт менеджер сессий. Сессии без действий дольше idle закрываются.
func NewManager(reader OrderReader, orders Orders, issues Issues, printer Printer, previews Previews, idle time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: map[uuid.UUID]*Session{},
		reader:   reader,
		deps: deps{
			orders:  orders,
			issues:  issues,
			printer: printer,
			viewer:  previews,
			logger:  logger,
			now:     time.Now,
		},
		idle: idle,
	}
}

// Open открывает сессию оператора над заказом его точки. Режим выбирается по статусу заказа.
func (m *Manager) Open(ctx context.Context, a model.Actor, orderID uuid.UUID) (*Session, error) {
	o, err := m.reader.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !a.OperatesLocation(o.LocationID) {
		return nil, fmt.Errorf("%w: order belongs to another location", errs.ErrForbidden)
	}
	s, err := newSession(a, o, m.deps)
	if err != nil {
		return nil, err
	}
	if s.mode == ModeChat {
		t, err := m.deps.issues.FindOpen(ctx, orderID)
		switch {
		case err == nil:
			s.attachTicket(t)
		case !errors.Is(err, errs.ErrNotFound):
			return nil, fmt.Errorf("find open ticket: %w", err)
		}
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.OpenSessions.Set(float64(n))
	m.deps.logger.Info("print session opened",
		zap.String("session", s.id.String()),
		zap.String("order", orderID.String()),
		zap.String("mode", string(s.mode)),
		zap.Int64("operator", a.ID),
	)
	return s, nil
}

// Get возвращает открытую сессию участника. Закрытые сессии удаляются и не возвращаются.
func (m *Manager) Get(a model.Actor, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && s.Closed() {
		delete(m.sessions, id)
		ok = false
	}
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.OpenSessions.Set(float64(n))

	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, errs.ErrNotFound)
	}
	if s.actor.ID != a.ID {
		return nil, fmt.Errorf("%w: session belongs to another operator", errs.ErrForbidden)
	}
	s.touch()
	return s, nil
}

// Close закрывает сессию участника.
func (m *Manager) Close(a model.Actor, id uuid.UUID) error {
	s, err := m.Get(a, id)
	if err != nil {
		return err
	}
	s.Close()
	m.remove(id)
	return nil
}

func (m *Manager) remove(id uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.OpenSessions.Set(float64(n))
}

// OrderChanged передаёт изменение заказа всем сессиям над ним.
func (m *Manager) OrderChanged(ctx context.Context, o *model.Order) {
	m.mu.Lock()
	var targets []*Session
	for _, s := range m.sessions {
		if s.State().OrderID == o.ID {
			targets = append(targets, s)
		}
	}
	m.mu.Unlock()

	for _, s := range targets {
		if st := s.Sync(o); st.Closed {
			m.remove(st.ID)
		}
	}
}

// Sweep закрывает сессии, простаивающие дольше idle. Возвращает число закрытых.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	closed := 0
	for id, s := range m.sessions {
		if s.Closed() || (m.idle > 0 && now.Sub(s.idleSince()) > m.idle) {
			s.Close()
			delete(m.sessions, id)
			closed++
		}
	}
	metrics.OpenSessions.Set(float64(len(m.sessions)))
	return closed
}

// Len возвращает число открытых сессий.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run периодически закрывает простаивающие сессии до отмены контекста.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Sweep(now); n > 0 {
				m.deps.logger.Info("idle print sessions closed", zap.Int("count", n))
			}
		}
	}
}
