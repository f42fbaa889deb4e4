// Package handler содержит HTTP-обработчики API сети точек печати.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/middleware"
	"github.com/mmeshcher/printpoints/internal/model"
	"github.com/mmeshcher/printpoints/internal/pricing"
	"github.com/mmeshcher/printpoints/internal/queue"
	"github.com/mmeshcher/printpoints/internal/realtime"
	"github.com/mmeshcher/printpoints/internal/repository"
	"github.com/mmeshcher/printpoints/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, c service.Credentials) (*model.User, error)
	AuthenticateUser(ctx context.Context, c service.Credentials) (*model.User, error)
	CreateOperator(ctx context.Context, a model.Actor, c service.Credentials, locationID int64) (*model.User, error)
	Balance(ctx context.Context, a model.Actor) (*model.PointsAccount, error)

	Prices(ctx context.Context) (model.PriceTable, error)
	SetPrices(ctx context.Context, a model.Actor, prices model.PriceTable) error
	Quote(ctx context.Context, req service.QuoteRequest) (pricing.Quote, error)

	Locations(ctx context.Context) ([]service.LocationView, error)
	CreateLocation(ctx context.Context, a model.Actor, in service.LocationInput) (*model.Location, error)
	UpdateLocation(ctx context.Context, a model.Actor, id int64, in service.LocationInput) (*model.Location, error)
	Heartbeat(ctx context.Context, a model.Actor) error
	SetOpen(ctx context.Context, a model.Actor, open bool) error
	LocationQueue(ctx context.Context, a model.Actor) (queue.Queue, error)

	SubmitOrder(ctx context.Context, a model.Actor, in service.OrderInput) (*model.Order, error)
	Orders(ctx context.Context, a model.Actor) ([]model.Order, error)
	Order(ctx context.Context, a model.Actor, id uuid.UUID) (*model.Order, error)
	OrderByNumber(ctx context.Context, a model.Actor, display string) (*model.Order, error)
	PickupCode(ctx context.Context, a model.Actor, id uuid.UUID) (string, error)
	Transition(ctx context.Context, a model.Actor, id uuid.UUID, to model.OrderStatus) (*model.Order, error)
	Transitions(ctx context.Context, a model.Actor, id uuid.UUID) (*service.OrderTransitions, error)

	OpenIssue(ctx context.Context, a model.Actor, orderID uuid.UUID, category, message string) (*model.SupportTicket, error)
	CreateTicket(ctx context.Context, a model.Actor, in service.TicketInput) (*model.SupportTicket, error)
	Tickets(ctx context.Context, a model.Actor) ([]model.SupportTicket, error)
	Messages(ctx context.Context, a model.Actor, ticketID uuid.UUID) ([]model.TicketMessage, error)
	PostMessage(ctx context.Context, a model.Actor, ticketID uuid.UUID, body string) (*model.TicketMessage, error)
	ResolveTicket(ctx context.Context, a model.Actor, ticketID uuid.UUID) (*model.SupportTicket, error)
	Alerts(ctx context.Context, a model.Actor) ([]model.Alert, error)

	OpenSession(ctx context.Context, a model.Actor, orderID uuid.UUID) (*service.SessionResult, error)
	CloseSession(a model.Actor, id uuid.UUID) error
	RunSessionOp(ctx context.Context, a model.Actor, id uuid.UUID, op service.SessionOp, args service.SessionArgs) (*service.SessionResult, error)

	Subscribe(ctx context.Context, a model.Actor, topic, id string) (*realtime.Subscription, error)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	filesDir       string
}

// Option настраивает Handler.
type Option func(*Handler)

// WithFilesDir раздаёт файлы заказов локального хранилища по /files/.
func WithFilesDir(dir string) Option {
	return func(h *Handler) { h.filesDir = dir }
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type errorResponse struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Alert  bool   `json:"alert,omitempty"`
	Ticket string `json:"ticket_id,omitempty"`
	Order  string `json:"order_id,omitempty"`
}

// statusFor сопоставляет ошибку сценария HTTP-статусу.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrPartialFailure):
		return http.StatusInternalServerError
	case errors.Is(err, errs.ErrUpload):
		return http.StatusBadGateway
	case errors.Is(err, errs.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrInvalidTransition), errors.Is(err, errs.ErrStaleData),
		errors.Is(err, repository.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrBusy):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeError пишет ответ с ошибкой. Неожиданные ошибки логируются, их текст клиенту не отдаётся.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}

	var pf *errs.PartialFailureError
	switch {
	case errors.As(err, &pf):
		resp.Alert = true
		resp.Ticket = pf.TicketID
		resp.Order = pf.OrderID
		h.logger.Error(msg, zap.Error(err), zap.String("uri", r.RequestURI))
	case status == http.StatusInternalServerError:
		resp.Error = http.StatusText(status)
		h.logger.Error(msg, zap.Error(err), zap.String("uri", r.RequestURI))
	case status == http.StatusBadGateway:
		h.logger.Warn(msg, zap.Error(err))
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}

func actorOrUnauthorized(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	a, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return a, ok
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// Register обрабатывает регистрацию нового клиента.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.Credentials
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.RegisterUser(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, "register user error")
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, u); err != nil {
		h.writeError(w, r, err, "set auth cookie error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.Credentials
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, "login user error")
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, u); err != nil {
		h.writeError(w, r, err, "set auth cookie error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Logout удаляет cookie авторизации.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

// GetBalance возвращает счёт баллов текущего клиента.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	acc, err := h.service.Balance(r.Context(), a)
	if err != nil {
		h.writeError(w, r, err, "get balance error")
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

type operatorRequest struct {
	service.Credentials
	LocationID int64 `json:"location_id"`
}

// CreateOperator создаёт учётную запись оператора точки.
func (h *Handler) CreateOperator(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req operatorRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.CreateOperator(r.Context(), a, req.Credentials, req.LocationID)
	if err != nil {
		h.writeError(w, r, err, "create operator error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          u.ID,
		"login":       u.Login,
		"role":        u.Role,
		"location_id": u.LocationID,
	})
}

// GetAlerts возвращает неснятые предупреждения о несогласованности.
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	alerts, err := h.service.Alerts(r.Context(), a)
	if err != nil {
		h.writeError(w, r, err, "get alerts error")
		return
	}
	if len(alerts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}
