// Package service связывает сценарии сервиса печати для транспортного слоя.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/printpoints/internal/builder"
	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/lifecycle"
	"github.com/mmeshcher/printpoints/internal/model"
	"github.com/mmeshcher/printpoints/internal/pricing"
	"github.com/mmeshcher/printpoints/internal/printsession"
	"github.com/mmeshcher/printpoints/internal/queue"
	"github.com/mmeshcher/printpoints/internal/realtime"
	"github.com/mmeshcher/printpoints/internal/repository"
	"github.com/mmeshcher/printpoints/internal/validation"
)

// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role, locationID *int64) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetPointsAccount(ctx context.Context, customerID int64) (*model.PointsAccount, error)

	GetPrices(ctx context.Context) (model.PriceTable, error)
	PutPrices(ctx context.Context, prices model.PriceTable) error

	ListLocations(ctx context.Context) ([]model.Location, error)
	GetLocation(ctx context.Context, id int64) (*model.Location, error)
	CreateLocation(ctx context.Context, l *model.Location) error
	UpdateLocation(ctx context.Context, l *model.Location) error
	Heartbeat(ctx context.Context, locationID int64, at time.Time) error
	SetOpen(ctx context.Context, locationID int64, open bool, at time.Time) error

	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetOrderByNumber(ctx context.Context, number int64) (*model.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error)
	ListOrdersByLocation(ctx context.Context, locationID int64) ([]model.Order, error)
	ListActiveOrders(ctx context.Context) ([]model.Order, error)

	ListTickets(ctx context.Context, creatorID int64) ([]model.SupportTicket, error)
	ListOpenAlerts(ctx context.Context) ([]model.Alert, error)
}

// Orders выполняет переходы статусов заказа.
type Orders interface {
	Transition(ctx context.Context, a model.Actor, orderID uuid.UUID, to model.OrderStatus) (*model.Order, error)
}

// Builder оформляет заказы из черновиков.
type Builder interface {
	Submit(ctx context.Context, a model.Actor, d *builder.Draft) (*model.Order, error)
}

// Issues реализует обращения в поддержку.
type Issues interface {
	Open(ctx context.Context, a model.Actor, orderID uuid.UUID, category, message string) (*model.SupportTicket, error)
	CreateTicket(ctx context.Context, a model.Actor, typ model.TicketType, category, description string) (*model.SupportTicket, error)
	Ticket(ctx context.Context, a model.Actor, ticketID uuid.UUID) (*model.SupportTicket, error)
	Post(ctx context.Context, a model.Actor, ticketID uuid.UUID, text string) (*model.TicketMessage, error)
	Messages(ctx context.Context, a model.Actor, ticketID uuid.UUID) ([]model.TicketMessage, error)
	Resolve(ctx context.Context, a model.Actor, ticketID uuid.UUID) (*model.SupportTicket, error)
}

// Sessions хранит сессии печати операторов.
type Sessions interface {
	Open(ctx context.Context, a model.Actor, orderID uuid.UUID) (*printsession.Session, error)
	Get(a model.Actor, id uuid.UUID) (*printsession.Session, error)
	Close(a model.Actor, id uuid.UUID) error
}

// Board выдаёт очереди заказов точек.
type Board interface {
	Queue(locationID int64) queue.Queue
}

// Subscriber выдаёт подписки на изменения.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (*realtime.Subscription, error)
}

// Deps содержит компоненты, которые использует сервис.
type Deps struct {
	Orders   Orders
	Builder  Builder
	Issues   Issues
	Sessions Sessions
	Board    Board
	Events   Subscriber
}

// Service содержит сценарии сервиса печати.
type Service struct {
	repo   Repository
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и компонентами.
func NewService(repo Repository, deps Deps, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, deps: deps, logger: logger, now: time.Now}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Credentials содержит логин и пароль пользователя.
type Credentials struct {
	Login    string `json:"login" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// RegisterUser регистрирует нового клиента.
func (s *Service) RegisterUser(ctx context.Context, c Credentials) (*model.User, error) {
	return s.createUser(ctx, c, model.RoleCustomer, nil)
}

// CreateOperator создаёт оператора точки. Доступно только администратору.
func (s *Service) CreateOperator(ctx context.Context, a model.Actor, c Credentials, locationID int64) (*model.User, error) {
	if !a.IsAdmin() {
		return nil, fmt.Errorf("%w: admin only", errs.ErrForbidden)
	}
	if locationID <= 0 {
		return nil, errs.Validation("location_id", "required")
	}
	return s.createUser(ctx, c, model.RoleLocation, &locationID)
}

func (s *Service) createUser(ctx context.Context, c Credentials, role model.Role, locationID *int64) (*model.User, error) {
	if err := validation.Struct(c); err != nil {
		return nil, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	id, err := s.repo.CreateUser(ctx, c.Login, hashed, role, locationID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.Int64("user_id", id), zap.String("role", string(role)))
	return &model.User{ID: id, Login: c.Login, Role: role, LocationID: locationID}, nil
}

// AuthenticateUser проверяет логин и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, c Credentials) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, c.Login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(c.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Balance возвращает счёт баллов клиента.
func (s *Service) Balance(ctx context.Context, a model.Actor) (*model.PointsAccount, error) {
	if a.Role != model.RoleCustomer {
		return nil, fmt.Errorf("%w: customers only", errs.ErrForbidden)
	}
	return s.repo.GetPointsAccount(ctx, a.ID)
}

// Prices возвращает глобальную таблицу цен.
func (s *Service) Prices(ctx context.Context) (model.PriceTable, error) {
	return s.repo.GetPrices(ctx)
}

// SetPrices обновляет глобальную таблицу цен.
func (s *Service) SetPrices(ctx context.Context, a model.Actor, prices model.PriceTable) error {
	if !a.IsAdmin() {
		return fmt.Errorf("%w: admin only", errs.ErrForbidden)
	}
	if len(prices) == 0 {
		return errs.Validation("prices", "required")
	}
	for key, price := range prices {
		if key == "" {
			return errs.Validation("prices", "empty key")
		}
		if price.IsNegative() {
			return errs.Validation(key, "must not be negative")
		}
	}
	return s.repo.PutPrices(ctx, prices)
}

// QuoteRequest содержит параметры предварительного расчёта стоимости.
type QuoteRequest struct {
	LocationID int64  `json:"location_id" validate:"required,gt=0"`
	Size       string `json:"size" validate:"required"`
	Quality    string `json:"quality"`
	Copies     int    `json:"copies" validate:"required,min=1,max=999"`
	Files      int    `json:"files" validate:"required,min=1"`
}

// Quote рассчитывает стоимость заказа до его оформления.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (pricing.Quote, error) {
	if err := validation.Struct(req); err != nil {
		return pricing.Quote{}, err
	}
	spec, err := model.NewSpecification(model.SizeID(req.Size), model.Quality(req.Quality), req.Copies)
	if err != nil {
		return pricing.Quote{}, errs.Validation("specification", err.Error())
	}
	loc, err := s.repo.GetLocation(ctx, req.LocationID)
	if err != nil {
		return pricing.Quote{}, err
	}
	if err := builder.Compatible(spec, loc); err != nil {
		return pricing.Quote{}, err
	}
	table, err := s.repo.GetPrices(ctx)
	if err != nil {
		return pricing.Quote{}, err
	}
	return pricing.Calculate(spec, req.Files, loc, table), nil
}

// LocationView описывает точку печати с вычисленным признаком доступности.
type LocationView struct {
	model.Location
	EffectivelyOpen bool `json:"effectively_open"`
}

// Locations возвращает точки печати.
func (s *Service) Locations(ctx context.Context) ([]LocationView, error) {
	locs, err := s.repo.ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	res := make([]LocationView, 0, len(locs))
	for _, l := range locs {
		res = append(res, LocationView{Location: l, EffectivelyOpen: l.EffectivelyOpen(now)})
	}
	return res, nil
}

// LocationInput содержит настройки точки, задаваемые администратором.
type LocationInput struct {
	Name              string             `json:"name" validate:"required,max=200"`
	Address           string             `json:"address" validate:"max=500"`
	Status            string             `json:"status" validate:"omitempty,oneof=active inactive"`
	HasFotoya         bool               `json:"has_fotoya"`
	HasColorPrinting  bool               `json:"has_color_printing"`
	AllowCustomPrices bool               `json:"allow_custom_prices"`
	MaxBWSize         string             `json:"max_bw_size" validate:"omitempty,oneof=A4 A3"`
	MaxColorSize      string             `json:"max_color_size" validate:"omitempty,oneof=A4 A3"`
	CustomPrices      model.CustomPrices `json:"custom_prices"`
}

func (in LocationInput) toModel(id int64) (*model.Location, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	for key, price := range in.CustomPrices {
		if price.IsNegative() {
			return nil, errs.Validation(key, "must not be negative")
		}
	}
	l := &model.Location{
		ID:                id,
		Name:              in.Name,
		Address:           in.Address,
		Status:            model.LocationStatus(in.Status),
		HasFotoya:         in.HasFotoya,
		HasColorPrinting:  in.HasColorPrinting,
		AllowCustomPrices: in.AllowCustomPrices,
		MaxBWSize:         model.SizeClass(in.MaxBWSize),
		MaxColorSize:      model.SizeClass(in.MaxColorSize),
		CustomPrices:      in.CustomPrices,
	}
	if l.Status == "" {
		l.Status = model.LocationActive
	}
	if l.MaxBWSize == "" {
		l.MaxBWSize = model.SizeClassA4
	}
	if l.MaxColorSize == "" {
		l.MaxColorSize = model.SizeClassA4
	}
	return l, nil
}

// CreateLocation создаёт точку печати.
func (s *Service) CreateLocation(ctx context.Context, a model.Actor, in LocationInput) (*model.Location, error) {
	if !a.IsAdmin() {
		return nil, fmt.Errorf("%w: admin only", errs.ErrForbidden)
	}
	l, err := in.toModel(0)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateLocation(ctx, l); err != nil {
		return nil, err
	}
	s.logger.Info("location created", zap.Int64("location", l.ID), zap.String("name", l.Name))
	return l, nil
}

// UpdateLocation изменяет настройки точки печати.
func (s *Service) UpdateLocation(ctx context.Context, a model.Actor, id int64, in LocationInput) (*model.Location, error) {
	if !a.IsAdmin() {
		return nil, fmt.Errorf("%w: admin only", errs.ErrForbidden)
	}
	l, err := in.toModel(id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLocation(ctx, l); err != nil {
		return nil, err
	}
	return s.repo.GetLocation(ctx, id)
}

func operatorLocation(a model.Actor) (int64, error) {
	if a.Role != model.RoleLocation || a.LocationID == 0 {
		return 0, fmt.Errorf("%w: location operators only", errs.ErrForbidden)
	}
	return a.LocationID, nil
}

// Heartbeat отмечает, что точка оператора на связи.
func (s *Service) Heartbeat(ctx context.Context, a model.Actor) error {
	loc, err := operatorLocation(a)
	if err != nil {
		return err
	}
	return s.repo.Heartbeat(ctx, loc, s.now())
}

// SetOpen открывает или закрывает точку оператора.
func (s *Service) SetOpen(ctx context.Context, a model.Actor, open bool) error {
	loc, err := operatorLocation(a)
	if err != nil {
		return err
	}
	if err := s.repo.SetOpen(ctx, loc, open, s.now()); err != nil {
		return err
	}
	s.logger.Info("location open flag changed", zap.Int64("location", loc), zap.Bool("open", open))
	return nil
}

// LocationQueue возвращает очередь заказов точки оператора.
func (s *Service) LocationQueue(ctx context.Context, a model.Actor) (queue.Queue, error) {
	loc, err := operatorLocation(a)
	if err != nil {
		return queue.Queue{}, err
	}
	return s.deps.Board.Queue(loc), nil
}

// UploadedFile описывает файл заказа, полученный от клиента.
type UploadedFile struct {
	Name    string
	Content []byte
}

// OrderInput содержит данные нового заказа.
type OrderInput struct {
	LocationID int64  `validate:"required,gt=0"`
	Size       string `validate:"required"`
	Quality    string
	Copies     int `validate:"required,min=1,max=999"`
	Notes      string
	Files      []UploadedFile `validate:"required,min=1"`
}

// SubmitOrder проходит шаги оформления заказа и оформляет его.
func (s *Service) SubmitOrder(ctx context.Context, a model.Actor, in OrderInput) (*model.Order, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	d := builder.NewDraft()
	for _, f := range in.Files {
		if err := d.AddFile(f.Name, f.Content); err != nil {
			return nil, err
		}
	}
	if err := d.Next(); err != nil {
		return nil, err
	}

	loc, err := s.repo.GetLocation(ctx, in.LocationID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.Validation("location", "not found")
		}
		return nil, err
	}
	if err := d.SelectLocation(loc); err != nil {
		return nil, err
	}
	if err := d.Next(); err != nil {
		return nil, err
	}

	if err := d.SetSpecification(model.SizeID(in.Size), model.Quality(in.Quality), in.Copies); err != nil {
		return nil, err
	}
	if err := d.SetNotes(in.Notes); err != nil {
		return nil, err
	}
	if err := d.Next(); err != nil {
		return nil, err
	}

	return s.deps.Builder.Submit(ctx, a, d)
}

func visible(a model.Actor, o *model.Order) bool {
	return a.IsAdmin() || a.OperatesLocation(o.LocationID) ||
		(a.Role == model.RoleCustomer && a.ID == o.CustomerID)
}

// Orders возвращает заказы, видимые участнику.
func (s *Service) Orders(ctx context.Context, a model.Actor) ([]model.Order, error) {
	switch a.Role {
	case model.RoleCustomer:
		return s.repo.ListOrdersByCustomer(ctx, a.ID)
	case model.RoleLocation:
		loc, err := operatorLocation(a)
		if err != nil {
			return nil, err
		}
		return s.repo.ListOrdersByLocation(ctx, loc)
	case model.RoleAdmin:
		return s.repo.ListActiveOrders(ctx)
	}
	return nil, errs.ErrForbidden
}

// Order возвращает заказ, если он виден участнику.
func (s *Service) Order(ctx context.Context, a model.Actor, id uuid.UUID) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visible(a, o) {
		// Чужой заказ неотличим от несуществующего.
		return nil, fmt.Errorf("order %s: %w", id, errs.ErrNotFound)
	}
	return o, nil
}

// OrderTransitions содержит текущий статус заказа и статусы, доступные участнику.
type OrderTransitions struct {
	Status  model.OrderStatus   `json:"status"`
	Allowed []model.OrderStatus `json:"allowed"`
}

// Transitions возвращает статусы, в которые участник может перевести заказ прямым действием.
func (s *Service) Transitions(ctx context.Context, a model.Actor, id uuid.UUID) (*OrderTransitions, error) {
	o, err := s.Order(ctx, a, id)
	if err != nil {
		return nil, err
	}
	allowed := lifecycle.Targets(a, o)
	if allowed == nil {
		allowed = []model.OrderStatus{}
	}
	return &OrderTransitions{Status: o.Status, Allowed: allowed}, nil
}

// OrderByNumber возвращает заказ по отображаемому номеру вида 000123-4.
func (s *Service) OrderByNumber(ctx context.Context, a model.Actor, display string) (*model.Order, error) {
	seq, err := validation.ParseOrderNumber(display)
	if err != nil {
		return nil, errs.Validation("number", "invalid check digit")
	}
	o, err := s.repo.GetOrderByNumber(ctx, seq)
	if err != nil {
		return nil, err
	}
	if !visible(a, o) {
		return nil, fmt.Errorf("order %s: %w", display, errs.ErrNotFound)
	}
	return o, nil
}

// PickupCode возвращает содержимое QR-кода для выдачи заказа клиенту.
func (s *Service) PickupCode(ctx context.Context, a model.Actor, id uuid.UUID) (string, error) {
	o, err := s.Order(ctx, a, id)
	if err != nil {
		return "", err
	}
	if a.ID != o.CustomerID {
		return "", fmt.Errorf("%w: pickup code belongs to the customer", errs.ErrForbidden)
	}
	if o.Status != model.OrderStatusReady {
		return "", errs.Validation("status", "order is not ready for pickup")
	}
	return "printpoints:order:" + validation.FormatOrderNumber(o.Number), nil
}

// Transition выполняет прямой переход статуса заказа.
func (s *Service) Transition(ctx context.Context, a model.Actor, id uuid.UUID, to model.OrderStatus) (*model.Order, error) {
	if !to.Valid() {
		return nil, errs.Validation("status", "unknown")
	}
	return s.deps.Orders.Transition(ctx, a, id, to)
}

// OpenIssue открывает обращение по заказу.
func (s *Service) OpenIssue(ctx context.Context, a model.Actor, orderID uuid.UUID, category, message string) (*model.SupportTicket, error) {
	return s.deps.Issues.Open(ctx, a, orderID, category, message)
}

// TicketInput содержит данные общего обращения.
type TicketInput struct {
	Type        string `json:"type" validate:"required,oneof=system_report client_general"`
	Category    string `json:"category" validate:"required,max=100"`
	Description string `json:"description" validate:"required"`
}

// CreateTicket создаёт общее обращение.
func (s *Service) CreateTicket(ctx context.Context, a model.Actor, in TicketInput) (*model.SupportTicket, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	return s.deps.Issues.CreateTicket(ctx, a, model.TicketType(in.Type), in.Category, in.Description)
}

// Tickets возвращает обращения участника; администратору все.
func (s *Service) Tickets(ctx context.Context, a model.Actor) ([]model.SupportTicket, error) {
	if a.IsAdmin() {
		return s.repo.ListTickets(ctx, 0)
	}
	return s.repo.ListTickets(ctx, a.ID)
}

// Messages возвращает переписку по обращению.
func (s *Service) Messages(ctx context.Context, a model.Actor, ticketID uuid.UUID) ([]model.TicketMessage, error) {
	return s.deps.Issues.Messages(ctx, a, ticketID)
}

// PostMessage добавляет сообщение в обращение.
func (s *Service) PostMessage(ctx context.Context, a model.Actor, ticketID uuid.UUID, body string) (*model.TicketMessage, error) {
	return s.deps.Issues.Post(ctx, a, ticketID, body)
}

// ResolveTicket закрывает обращение.
func (s *Service) ResolveTicket(ctx context.Context, a model.Actor, ticketID uuid.UUID) (*model.SupportTicket, error) {
	return s.deps.Issues.Resolve(ctx, a, ticketID)
}

// Alerts возвращает неснятые предупреждения о несогласованности.
func (s *Service) Alerts(ctx context.Context, a model.Actor) ([]model.Alert, error) {
	if !a.IsAdmin() {
		return nil, fmt.Errorf("%w: admin only", errs.ErrForbidden)
	}
	return s.repo.ListOpenAlerts(ctx)
}

// Subscribe подписывает участника на изменения. topic: location, customer или ticket;
// для location и customer пустой id означает собственную точку или собственные заказы.
func (s *Service) Subscribe(ctx context.Context, a model.Actor, topic, id string) (*realtime.Subscription, error) {
	channel, err := s.channel(ctx, a, topic, id)
	if err != nil {
		return nil, err
	}
	return s.deps.Events.Subscribe(ctx, channel)
}

func (s *Service) channel(ctx context.Context, a model.Actor, topic, id string) (string, error) {
	switch topic {
	case "location":
		loc := a.LocationID
		if id != "" {
			v, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				return "", errs.Validation("id", "must be a number")
			}
			loc = v
		}
		if !a.IsAdmin() && !a.OperatesLocation(loc) {
			return "", fmt.Errorf("%w: not the location operator", errs.ErrForbidden)
		}
		return realtime.LocationChannel(loc), nil
	case "customer":
		cust := a.ID
		if id != "" {
			v, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				return "", errs.Validation("id", "must be a number")
			}
			cust = v
		}
		if !a.IsAdmin() && (a.Role != model.RoleCustomer || a.ID != cust) {
			return "", fmt.Errorf("%w: not the customer", errs.ErrForbidden)
		}
		return realtime.CustomerChannel(cust), nil
	case "ticket":
		ticketID, err := uuid.Parse(id)
		if err != nil {
			return "", errs.Validation("id", "must be a uuid")
		}
		if _, err := s.deps.Issues.Ticket(ctx, a, ticketID); err != nil {
			return "", err
		}
		return realtime.TicketChannel(ticketID), nil
	}
	return "", errs.Validation("topic", "must be location, customer or ticket")
}
