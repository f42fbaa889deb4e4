package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/model"
	"github.com/mmeshcher/printpoints/internal/printsession"
)

// SessionOp задаёт операцию над сессией печати.
type SessionOp string

const (
	OpState       SessionOp = "state"
	OpNext        SessionOp = "next"
	OpPrev        SessionOp = "prev"
	OpZoomIn      SessionOp = "zoom-in"
	OpZoomOut     SessionOp = "zoom-out"
	OpRotateLeft  SessionOp = "rotate-left"
	OpRotateRight SessionOp = "rotate-right"
	OpPreview     SessionOp = "preview"
	OpPrint       SessionOp = "print"
	OpAccept      SessionOp = "accept"
	OpReady       SessionOp = "ready"
	OpReturn      SessionOp = "return"
	OpIssue       SessionOp = "issue"
)

// SessionArgs содержит параметры операции report issue.
type SessionArgs struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// SessionResult содержит результат операции над сессией.
type SessionResult struct {
	State      printsession.State   `json:"state"`
	Order      *model.Order         `json:"order,omitempty"`
	Ticket     *model.SupportTicket `json:"ticket,omitempty"`
	PreviewURL string               `json:"preview_url,omitempty"`
}

// OpenSession открывает сессию печати заказа.
func (s *Service) OpenSession(ctx context.Context, a model.Actor, orderID uuid.UUID) (*SessionResult, error) {
	sess, err := s.deps.Sessions.Open(ctx, a, orderID)
	if err != nil {
		return nil, err
	}
	return &SessionResult{State: sess.State()}, nil
}

// CloseSession закрывает сессию печати.
func (s *Service) CloseSession(a model.Actor, id uuid.UUID) error {
	return s.deps.Sessions.Close(a, id)
}

// RunSessionOp выполняет операцию над сессией печати.
func (s *Service) RunSessionOp(ctx context.Context, a model.Actor, id uuid.UUID, op SessionOp, args SessionArgs) (*SessionResult, error) {
	sess, err := s.deps.Sessions.Get(a, id)
	if err != nil {
		return nil, err
	}

	res := &SessionResult{}
	switch op {
	case OpState:
	case OpNext:
		sess.Advance(1)
	case OpPrev:
		sess.Advance(-1)
	case OpZoomIn:
		sess.ZoomIn()
	case OpZoomOut:
		sess.ZoomOut()
	case OpRotateLeft:
		sess.Rotate(false)
	case OpRotateRight:
		sess.Rotate(true)
	case OpPreview:
		res.PreviewURL, err = sess.Preview(ctx)
	case OpPrint:
		err = sess.Print(ctx)
	case OpAccept:
		_, err = sess.Accept(ctx)
	case OpReady:
		res.Order, err = sess.MarkReady(ctx)
	case OpReturn:
		res.Order, err = sess.ReturnToPending(ctx)
	case OpIssue:
		res.Ticket, err = sess.ReportIssue(ctx, args.Category, args.Message)
	default:
		return nil, errs.Validation("op", "unknown session operation")
	}
	if err != nil {
		return nil, err
	}
	res.State = sess.State()
	return res, nil
}
