package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mmeshcher/printpoints/internal/service"
)

type openSessionRequest struct {
	OrderID uuid.UUID `json:"order_id"`
}

// OpenSession открывает сессию печати заказа.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req openSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.OpenSession(r.Context(), a, req.OrderID)
	if err != nil {
		h.writeError(w, r, err, "open session error")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// SessionOp выполняет операцию над сессией печати. Тело запроса нужно только для issue.
func (h *Handler) SessionOp(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "sid")
	if !ok {
		return
	}

	op := service.SessionOp(chi.URLParam(r, "op"))
	var args service.SessionArgs
	if op == service.OpIssue {
		if err := decodeBody(r, &args); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}

	res, err := h.service.RunSessionOp(r.Context(), a, id, op, args)
	if err != nil {
		h.writeError(w, r, err, "session operation error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CloseSession закрывает сессию печати.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "sid")
	if !ok {
		return
	}

	if err := h.service.CloseSession(a, id); err != nil {
		h.writeError(w, r, err, "close session error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
