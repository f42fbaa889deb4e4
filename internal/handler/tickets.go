package handler

import (
	"net/http"

	"github.com/mmeshcher/printpoints/internal/service"
)

// CreateTicket создаёт общее обращение.
func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var in service.TicketInput
	if !decodeJSON(w, r, &in) {
		return
	}

	ticket, err := h.service.CreateTicket(r.Context(), a, in)
	if err != nil {
		h.writeError(w, r, err, "create ticket error")
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

// GetTickets возвращает обращения участника.
func (h *Handler) GetTickets(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	tickets, err := h.service.Tickets(r.Context(), a)
	if err != nil {
		h.writeError(w, r, err, "get tickets error")
		return
	}
	if len(tickets) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

// GetMessages возвращает переписку по обращению.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	msgs, err := h.service.Messages(r.Context(), a, id)
	if err != nil {
		h.writeError(w, r, err, "get messages error")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type messageRequest struct {
	Message string `json:"message"`
}

// PostMessage добавляет сообщение в обращение.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.service.PostMessage(r.Context(), a, id, req.Message)
	if err != nil {
		h.writeError(w, r, err, "post message error")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// ResolveTicket закрывает обращение. Если заказ обращения не удалось вернуть в печать,
// ответ 500 содержит признак alert.
func (h *Handler) ResolveTicket(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	ticket, err := h.service.ResolveTicket(r.Context(), a, id)
	if err != nil {
		h.writeError(w, r, err, "resolve ticket error")
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}
