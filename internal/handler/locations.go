package handler

import (
	"net/http"

	"github.com/mmeshcher/printpoints/internal/model"
	"github.com/mmeshcher/printpoints/internal/service"
)

// GetPrices возвращает общую таблицу цен.
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.service.Prices(r.Context())
	if err != nil {
		h.writeError(w, r, err, "get prices error")
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

// PutPrices заменяет цены общей таблицы.
func (h *Handler) PutPrices(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var prices model.PriceTable
	if !decodeJSON(w, r, &prices) {
		return
	}

	if err := h.service.SetPrices(r.Context(), a, prices); err != nil {
		h.writeError(w, r, err, "put prices error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// PostQuote рассчитывает стоимость заказа до оформления.
func (h *Handler) PostQuote(w http.ResponseWriter, r *http.Request) {
	var req service.QuoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	quote, err := h.service.Quote(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, "quote error")
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// GetLocations возвращает точки печати.
func (h *Handler) GetLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.service.Locations(r.Context())
	if err != nil {
		h.writeError(w, r, err, "get locations error")
		return
	}
	writeJSON(w, http.StatusOK, locs)
}

// CreateLocation создаёт точку печати.
func (h *Handler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var in service.LocationInput
	if !decodeJSON(w, r, &in) {
		return
	}

	loc, err := h.service.CreateLocation(r.Context(), a, in)
	if err != nil {
		h.writeError(w, r, err, "create location error")
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

// UpdateLocation изменяет настройки точки печати.
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	var in service.LocationInput
	if !decodeJSON(w, r, &in) {
		return
	}

	loc, err := h.service.UpdateLocation(r.Context(), a, id, in)
	if err != nil {
		h.writeError(w, r, err, "update location error")
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// Heartbeat отмечает, что точка оператора на связи.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	if err := h.service.Heartbeat(r.Context(), a); err != nil {
		h.writeError(w, r, err, "heartbeat error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type openRequest struct {
	Open bool `json:"open"`
}

// SetOpen открывает или закрывает точку оператора.
func (h *Handler) SetOpen(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req openRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.SetOpen(r.Context(), a, req.Open); err != nil {
		h.writeError(w, r, err, "set open error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetQueue возвращает очередь заказов точки оператора.
func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	q, err := h.service.LocationQueue(r.Context(), a)
	if err != nil {
		h.writeError(w, r, err, "get queue error")
		return
	}
	writeJSON(w, http.StatusOK, q)
}
