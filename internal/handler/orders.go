package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/mmeshcher/printpoints/internal/builder"
	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/model"
	"github.com/mmeshcher/printpoints/internal/service"
)

const (
	// maxOrderBody ограничивает тело запроса с файлами заказа.
	maxOrderBody   = 200 << 20
	multipartInMem = 32 << 20
	qrSize         = 256
)

// UploadOrder принимает заказ клиента: multipart-форму с файлами и параметрами печати.
func (h *Handler) UploadOrder(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxOrderBody)
	if err := r.ParseMultipartForm(multipartInMem); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("remove multipart files", zap.Error(err))
		}
	}()

	locationID, _ := strconv.ParseInt(r.FormValue("location_id"), 10, 64)
	copies, _ := strconv.Atoi(r.FormValue("copies"))

	in := service.OrderInput{
		LocationID: locationID,
		Size:       r.FormValue("size"),
		Quality:    r.FormValue("quality"),
		Copies:     copies,
		Notes:      r.FormValue("notes"),
	}

	for _, fh := range r.MultipartForm.File["files"] {
		if fh.Size > builder.MaxFileSize {
			h.writeError(w, r, errs.Validation("files", fmt.Sprintf("%s exceeds %d MB", fh.Filename, builder.MaxFileSize>>20)), "upload order error")
			return
		}
		content, err := readPart(fh)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		in.Files = append(in.Files, service.UploadedFile{Name: fh.Filename, Content: content})
	}

	order, err := h.service.SubmitOrder(r.Context(), a, in)
	if err != nil {
		h.writeError(w, r, err, "upload order error")
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// GetOrders возвращает заказы, видимые текущему участнику.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	orders, err := h.service.Orders(r.Context(), a)
	if err != nil {
		h.writeError(w, r, err, "get orders error")
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	order, err := h.service.Order(r.Context(), a, id)
	if err != nil {
		h.writeError(w, r, err, "get order error")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// GetOrderByNumber возвращает заказ по отображаемому номеру NNNNNN-C.
func (h *Handler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	order, err := h.service.OrderByNumber(r.Context(), a, chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, r, err, "get order by number error")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// GetPickupQR возвращает PNG с QR-кодом выдачи готового заказа.
func (h *Handler) GetPickupQR(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	code, err := h.service.PickupCode(r.Context(), a, id)
	if err != nil {
		h.writeError(w, r, err, "get pickup code error")
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, qrSize)
	if err != nil {
		h.writeError(w, r, err, "encode qr code error")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type transitionRequest struct {
	Status model.OrderStatus `json:"status"`
}

// TransitionOrder переводит заказ в новый статус.
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.service.Transition(r.Context(), a, id, req.Status)
	if err != nil {
		h.writeError(w, r, err, "transition order error")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// GetTransitions возвращает статусы, в которые текущий участник может перевести заказ.
func (h *Handler) GetTransitions(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	res, err := h.service.Transitions(r.Context(), a, id)
	if err != nil {
		h.writeError(w, r, err, "get transitions error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type issueRequest struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// ReportIssue открывает обращение по заказу и приостанавливает его печать.
func (h *Handler) ReportIssue(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req issueRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ticket, err := h.service.OpenIssue(r.Context(), a, id, req.Category, req.Message)
	if err != nil {
		h.writeError(w, r, err, "report issue error")
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}
