package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/printpoints/internal/middleware"
	"github.com/mmeshcher/printpoints/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware API.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Handle("/metrics", promhttp.Handler())
	if h.filesDir != "" {
		r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(h.filesDir))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)
		r.Post("/user/logout", h.Logout)

		r.Get("/prices", h.GetPrices)
		r.Post("/quote", h.PostQuote)
		r.Get("/locations", h.GetLocations)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.With(custommiddleware.RequireRole(model.RoleCustomer)).Get("/user/balance", h.GetBalance)

			r.Route("/admin", func(r chi.Router) {
				r.Use(custommiddleware.RequireRole(model.RoleAdmin))

				r.Put("/prices", h.PutPrices)
				r.Post("/locations", h.CreateLocation)
				r.Put("/locations/{id}", h.UpdateLocation)
				r.Post("/operators", h.CreateOperator)
				r.Get("/alerts", h.GetAlerts)
			})

			r.Route("/location", func(r chi.Router) {
				r.Use(custommiddleware.RequireRole(model.RoleLocation))

				r.Post("/heartbeat", h.Heartbeat)
				r.Post("/open", h.SetOpen)
				r.Get("/queue", h.GetQueue)

				r.Post("/sessions", h.OpenSession)
				r.Post("/sessions/{sid}/{op}", h.SessionOp)
				r.Delete("/sessions/{sid}", h.CloseSession)
			})

			r.Route("/orders", func(r chi.Router) {
				r.With(custommiddleware.RequireRole(model.RoleCustomer)).Post("/", h.UploadOrder)
				r.Get("/", h.GetOrders)
				r.Get("/number/{number}", h.GetOrderByNumber)
				r.Get("/{id}", h.GetOrder)
				r.Get("/{id}/qr", h.GetPickupQR)
				r.Get("/{id}/transitions", h.GetTransitions)
				r.Post("/{id}/transitions", h.TransitionOrder)
				r.With(custommiddleware.RequireRole(model.RoleLocation)).Post("/{id}/issue", h.ReportIssue)
			})

			r.Route("/tickets", func(r chi.Router) {
				r.Post("/", h.CreateTicket)
				r.Get("/", h.GetTickets)
				r.Get("/{id}/messages", h.GetMessages)
				r.Post("/{id}/messages", h.PostMessage)
				r.Post("/{id}/resolve", h.ResolveTicket)
			})

			r.Get("/events", h.Events)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
