/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/organizations/*  Provider organizations
  /api/participants/*   Participants
  /api/shifts           Shift records
  /api/rates            Rate cards
  /api/holidays         Public holidays
  /api/invoices/*       Generation and lifecycle
  /api/exports/*        CSV downloads
  /api/reset            Database reset (dev only)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Reference data
		r.Route("/organizations", func(r chi.Router) {
			r.Post("/", h.CreateOrganization)
			r.Get("/{id}", h.GetOrganization)
		})
		r.Route("/participants", func(r chi.Router) {
			r.Get("/", h.ListParticipants)
			r.Post("/", h.CreateParticipant)
		})
		r.Post("/shifts", h.CreateShift)
		r.Post("/rates", h.CreateRateCard)
		r.Post("/holidays", h.CreateHoliday)

		// Invoices
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/generate", h.GenerateInvoice)
			r.Get("/{id}", h.GetInvoice)
			r.Post("/{id}/finalize", h.FinalizeInvoice)
			r.Post("/{id}/status", h.SetInvoiceStatus)
			r.Delete("/{id}", h.DeleteInvoice)
		})

		// Exports
		r.Route("/exports", func(r chi.Router) {
			r.Get("/claims", h.ExportClaims)
			r.Get("/myob", h.ExportMYOB)
			r.Get("/xero", h.ExportXero)
		})

		// Dev only
		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
