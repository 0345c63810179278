package handlers

import (
	"net/http"
	"time"

	"github.com/cassiomorais/bookings/internal/infrastructure/config"
	"github.com/cassiomorais/bookings/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/bookings/internal/interfaces/http/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Service  BookingService
	Health   *HealthHandler
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer // nil means the default registry
	CORS     config.CORSConfig
	Timeout  time.Duration
}

func NewRouter(deps RouterDeps) *chi.Mux {
	if deps.Timeout <= 0 {
		deps.Timeout = 60 * time.Second
	}
	if deps.Health == nil {
		deps.Health = NewHealthHandler()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(deps.Timeout))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", IdempotencyKeyHeader, customMW.UserIDHeader},
		AllowCredentials: deps.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	r.Get("/health", deps.Health.Health)
	r.Get("/health/live", deps.Health.Liveness)
	r.Get("/health/ready", deps.Health.Readiness)

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	bookingH := NewBookingHandler(deps.Service)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMW.Actor())

		// Holds
		r.Post("/holds", bookingH.CreateHold)
		r.Get("/holds/{id}", bookingH.GetHold)
		r.Post("/holds/{id}/prolong", bookingH.ProlongHold)

		// Bookings
		r.Post("/bookings", bookingH.Confirm)
		r.Get("/bookings/{id}", bookingH.GetBooking)
		r.Post("/bookings/{id}/finalize", bookingH.Finalize)
		r.Patch("/bookings/{id}/status", bookingH.ChangeStatus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
	})

	return r
}
