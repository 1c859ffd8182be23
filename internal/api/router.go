package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/xtrntr/landmarket/internal/metrics"
)

// RouterConfig holds the optional pieces mounted next to the API.
type RouterConfig struct {
	Feed    http.Handler     // websocket feed on /ws
	Metrics *metrics.Metrics // request metrics and /metrics
	Health  func(context.Context) error
}

// NewRouter wires every marketplace route. The websocket feed is mounted
// outside the access log and metrics wrappers so the upgrade can hijack the
// connection.
func NewRouter(h *Handler, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(WithRequestID)

	if cfg.Feed != nil {
		r.Method(http.MethodGet, "/ws", cfg.Feed)
	}

	r.Group(func(r chi.Router) {
		if cfg.Metrics != nil {
			r.Use(cfg.Metrics.Middleware)
		}
		r.Use(WithLogging(h.Logger))

		if cfg.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
		}

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			if cfg.Health != nil {
				if err := cfg.Health(r.Context()); err != nil {
					writeError(w, http.StatusServiceUnavailable, codeUnavailable, "storage unavailable")
					return
				}
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		// Public endpoints
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Get("/listings", h.ListListings)
		r.Get("/listings/{id}", h.GetListing)
		r.Get("/transactions/{id}", h.GetTransaction)
		r.Get("/users/{identity}/listings", h.GetUserListings)
		r.Get("/users/{identity}/transactions", h.GetUserTransactions)
		r.Get("/users/{identity}/purchases", h.GetUserPurchases)
		r.Get("/users/{identity}/sales", h.GetUserSales)
		r.Get("/stats", h.GetStats)
		r.Get("/config/registry", h.GetRegistryAddress)

		// Protected endpoints (require JWT)
		r.Group(func(r chi.Router) {
			r.Use(h.JWTAuthMiddleware)
			r.Post("/listings", h.CreateListing)
			r.Put("/listings/{id}/price", h.UpdatePrice)
			r.Delete("/listings/{id}", h.CancelListing)
			r.Post("/listings/{id}/buy", h.Buy)
			r.Put("/config/registry", h.SetRegistryAddress)
			r.Get("/reconciliation", h.Reconcile)
		})
	})

	return r
}
