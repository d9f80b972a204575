package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/ukydev/eventual/internal/auth"
	"github.com/ukydev/eventual/internal/metrics"
	"github.com/ukydev/eventual/internal/middleware"
)

// RouterConfig carries what NewRouter needs beyond the handlers.
type RouterConfig struct {
	AuthService       *auth.Service
	RequireAuth       bool
	RateLimitRequests int
	RateLimitWindow   int
	// WriteRateLimit caps creates and deletes per client IP over WriteRateWindow.
	WriteRateLimit  int
	WriteRateWindow time.Duration
	AllowedOrigins  []string
	// Ready reports whether backing services are reachable. Nil means always ready.
	Ready func() error
}

// NewRouter wires every route of the API.
func NewRouter(entries *EntryHandler, cfg RouterConfig) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", health(cfg.Ready))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthService, cfg.RequireAuth)
	session := NewSessionHandler()

	r.Group(func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.NewRateLimitMiddleware().RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}
		r.Use(authMiddleware.Authenticate)

		writes := writeLimiter(cfg.WriteRateLimit, cfg.WriteRateWindow)
		r.With(middleware.RequireIdentity).Get("/session", session.Get)
		for _, prefix := range []string{"/entries", "/api/eventos"} {
			r.Route(prefix, func(r chi.Router) {
				r.Get("/", entries.List)
				r.With(writes).Post("/", entries.Create)
				r.With(writes).Delete("/{id}", entries.Delete)
			})
		}
	})

	return r
}

// writeLimiter is shared by every write route so the legacy aliases count
// against the same budget.
func writeLimiter(limit int, window time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "Too many writes, slow down", "")
		}),
	)
}

func health(ready func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		}
		if ready != nil {
			if err := ready(); err != nil {
				middleware.Logger(r.Context()).WithError(err).Warn("Health check failed")
				status["status"] = "unavailable"
				status["error"] = err.Error()
				writeJSON(w, http.StatusServiceUnavailable, status)
				return
			}
		}
		writeJSON(w, http.StatusOK, status)
	}
}
