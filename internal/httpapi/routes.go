package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/worldbroker/internal/dispatch"
	"github.com/ashureev/worldbroker/internal/middleware"
	"github.com/ashureev/worldbroker/internal/store"
)

// Config bundles everything NewRouter needs to wire the broker's HTTP
// surface: the dispatcher every entity endpoint hands its Config to, the
// credential store backing auth and quota middleware, the WebSocket
// upgrade handler, and the Prometheus metrics handler.
type Config struct {
	Dispatcher       *dispatch.Dispatcher
	Credentials      store.CredentialStore
	WebSocketHandler http.HandlerFunc
	MetricsHandler   http.Handler

	// AllowedOrigins is the CORS allow-list for the REST surface. A "*"
	// entry allows any origin but never receives Allow-Credentials.
	AllowedOrigins []string
}

// NewRouter builds the broker's chi.Mux: global middleware (RequestID,
// RealIP, Logger, Recoverer, Heartbeat), the root WebSocket upgrade
// endpoint, /metrics, and the API-key- and quota-gated /entity/* REST
// surface.
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.AllowedOrigins))
	}

	r.Get("/", cfg.WebSocketHandler)
	r.Handle("/metrics", cfg.MetricsHandler)

	r.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(cfg.Credentials))
		r.Use(RateLimit(cfg.Credentials))
		registerEntityRoutes(r, cfg.Dispatcher)
	})

	return r
}
