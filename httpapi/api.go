// Package httpapi mounts the authentication endpoints on a chi router.
package httpapi

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/procuregov/authcore"
	"github.com/procuregov/authcore/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 8 << 10

// API serves login, refresh, logout and the caller's identity.
type API struct {
	engine         *authcore.Engine
	logger         *zap.Logger
	trustedProxies []netip.Prefix
	loginLimit     int
	loginWindow    time.Duration
	refreshLimit   int
	refreshWindow  time.Duration
}

// Option configures the API instance.
type Option func(*API)

// WithLogger enables the per-request access log.
func WithLogger(logger *zap.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithTrustedProxies lists the peers whose forwarding headers are believed.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) { a.trustedProxies = prefixes }
}

// WithLoginRateLimit sets the per-IP request budget of POST /auth/login.
// This is independent of the failed-login guard inside the engine.
func WithLoginRateLimit(limit int, window time.Duration) Option {
	return func(a *API) {
		a.loginLimit = limit
		a.loginWindow = window
	}
}

// WithRefreshRateLimit sets the per-IP request budget of POST /auth/refresh.
func WithRefreshRateLimit(limit int, window time.Duration) Option {
	return func(a *API) {
		a.refreshLimit = limit
		a.refreshWindow = window
	}
}

// New creates an API over engine.
func New(engine *authcore.Engine, opts ...Option) *API {
	a := &API{
		engine:        engine,
		loginLimit:    20,
		loginWindow:   time.Minute,
		refreshLimit:  60,
		refreshWindow: time.Minute,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router returns a chi.Router with the auth routes mounted under /auth.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	if a.logger != nil {
		r.Use(middleware.RequestLogger(a.logger))
	}
	r.Use(middleware.ClientMetadata(a.trustedProxies))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusNotFound, middleware.ErrorBody{
			Code:      "NotFound",
			Message:   "route not found",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.With(middleware.RateLimit(a.engine, "login", a.loginLimit, a.loginWindow)).
			Post("/login", a.Login)
		r.With(middleware.RateLimit(a.engine, "refresh", a.refreshLimit, a.refreshWindow)).
			Post("/refresh", a.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(a.engine))
			r.Post("/logout", a.Logout)
			r.Get("/me", a.Me)
		})
	})

	return r
}
