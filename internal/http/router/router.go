// Package router arma el árbol de rutas HTTP.
package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	healthctrl "github.com/dropDatabas3/sitegate/internal/http/controllers/health"
	usersctrl "github.com/dropDatabas3/sitegate/internal/http/controllers/users"
	httperrors "github.com/dropDatabas3/sitegate/internal/http/errors"
	mw "github.com/dropDatabas3/sitegate/internal/http/middlewares"
	"github.com/dropDatabas3/sitegate/internal/rate"
	"github.com/dropDatabas3/sitegate/internal/session"
)

type Deps struct {
	Users    *usersctrl.UsersController
	Health   *healthctrl.HealthController
	Sessions *session.Manager
	// LoginLimiter es opcional; limita /users/login y /users/remind por IP.
	LoginLimiter rate.Limiter
	// TrustedProxies son los proxies cuyo X-Forwarded-For cuenta para el límite.
	TrustedProxies mw.TrustedProxies
	// Metrics es opcional (promhttp.Handler).
	Metrics http.Handler
	// BasePath es el path de la URL base del sitio ("/" o "/portal/").
	BasePath string
}

// New devuelve el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.WithRequestID(), mw.WithMetrics(), mw.WithLogging(), mw.WithRecover(), mw.WithSecurityHeaders())
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// ─── Operacional ───
	if d.Health != nil {
		r.Method(http.MethodGet, "/readyz", mw.Chain(http.HandlerFunc(d.Health.Readyz), mw.WithNoStore()))
	}
	if d.Metrics != nil {
		r.Handle("/metrics", mw.Chain(d.Metrics, mw.WithNoStore()))
	}

	// ─── Flujos de sesión (bajo el path base del sitio) ───
	r.Mount(usersPrefix(d.BasePath), usersRoutes(d))
	return r
}

func usersPrefix(base string) string {
	base = "/" + strings.Trim(base, "/")
	if base == "/" {
		return "/users"
	}
	return base + "/users"
}

func usersRoutes(d Deps) http.Handler {
	c := d.Users
	limit := func(route string) mw.Middleware {
		return mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.LoginLimiter, TrustedProxies: d.TrustedProxies, Route: route})
	}

	r := chi.NewRouter()
	r.Use(mw.WithNoStore(), d.Sessions.Middleware())

	r.With(limit("login")).Post("/login", c.Login)
	r.Get("/logout", c.Logout)
	r.Post("/logout", c.Logout)
	r.Get("/menulogout", c.MenuLogout)
	r.With(limit("remind")).Post("/remind", c.Remind)
	r.Get("/token", c.Token)
	r.Get("/messages", c.Messages)
	return r
}
