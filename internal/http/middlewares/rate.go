package middlewares

import (
	"net/http"
	"strconv"
	"time"

	httperrors "github.com/dropDatabas3/sitegate/internal/http/errors"
	"github.com/dropDatabas3/sitegate/internal/metrics"
	"github.com/dropDatabas3/sitegate/internal/observability/logger"
	"github.com/dropDatabas3/sitegate/internal/rate"
)

// RateKeyFunc define cómo generar la clave de rate limiting.
type RateKeyFunc func(r *http.Request) string

// IPPathRateKey limita por IP de cliente y path. No lee el body.
func IPPathRateKey(proxies TrustedProxies) RateKeyFunc {
	return func(r *http.Request) string {
		return proxies.ClientIP(r) + "|" + r.URL.Path
	}
}

type RateLimitConfig struct {
	Limiter rate.Limiter
	KeyFunc RateKeyFunc // default IPPathRateKey(TrustedProxies)
	// TrustedProxies habilita X-Forwarded-For para la clave por defecto.
	TrustedProxies TrustedProxies
	Route          string // label de métricas
}

// WithRateLimit rechaza con 429 al superar el límite. Si el limiter falla el
// request pasa.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPPathRateKey(cfg.TrustedProxies)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := cfg.Limiter.Allow(r.Context(), cfg.KeyFunc(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter error", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if res.WindowTTL > 0 {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.WindowTTL).Unix(), 10))
			}
			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				}
				metrics.RateLimited.WithLabelValues(cfg.Route).Inc()
				httperrors.WriteError(w, httperrors.ErrRateLimitExceeded)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}
