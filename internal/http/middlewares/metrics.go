package middlewares

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/sitegate/internal/metrics"
)

// WithMetrics instrumenta requests HTTP (contador, latencia, inflight). La ruta
// se etiqueta con el patrón de chi, no con el path crudo.
func WithMetrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method := strings.ToUpper(r.Method)
			metrics.HTTPInflight.Inc()
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				metrics.HTTPInflight.Dec()
				route := routePattern(r)
				metrics.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
				status := rec.status
				if status == 0 {
					status = http.StatusOK
				}
				metrics.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
