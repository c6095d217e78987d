// Package metrics define los contadores Prometheus del flujo de sesión.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_login_attempts_total",
		Help: "Intentos de login por resultado (success, failure, forgery, lookup_error)",
	}, []string{"outcome"})

	Logouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_logouts_total",
		Help: "Logouts por resultado (success, error, forgery, lookup_error)",
	}, []string{"outcome"})

	ReturnResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_return_resolutions_total",
		Help: "Resolución del parámetro return por tipo (menu_item, internal, rejected, fallback)",
	}, []string{"kind"})

	MenuLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_menu_lookups_total",
		Help: "Lookups de metadatos de menú (cache_hit, store, not_found, error)",
	}, []string{"result"})

	MenuLookupLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sitegate_menu_lookup_latency_ms",
		Help:    "Latencia de consultas al store de menú en milisegundos",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_rate_limited_total",
		Help: "Requests rechazados por rate limit, por ruta",
	}, []string{"route"})

	// HTTP
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sitegate_http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	HTTPInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sitegate_http_inflight_requests",
		Help: "Requests en vuelo",
	})
)

// Register registra las métricas en reg (o el default si nil).
// Tolera registros duplicados para que tests y main puedan llamarlo más de una vez.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		LoginAttempts, Logouts, ReturnResolutions, MenuLookups, MenuLookupLatency, RateLimited,
		HTTPRequests, HTTPDuration, HTTPInflight,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
