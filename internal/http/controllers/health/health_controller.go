// Package health contiene el controller de readiness.
package health

import (
	"encoding/json"
	"net/http"

	svc "github.com/dropDatabas3/sitegate/internal/http/services/health"
)

type HealthController struct {
	service svc.HealthService
}

func NewHealthController(service svc.HealthService) *HealthController {
	return &HealthController{service: service}
}

// Readyz maneja GET /readyz: 200 si todos los componentes responden, si no 503.
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	resp := c.service.Check(r.Context())

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if resp.Version != "" {
		w.Header().Set("X-Service-Version", resp.Version)
	}
	status := http.StatusOK
	if resp.Status == "unavailable" {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
