// Package health contiene el service de readiness.
package health

import (
	"context"
	"time"

	dto "github.com/dropDatabas3/sitegate/internal/http/dto/health"
	"github.com/dropDatabas3/sitegate/internal/observability/logger"
)

type HealthService interface {
	Check(ctx context.Context) dto.HealthResponse
}

// Check es un ping de un componente. nil en Deps.Checks lo marca "disabled".
type Check func(ctx context.Context) error

type Deps struct {
	// Checks por nombre de componente (menu_store, user_store, cache). Todos son críticos.
	Checks  map[string]Check
	Version string
	Timeout time.Duration
}

type healthService struct {
	deps Deps
}

func NewHealthService(deps Deps) HealthService {
	if deps.Timeout <= 0 {
		deps.Timeout = 2 * time.Second
	}
	return &healthService{deps: deps}
}

func (s *healthService) Check(ctx context.Context) dto.HealthResponse {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("health"),
		logger.Op("Check"),
	)

	resp := dto.HealthResponse{
		Status:     "ready",
		Components: make(map[string]dto.HealthStatus, len(s.deps.Checks)),
		Version:    s.deps.Version,
		Timestamp:  time.Now().UTC(),
	}
	for name, check := range s.deps.Checks {
		if check == nil {
			resp.Components[name] = dto.HealthStatus{Status: "disabled"}
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
		err := check(cctx)
		cancel()
		if err != nil {
			resp.Components[name] = dto.HealthStatus{Status: "error", Message: err.Error()}
			resp.Status = "unavailable"
			log.Warn("component unavailable", logger.Any("component", name), logger.Err(err))
			continue
		}
		resp.Components[name] = dto.HealthStatus{Status: "ok"}
	}
	return resp
}
