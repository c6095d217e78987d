// Package audit emite eventos de seguridad (login, logout) por un logger
// "audit" derivado del logger del request.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/sitegate/internal/observability/logger"
)

type Event string

const (
	LoginSucceeded Event = "login.succeeded"
	LoginFailed    Event = "login.failed"
	Logout         Event = "logout"
)

// Log escribe un evento de auditoría. Nunca recibe credenciales.
func Log(ctx context.Context, ev Event, fields ...zap.Field) {
	fields = append(fields,
		zap.String("event", string(ev)),
		zap.Time("ts", time.Now().UTC()),
	)
	logger.From(ctx).Named("audit").Info(string(ev), fields...)
}
