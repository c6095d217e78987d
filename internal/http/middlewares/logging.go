package middlewares

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/sitegate/internal/observability/logger"
)

// statusRecorder captura status y bytes de la respuesta.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.wroteHeader {
		return
	}
	s.status = code
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// WithLogging inyecta un logger scoped (request_id, method, path) en el contexto
// y registra cada request al terminar. El query string no se loguea: puede
// llevar tokens anti-forgery y el parámetro return.
func WithLogging() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLog := logger.L().With(
				logger.RequestID(GetRequestID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
			)
			ctx := logger.ToContext(r.Context(), reqLog)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(ctx))

			switch {
			case rec.status >= 500:
				reqLog.Error("request failed", logger.Status(rec.status), logger.Bytes(rec.bytes),
					logger.ClientIP(remoteIP(r)), logger.DurationMs(time.Since(start)))
			case rec.status >= 400:
				reqLog.Warn("request completed with client error", logger.Status(rec.status), logger.Bytes(rec.bytes),
					logger.ClientIP(remoteIP(r)), logger.DurationMs(time.Since(start)))
			default:
				reqLog.Info("request completed", logger.Status(rec.status), logger.Bytes(rec.bytes),
					logger.DurationMs(time.Since(start)))
			}
		})
	}
}
