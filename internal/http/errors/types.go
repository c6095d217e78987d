// Package errors define los errores HTTP de la aplicación y cómo se serializan.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError es la estructura estándar de error hacia el cliente.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"` // sólo para el header
	Err        error  `json:"-"` // causa, para logs; no se expone
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// FromError convierte cualquier error en AppError; lo desconocido es 500.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServerError.WithCause(err)
}

// WithDetail devuelve una COPIA con detail, sin mutar los errores base.
func (e *AppError) WithDetail(detail string) *AppError {
	n := *e
	n.Detail = detail
	return &n
}

// WithCause devuelve una COPIA con la causa.
func (e *AppError) WithCause(err error) *AppError {
	n := *e
	n.Err = err
	return &n
}

var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud es inválida.",
		HTTPStatus: http.StatusBadRequest,
	}
	ErrInvalidCSRFToken = &AppError{
		Code:       "INVALID_CSRF_TOKEN",
		Message:    "Token anti-forgery inválido o ausente.",
		HTTPStatus: http.StatusForbidden,
	}
	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Recurso no encontrado.",
		HTTPStatus: http.StatusNotFound,
	}
	ErrMethodNotAllowed = &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "Método no permitido.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}
	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Demasiadas solicitudes. Intente más tarde.",
		HTTPStatus: http.StatusTooManyRequests,
	}
	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Ocurrió un error interno.",
		HTTPStatus: http.StatusInternalServerError,
	}
	// ErrMenuLookupFailed: no se pudo resolver metadata de menú; no se redirige.
	ErrMenuLookupFailed = &AppError{
		Code:       "MENU_LOOKUP_FAILED",
		Message:    "No se pudo determinar el destino de la redirección.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "Servicio no disponible.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
