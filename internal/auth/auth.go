// Package auth verifica credenciales y administra la identidad ligada a la sesión.
package auth

import (
	"context"
	"errors"

	"github.com/dropDatabas3/sitegate/internal/session"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUserBlocked        = errors.New("auth: user blocked")
	// ErrSecretKeyRequired es un estado de continuación (falta el segundo factor).
	// Para el caller es un fallo más.
	ErrSecretKeyRequired = errors.New("auth: secret key required")
	ErrUserNotFound      = errors.New("auth: user not found")
)

// Credentials son los campos crudos del form. Nunca se loguean: String y
// GoString devuelven una versión redactada.
type Credentials struct {
	Username  string
	Password  string
	SecretKey string
}

// Scrub vacía los tres campos.
func (c *Credentials) Scrub() {
	c.Username, c.Password, c.SecretKey = "", "", ""
}

func (c Credentials) String() string   { return "auth.Credentials{REDACTED}" }
func (c Credentials) GoString() string { return c.String() }

type LoginOptions struct {
	Remember bool
	Return   string
}

// LogoutOptions.ClientID nil significa todos los clientes.
type LogoutOptions struct {
	ClientID *int
}

// ClientScope devuelve un *int con el valor dado.
func ClientScope(id int) *int { return &id }

// Service es lo que consume el flujo de login/logout. Login devuelve nil sólo
// ante éxito; cualquier error es fallo.
type Service interface {
	Login(ctx context.Context, st *session.State, c Credentials, o LoginOptions) error
	Logout(ctx context.Context, st *session.State, userID *string, o LogoutOptions) error
}

// LoginHook corre tras un login exitoso. Puede pisar session.KeyLoginFormReturn.
type LoginHook func(ctx context.Context, st *session.State, u User, o LoginOptions) error
