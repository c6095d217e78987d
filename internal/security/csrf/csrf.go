// Package csrf emite y valida tokens anti-forgery ligados a la sesión.
//
// El token es un JWT HS256 con claims sid (hash del session id), iat y exp,
// firmado con el secret del sitio. No requiere estado del lado del servidor.
package csrf

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	tokens "github.com/dropDatabas3/sitegate/internal/security/token"
	"github.com/dropDatabas3/sitegate/internal/session"
)

// Scope indica de dónde se acepta el token.
type Scope string

const (
	// ScopePost sólo acepta el token en el body del form.
	ScopePost Scope = "post"
	// ScopeRequest acepta query string o body (logout vía link).
	ScopeRequest Scope = "request"
)

var ErrForgeryCheckFailed = errors.New("csrf: forgery check failed")

type Config struct {
	Secret string
	TTL    time.Duration
	Field  string
}

type Validator struct {
	key   []byte
	ttl   time.Duration
	field string
	now   func() time.Time
}

type claims struct {
	Sid string `json:"sid"`
	jwt.RegisteredClaims
}

func New(cfg Config) *Validator {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Hour
	}
	if strings.TrimSpace(cfg.Field) == "" {
		cfg.Field = "csrf_token"
	}
	return &Validator{key: []byte(cfg.Secret), ttl: cfg.TTL, field: cfg.Field, now: time.Now}
}

// Field es el nombre del parámetro que transporta el token.
func (v *Validator) Field() string { return v.field }

// Issue emite un token para la sesión de st y la marca para persistirse, así
// el id al que queda ligado sobrevive al request.
func (v *Validator) Issue(st *session.State) (string, error) {
	st.Touch()
	now := v.now()
	tk := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Sid: session.Hash(st.ID()),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	})
	s, err := tk.SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("csrf: sign: %w", err)
	}
	return s, nil
}

// Check valida firma, expiración y que el token sea de la sesión de st.
// Cualquier falla es ErrForgeryCheckFailed.
func (v *Validator) Check(st *session.State, token string) error {
	token = strings.TrimSpace(token)
	if token == "" || st == nil {
		return ErrForgeryCheckFailed
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForgeryCheckFailed, err)
	}
	if !tokens.Equal(c.Sid, session.Hash(st.ID())) {
		return fmt.Errorf("%w: session mismatch", ErrForgeryCheckFailed)
	}
	return nil
}

// TokenFromRequest extrae el token de r según scope.
func TokenFromRequest(r *http.Request, field string, scope Scope) string {
	if scope == ScopeRequest {
		if v := r.URL.Query().Get(field); v != "" {
			return v
		}
	}
	return r.PostFormValue(field)
}
