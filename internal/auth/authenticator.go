package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/sitegate/internal/audit"
	"github.com/dropDatabas3/sitegate/internal/observability/logger"
	"github.com/dropDatabas3/sitegate/internal/security/password"
	"github.com/dropDatabas3/sitegate/internal/security/totp"
	"github.com/dropDatabas3/sitegate/internal/session"
)

// SessionRegistry es la parte de session.Manager que usa el autenticador.
type SessionRegistry interface {
	Register(ctx context.Context, uid string, clientID int, st *session.State) error
	DestroyUser(ctx context.Context, uid string, clientID *int) (int, error)
}

type Deps struct {
	Users    UserStore
	Sessions SessionRegistry
	ClientID int // cliente al que se asocian las sesiones nuevas (0 = sitio)
	Hooks    []LoginHook
	// HashParams se usa para el hash señuelo de usuarios inexistentes.
	HashParams password.Params
	TOTPWindow int
	Now        func() time.Time
}

// Authenticator es la implementación por defecto de Service.
type Authenticator struct {
	users    UserStore
	sessions SessionRegistry
	clientID int
	hooks    []LoginHook
	params   password.Params
	window   int
	now      func() time.Time

	dummyOnce sync.Once
	dummy     string
}

var _ Service = (*Authenticator)(nil)

func NewAuthenticator(d Deps) *Authenticator {
	if d.HashParams == (password.Params{}) {
		d.HashParams = password.Default
	}
	if d.TOTPWindow <= 0 {
		d.TOTPWindow = 1
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Authenticator{
		users:    d.Users,
		sessions: d.Sessions,
		clientID: d.ClientID,
		hooks:    d.Hooks,
		params:   d.HashParams,
		window:   d.TOTPWindow,
		now:      d.Now,
	}
}

// burn iguala el costo de un usuario inexistente al de un password incorrecto.
func (a *Authenticator) burn(plain string) {
	a.dummyOnce.Do(func() {
		a.dummy, _ = password.Hash(a.params, "sitegate-dummy-password")
	})
	_ = password.Verify(plain, a.dummy)
}

func (a *Authenticator) Login(ctx context.Context, st *session.State, c Credentials, o LoginOptions) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth"),
		logger.Op("Login"),
	)

	username := strings.TrimSpace(c.Username)
	if username == "" || c.Password == "" {
		return ErrInvalidCredentials
	}

	u, err := a.users.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			a.burn(c.Password)
			log.Debug("login rejected", logger.Outcome("unknown_user"))
			audit.Log(ctx, audit.LoginFailed, logger.Outcome("unknown_user"))
			return ErrInvalidCredentials
		}
		log.Error("user lookup failed", logger.Err(err))
		return fmt.Errorf("auth: lookup user: %w", err)
	}

	if !password.Verify(c.Password, u.PasswordHash) {
		log.Debug("login rejected", logger.UserID(u.ID), logger.Outcome("bad_password"))
		audit.Log(ctx, audit.LoginFailed, logger.UserID(u.ID), logger.Outcome("bad_password"))
		return ErrInvalidCredentials
	}
	if u.Blocked {
		audit.Log(ctx, audit.LoginFailed, logger.UserID(u.ID), logger.Outcome("blocked"))
		return ErrUserBlocked
	}
	if u.TOTPSecret != "" {
		if strings.TrimSpace(c.SecretKey) == "" {
			return ErrSecretKeyRequired
		}
		secret, err := totp.DecodeSecret(u.TOTPSecret)
		if err != nil {
			log.Error("stored totp secret invalid", logger.UserID(u.ID), logger.Err(err))
			return fmt.Errorf("auth: totp secret: %w", err)
		}
		if ok, _ := totp.Verify(secret, c.SecretKey, a.now(), a.window); !ok {
			log.Debug("login rejected", logger.UserID(u.ID), logger.Outcome("bad_secret_key"))
			audit.Log(ctx, audit.LoginFailed, logger.UserID(u.ID), logger.Outcome("bad_secret_key"))
			return ErrInvalidCredentials
		}
	}

	nid, err := session.NewID()
	if err != nil {
		return fmt.Errorf("auth: session id: %w", err)
	}
	st.Rotate(nid)
	if err := st.Set(session.KeyUserID, u.ID); err != nil {
		return err
	}
	if err := a.sessions.Register(ctx, u.ID, a.clientID, st); err != nil {
		_ = st.Delete(session.KeyUserID)
		log.Error("session register failed", logger.UserID(u.ID), logger.Err(err))
		return fmt.Errorf("auth: register session: %w", err)
	}
	if err := a.users.TouchLastVisit(ctx, u.ID, a.now()); err != nil {
		log.Warn("last visit not updated", logger.UserID(u.ID), logger.Err(err))
	}

	for _, h := range a.hooks {
		if err := h(ctx, st, u, o); err != nil {
			log.Warn("login hook failed", logger.UserID(u.ID), logger.Err(err))
		}
	}
	audit.Log(ctx, audit.LoginSucceeded, logger.UserID(u.ID), logger.SessionHash(session.Hash(st.ID())))
	return nil
}

// Logout quita la identidad de la sesión. userID nil usa el usuario actual.
// Si userID apunta a otro usuario sólo se destruyen sus sesiones registradas.
func (a *Authenticator) Logout(ctx context.Context, st *session.State, userID *string, o LogoutOptions) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth"),
		logger.Op("Logout"),
	)

	current := st.UserID()
	uid := current
	if userID != nil {
		uid = *userID
	}
	if uid == "" {
		return nil
	}

	if uid == current {
		if err := st.Delete(session.KeyUserID); err != nil {
			return err
		}
		if err := st.Delete(session.KeyRememberLogin); err != nil {
			return err
		}
		nid, err := session.NewID()
		if err != nil {
			return fmt.Errorf("auth: session id: %w", err)
		}
		st.Rotate(nid)
	}

	n, err := a.sessions.DestroyUser(ctx, uid, o.ClientID)
	if err != nil {
		log.Error("destroy sessions failed", logger.UserID(uid), logger.Err(err))
		return fmt.Errorf("auth: logout: %w", err)
	}
	scope := "all"
	if o.ClientID != nil {
		scope = fmt.Sprintf("client:%d", *o.ClientID)
	}
	audit.Log(ctx, audit.Logout, logger.UserID(uid), logger.Scope(scope), logger.Any("sessions", n))
	return nil
}
