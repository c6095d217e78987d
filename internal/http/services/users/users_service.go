// Package users implementa los flujos de login, logout, menuLogout y
// recordatorio de usuario sobre el estado de sesión.
package users

import (
	"context"
	"errors"
	"net/mail"
	"net/url"
	"strings"

	"github.com/dropDatabas3/sitegate/internal/auth"
	"github.com/dropDatabas3/sitegate/internal/flash"
	"github.com/dropDatabas3/sitegate/internal/mailer"
	"github.com/dropDatabas3/sitegate/internal/menu"
	"github.com/dropDatabas3/sitegate/internal/metrics"
	"github.com/dropDatabas3/sitegate/internal/observability/logger"
	"github.com/dropDatabas3/sitegate/internal/redirect"
	"github.com/dropDatabas3/sitegate/internal/security/csrf"
	"github.com/dropDatabas3/sitegate/internal/session"
)

// Service define los flujos de sesión. Cada operación produce exactamente un
// Redirect o un error: csrf.ErrForgeryCheckFailed o *menu.LookupError, en
// cuyo caso no se redirige.
type Service interface {
	Login(ctx context.Context, st *session.State, in LoginInput) (Redirect, error)
	Logout(ctx context.Context, st *session.State, in LogoutInput) (Redirect, error)
	MenuLogout(ctx context.Context, st *session.State, in MenuLogoutInput) (Redirect, error)
	Remind(ctx context.Context, st *session.State, in RemindInput) (Redirect, error)
	Token(ctx context.Context, st *session.State) (string, error)
	Messages(ctx context.Context, st *session.State) ([]flash.Message, error)
}

// Redirect es el resultado de un flujo. Location es un destino interno; el
// controller lo convierte en header con redirect.Site.Route.
type Redirect struct {
	Location string
	Message  *flash.Message // mensaje encolado en la sesión, si hubo
}

type LoginInput struct {
	Token     string
	Return    string // base64, tal cual llega
	Username  string
	Password  string
	SecretKey string
	Remember  bool
	Lang      string
}

type LogoutInput struct {
	Token  string
	Return string
	Lang   string
}

type MenuLogoutInput struct {
	ActiveItemID int64 // 0 = sin ítem activo
	LangCookie   string
}

type RemindInput struct {
	Token string
	Email string
	Lang  string
}

// MenuResolver es la parte del resolver de menú que usan los flujos.
type MenuResolver interface {
	Item(ctx context.Context, id int64) (menu.Item, error)
	Default(ctx context.Context, lang menu.Language) (menu.Item, error)
}

type Config struct {
	Multilingual  bool
	SharedSession bool
	LoginMessage  bool
	LogoutMessage bool
	ClientID      int
	LoginView     string
	ProfileView   string
	RemindView    string
	LogoutPath    string
	SiteName      string
	ShowErrors    bool // detalle de errores en mensajes (no prod)
}

type Deps struct {
	Auth     auth.Service
	Returns  *redirect.Resolver
	Menu     MenuResolver
	CSRF     *csrf.Validator
	Flash    *flash.Messenger
	Catalog  *flash.Catalog
	Users    auth.UserStore
	Reminder *mailer.Reminder
	Config   Config
}

type usersService struct {
	Deps
	cfg Config
}

func NewService(d Deps) Service {
	cfg := d.Config
	if cfg.LoginView == "" {
		cfg.LoginView = "index.php?option=com_users&view=login"
	}
	if cfg.ProfileView == "" {
		cfg.ProfileView = "index.php?option=com_users&view=profile"
	}
	if cfg.RemindView == "" {
		cfg.RemindView = "index.php?option=com_users&view=remind"
	}
	if cfg.LogoutPath == "" {
		cfg.LogoutPath = "users/logout"
	}
	if d.Flash == nil {
		d.Flash = flash.NewMessenger()
	}
	if d.Catalog == nil {
		d.Catalog = flash.DefaultCatalog()
	}
	return &usersService{Deps: d, cfg: cfg}
}

func (s *usersService) enqueue(ctx context.Context, st *session.State, text string, sev flash.Severity) *flash.Message {
	if err := s.Flash.Enqueue(st, text, sev); err != nil {
		logger.From(ctx).Warn("flash enqueue failed", logger.Err(err))
		return nil
	}
	return &flash.Message{Text: text, Severity: sev}
}

func (s *usersService) Login(ctx context.Context, st *session.State, in LoginInput) (Redirect, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("users"),
		logger.Op("Login"),
	)

	if err := s.CSRF.Check(st, in.Token); err != nil {
		metrics.LoginAttempts.WithLabelValues("forgery").Inc()
		log.Info("forgery check failed", logger.Err(err))
		return Redirect{}, err
	}

	creds := auth.Credentials{Username: in.Username, Password: in.Password, SecretKey: in.SecretKey}
	defer creds.Scrub()

	dest, err := s.Returns.Resolve(ctx, in.Return, s.cfg.Multilingual, redirect.Destination(s.cfg.ProfileView))
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("lookup_error").Inc()
		return Redirect{}, err
	}

	// los LoginHook del autenticador pueden pisarlo
	if err := st.Set(session.KeyLoginFormReturn, string(dest)); err != nil {
		return Redirect{}, err
	}

	opts := auth.LoginOptions{Remember: in.Remember, Return: string(dest)}
	if err := s.Auth.Login(ctx, st, creds, opts); err != nil {
		creds.Scrub()
		remember := 0
		if opts.Remember {
			remember = 1
		}
		fd := session.LoginFormData{
			Return:    string(dest),
			Username:  creds.Username,
			Password:  creds.Password,
			SecretKey: creds.SecretKey,
			Remember:  remember,
		}
		if serr := st.Set(session.KeyLoginFormData, fd); serr != nil {
			return Redirect{}, serr
		}
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		log.Info("login failed", logger.Outcome(outcomeOf(err)))
		return Redirect{Location: s.cfg.LoginView}, nil
	}

	if opts.Remember {
		if err := st.Set(session.KeyRememberLogin, true); err != nil {
			return Redirect{}, err
		}
	}
	if err := st.Delete(session.KeyLoginFormData); err != nil {
		return Redirect{}, err
	}

	var msg *flash.Message
	if s.cfg.LoginMessage {
		msg = s.enqueue(ctx, st, s.Catalog.T(in.Lang, flash.LoginSuccess), flash.SeverityMessage)
	}

	loc := st.String(session.KeyLoginFormReturn)
	if loc == "" {
		loc = string(dest)
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	log.Debug("login redirect", logger.Destination(loc))
	return Redirect{Location: loc, Message: msg}, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrUserBlocked):
		return "blocked"
	case errors.Is(err, auth.ErrSecretKeyRequired):
		return "secret_key_required"
	default:
		return "error"
	}
}

func (s *usersService) Logout(ctx context.Context, st *session.State, in LogoutInput) (Redirect, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("users"),
		logger.Op("Logout"),
	)

	if err := s.CSRF.Check(st, in.Token); err != nil {
		metrics.Logouts.WithLabelValues("forgery").Inc()
		log.Info("forgery check failed", logger.Err(err))
		return Redirect{}, err
	}

	opts := auth.LogoutOptions{ClientID: auth.ClientScope(s.cfg.ClientID)}
	if s.cfg.SharedSession {
		opts.ClientID = nil
	}
	if err := s.Auth.Logout(ctx, st, nil, opts); err != nil {
		// sesión posiblemente a medio desarmar: sólo al login
		metrics.Logouts.WithLabelValues("error").Inc()
		log.Warn("logout failed", logger.Err(err))
		return Redirect{Location: s.cfg.LoginView}, nil
	}

	dest, err := s.Returns.Resolve(ctx, in.Return, s.cfg.Multilingual, s.Returns.Site().Root())
	if err != nil {
		metrics.Logouts.WithLabelValues("lookup_error").Inc()
		return Redirect{}, err
	}

	var msg *flash.Message
	if s.cfg.LogoutMessage && st.IsAnonymous() {
		msg = s.enqueue(ctx, st, s.Catalog.T(in.Lang, flash.LogoutSuccess), flash.SeverityMessage)
	}
	metrics.Logouts.WithLabelValues("success").Inc()
	return Redirect{Location: string(dest), Message: msg}, nil
}

// MenuLogout no cierra la sesión: prepara el request al logout real con un
// token nuevo y el destino configurado en el ítem activo.
func (s *usersService) MenuLogout(ctx context.Context, st *session.State, in MenuLogoutInput) (Redirect, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("users"),
		logger.Op("MenuLogout"),
	)

	var (
		target    int64
		hasTarget bool
	)
	if in.ActiveItemID > 0 {
		item, err := s.Menu.Item(ctx, in.ActiveItemID)
		switch {
		case err == nil:
			target, hasTarget = item.LogoutTarget()
		case errors.Is(err, menu.ErrItemNotFound):
			log.Debug("active item not found", logger.MenuItemID(in.ActiveItemID))
		default:
			return Redirect{}, err
		}
	}

	var dest redirect.Destination
	switch {
	case s.cfg.Multilingual && hasTarget:
		d, err := s.Returns.MenuItemURL(ctx, target, true)
		if err != nil {
			return Redirect{}, err
		}
		dest = d
	case s.cfg.Multilingual:
		lang := menu.Language(strings.TrimSpace(in.LangCookie))
		home, err := s.Menu.Default(ctx, lang)
		if err != nil {
			return Redirect{}, err
		}
		d, err := s.Returns.MenuItemURL(ctx, home.ID, false)
		if err != nil {
			return Redirect{}, err
		}
		dest = d
	case hasTarget:
		d, err := s.Returns.MenuItemURL(ctx, target, false)
		if err != nil {
			return Redirect{}, err
		}
		dest = d
	default:
		dest = s.Returns.Site().Root()
	}

	tk, err := s.CSRF.Issue(st)
	if err != nil {
		return Redirect{}, err
	}
	q := url.Values{}
	q.Set(s.CSRF.Field(), tk)
	q.Set("return", redirect.Encode(string(dest)))
	log.Debug("menu logout redirect", logger.Destination(string(dest)))
	return Redirect{Location: s.cfg.LogoutPath + "?" + q.Encode()}, nil
}

func (s *usersService) Remind(ctx context.Context, st *session.State, in RemindInput) (Redirect, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("users"),
		logger.Op("Remind"),
	)

	if err := s.CSRF.Check(st, in.Token); err != nil {
		return Redirect{}, err
	}

	email := strings.TrimSpace(in.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		text := s.Catalog.Sprintf(in.Lang, flash.RemindFailed, s.Catalog.T(in.Lang, flash.RemindInvalid))
		return Redirect{Location: s.cfg.RemindView, Message: s.enqueue(ctx, st, text, flash.SeverityNotice)}, nil
	}

	fail := func(err error) (Redirect, error) {
		log.Error("remind failed", logger.Err(err))
		text := s.Catalog.T(in.Lang, flash.RemindError)
		if s.cfg.ShowErrors {
			text = err.Error()
		}
		return Redirect{Location: s.cfg.RemindView, Message: s.enqueue(ctx, st, text, flash.SeverityError)}, nil
	}

	u, err := s.Users.ByEmail(ctx, email)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		log.Debug("remind for unknown address")
	case err != nil:
		return fail(err)
	case u.Blocked:
		log.Debug("remind for blocked user", logger.UserID(u.ID))
	default:
		loginURL := string(s.Returns.Site().Root()) + s.cfg.LoginView
		err := s.Reminder.Send(ctx, u.Email, s.Catalog.Sprintf(in.Lang, flash.RemindSubject, s.cfg.SiteName), mailer.ReminderVars{
			SiteName: s.cfg.SiteName,
			Username: u.Username,
			LoginURL: loginURL,
		})
		if err != nil {
			return fail(err)
		}
		log.Info("username reminder sent", logger.UserID(u.ID))
	}

	text := s.Catalog.T(in.Lang, flash.RemindSuccess)
	return Redirect{Location: s.cfg.LoginView, Message: s.enqueue(ctx, st, text, flash.SeverityMessage)}, nil
}

// Token emite un token anti-forgery para la sesión (formularios).
func (s *usersService) Token(_ context.Context, st *session.State) (string, error) {
	return s.CSRF.Issue(st)
}

// Messages devuelve y vacía la cola de mensajes de la sesión.
func (s *usersService) Messages(_ context.Context, st *session.State) ([]flash.Message, error) {
	q, err := s.Flash.Drain(st)
	if err != nil {
		return nil, err
	}
	if q == nil {
		q = []flash.Message{}
	}
	return q, nil
}
