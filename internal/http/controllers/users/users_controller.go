// Package users expone los flujos de sesión por HTTP.
package users

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	dto "github.com/dropDatabas3/sitegate/internal/http/dto/users"
	httperrors "github.com/dropDatabas3/sitegate/internal/http/errors"
	svc "github.com/dropDatabas3/sitegate/internal/http/services/users"
	"github.com/dropDatabas3/sitegate/internal/menu"
	"github.com/dropDatabas3/sitegate/internal/observability/logger"
	"github.com/dropDatabas3/sitegate/internal/redirect"
	"github.com/dropDatabas3/sitegate/internal/security/csrf"
	"github.com/dropDatabas3/sitegate/internal/session"
)

const maxFormBytes = 32 << 10

type Config struct {
	CSRFField      string
	LangCookieName string
	DefaultLang    string
}

// UsersController traduce requests a llamadas al servicio y su resultado a un
// redirect 303.
type UsersController struct {
	service svc.Service
	site    *redirect.Site
	cfg     Config
}

func NewUsersController(service svc.Service, site *redirect.Site, cfg Config) *UsersController {
	if cfg.CSRFField == "" {
		cfg.CSRFField = "csrf_token"
	}
	if cfg.DefaultLang == "" {
		cfg.DefaultLang = "en"
	}
	return &UsersController{service: service, site: site, cfg: cfg}
}

func (c *UsersController) lang(r *http.Request) string {
	if c.cfg.LangCookieName != "" {
		if ck, err := r.Cookie(c.cfg.LangCookieName); err == nil && ck.Value != "" {
			return ck.Value
		}
	}
	return c.cfg.DefaultLang
}

func (c *UsersController) state(w http.ResponseWriter, r *http.Request) (*session.State, bool) {
	st := session.FromContext(r.Context())
	if st == nil {
		logger.From(r.Context()).Error("no session in context")
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return nil, false
	}
	return st, true
}

func (c *UsersController) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid form"))
		return false
	}
	return true
}

// input devuelve los valores del método del request: body en POST, query en GET.
func input(r *http.Request) interface{ Get(string) string } {
	if r.Method == http.MethodPost {
		return r.PostForm
	}
	return r.URL.Query()
}

func (c *UsersController) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, csrf.ErrForgeryCheckFailed):
		httperrors.WriteError(w, httperrors.ErrInvalidCSRFToken)
	case menu.IsLookupError(err):
		// sin metadata de menú no hay destino seguro: no se redirige
		httperrors.WriteError(w, httperrors.ErrMenuLookupFailed.WithCause(err))
	default:
		logger.From(r.Context()).Error("users flow error", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
	}
}

// redirect escribe sólo el header; sin cuerpo HTML.
func (c *UsersController) redirect(w http.ResponseWriter, res svc.Redirect) {
	w.Header().Set("Location", c.site.Route(redirect.Destination(res.Location)))
	w.WriteHeader(http.StatusSeeOther)
}

// Login handles POST /users/login.
func (c *UsersController) Login(w http.ResponseWriter, r *http.Request) {
	st, ok := c.state(w, r)
	if !ok || !c.parseForm(w, r) {
		return
	}
	in := svc.LoginInput{
		Token:     csrf.TokenFromRequest(r, c.cfg.CSRFField, csrf.ScopePost),
		Return:    r.PostForm.Get(dto.FieldReturn),
		Username:  r.PostForm.Get(dto.FieldUsername),
		Password:  r.PostForm.Get(dto.FieldPassword),
		SecretKey: r.PostForm.Get(dto.FieldSecretKey),
		Remember:  dto.ParseBool(r.PostForm.Get(dto.FieldRemember)),
		Lang:      c.lang(r),
	}
	// las credenciales no quedan en el request
	r.PostForm.Del(dto.FieldPassword)
	r.PostForm.Del(dto.FieldSecretKey)
	r.Form = nil

	res, err := c.service.Login(r.Context(), st, in)
	if err != nil {
		c.writeErr(w, r, err)
		return
	}
	c.redirect(w, res)
}

// Logout handles GET|POST /users/logout.
func (c *UsersController) Logout(w http.ResponseWriter, r *http.Request) {
	st, ok := c.state(w, r)
	if !ok || !c.parseForm(w, r) {
		return
	}
	res, err := c.service.Logout(r.Context(), st, svc.LogoutInput{
		Token:  csrf.TokenFromRequest(r, c.cfg.CSRFField, csrf.ScopeRequest),
		Return: input(r).Get(dto.FieldReturn),
		Lang:   c.lang(r),
	})
	if err != nil {
		c.writeErr(w, r, err)
		return
	}
	c.redirect(w, res)
}

// MenuLogout handles GET /users/menulogout?Itemid=<id>.
func (c *UsersController) MenuLogout(w http.ResponseWriter, r *http.Request) {
	st, ok := c.state(w, r)
	if !ok {
		return
	}
	var itemID int64
	if v := strings.TrimSpace(r.URL.Query().Get(dto.FieldItemID)); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 0 {
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid Itemid"))
			return
		}
		itemID = id
	}
	var langCookie string
	if c.cfg.LangCookieName != "" {
		if ck, err := r.Cookie(c.cfg.LangCookieName); err == nil {
			langCookie = ck.Value
		}
	}
	res, err := c.service.MenuLogout(r.Context(), st, svc.MenuLogoutInput{ActiveItemID: itemID, LangCookie: langCookie})
	if err != nil {
		c.writeErr(w, r, err)
		return
	}
	c.redirect(w, res)
}

// Remind handles POST /users/remind.
func (c *UsersController) Remind(w http.ResponseWriter, r *http.Request) {
	st, ok := c.state(w, r)
	if !ok || !c.parseForm(w, r) {
		return
	}
	res, err := c.service.Remind(r.Context(), st, svc.RemindInput{
		Token: csrf.TokenFromRequest(r, c.cfg.CSRFField, csrf.ScopePost),
		Email: r.PostForm.Get(dto.FieldEmail),
		Lang:  c.lang(r),
	})
	if err != nil {
		c.writeErr(w, r, err)
		return
	}
	c.redirect(w, res)
}

// Token handles GET /users/token.
func (c *UsersController) Token(w http.ResponseWriter, r *http.Request) {
	st, ok := c.state(w, r)
	if !ok {
		return
	}
	tk, err := c.service.Token(r.Context(), st)
	if err != nil {
		c.writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(dto.TokenResponse{CSRFToken: tk, Field: c.cfg.CSRFField})
}

// Messages handles GET /users/messages. Devuelve los mensajes pendientes y
// vacía la cola.
func (c *UsersController) Messages(w http.ResponseWriter, r *http.Request) {
	st, ok := c.state(w, r)
	if !ok {
		return
	}
	msgs, err := c.service.Messages(r.Context(), st)
	if err != nil {
		c.writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(dto.MessagesResponse{Messages: msgs})
}
