// Package app arma la aplicación a partir de la config: stores, cache, sesión,
// servicios y el handler HTTP.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/sitegate/internal/auth"
	"github.com/dropDatabas3/sitegate/internal/cache"
	"github.com/dropDatabas3/sitegate/internal/config"
	httpserver "github.com/dropDatabas3/sitegate/internal/http"
	healthctrl "github.com/dropDatabas3/sitegate/internal/http/controllers/health"
	usersctrl "github.com/dropDatabas3/sitegate/internal/http/controllers/users"
	mw "github.com/dropDatabas3/sitegate/internal/http/middlewares"
	"github.com/dropDatabas3/sitegate/internal/http/router"
	healthsvc "github.com/dropDatabas3/sitegate/internal/http/services/health"
	userssvc "github.com/dropDatabas3/sitegate/internal/http/services/users"
	"github.com/dropDatabas3/sitegate/internal/mailer"
	"github.com/dropDatabas3/sitegate/internal/menu"
	"github.com/dropDatabas3/sitegate/internal/metrics"
	"github.com/dropDatabas3/sitegate/internal/observability/logger"
	"github.com/dropDatabas3/sitegate/internal/rate"
	"github.com/dropDatabas3/sitegate/internal/redirect"
	"github.com/dropDatabas3/sitegate/internal/security/csrf"
	"github.com/dropDatabas3/sitegate/internal/session"
	"github.com/dropDatabas3/sitegate/internal/store/pg"
)

// App es la aplicación cableada.
type App struct {
	Handler http.Handler

	cfg     *config.Config
	closers []func()
}

// New crea y cablea la aplicación. Ante error libera lo ya abierto.
func New(ctx context.Context, cfg *config.Config, version string) (_ *App, err error) {
	a := &App{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	log := logger.L().With(logger.Component("app"))

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}

	// ─── Cache ───
	cc, err := cache.New(cache.Config{
		Driver:     cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: config.Dur(cfg.Cache.Memory.DefaultTTL),
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = cc.Close() })

	// ─── Stores ───
	var (
		menuStore menu.Store
		users     auth.UserStore
	)
	switch cfg.Storage.Driver {
	case "postgres":
		st, err := pg.New(ctx, cfg.Storage.DSN, pg.Options{
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			ConnMaxLifetime: config.Dur(cfg.Storage.Postgres.ConnMaxLifetime),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		if err := reg.Register(metrics.NewPoolCollector(st.Pool())); err != nil {
			return nil, err
		}
		menuStore = menu.NewPGStore(st.Pool())
		users = auth.NewPGUserStore(st.Pool())
	default:
		ms, us, err := loadSeed(cfg.Storage.SeedFile)
		if err != nil {
			return nil, err
		}
		menuStore, users = ms, us
		log.Info("using in-memory stores", logger.Any("seed_file", cfg.Storage.SeedFile))
	}

	// ─── Dominio ───
	site, err := redirect.NewSite(cfg.Site.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	menus := menu.NewResolver(menuStore, cc, config.Dur(cfg.Cache.MenuTTL))
	sessions := session.NewManager(cc, session.Options{
		CookieName:  cfg.Session.CookieName,
		Domain:      cfg.Session.Domain,
		SameSite:    cfg.Session.SameSite,
		Secure:      cfg.Session.Secure,
		TTL:         config.Dur(cfg.Session.TTL),
		RememberTTL: config.Dur(cfg.Session.RememberTTL),
	})
	validator := csrf.New(csrf.Config{
		Secret: cfg.Site.Secret,
		TTL:    config.Dur(cfg.CSRF.TTL),
		Field:  cfg.CSRF.Field,
	})
	authn := auth.NewAuthenticator(auth.Deps{
		Users:    users,
		Sessions: sessions,
		ClientID: cfg.Site.ClientID,
	})

	var sender mailer.Sender = mailer.LogSender{}
	if strings.TrimSpace(cfg.SMTP.Host) != "" {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			From:               cfg.SMTP.From,
			User:               cfg.SMTP.Username,
			Pass:               cfg.SMTP.Password,
			TLSMode:            cfg.SMTP.TLS,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		})
	} else {
		log.Warn("smtp not configured: reminders are only logged")
	}
	reminder, err := mailer.NewReminder(sender)
	if err != nil {
		return nil, err
	}

	service := userssvc.NewService(userssvc.Deps{
		Auth:     authn,
		Returns:  redirect.NewResolver(site, menus),
		Menu:     menus,
		CSRF:     validator,
		Users:    users,
		Reminder: reminder,
		Config: userssvc.Config{
			Multilingual:  cfg.Site.Multilingual,
			SharedSession: cfg.Site.SharedSession,
			LoginMessage:  cfg.Site.LoginMessage,
			LogoutMessage: cfg.Site.LogoutMessage,
			ClientID:      cfg.Site.ClientID,
			LoginView:     cfg.Site.LoginView,
			ProfileView:   cfg.Site.ProfileView,
			RemindView:    cfg.Site.RemindView,
			LogoutPath:    cfg.Site.LogoutPath,
			SiteName:      cfg.Site.SiteName,
			ShowErrors:    !strings.EqualFold(cfg.App.Env, "prod"),
		},
	})

	// ─── HTTP ───
	health := healthsvc.NewHealthService(healthsvc.Deps{
		Checks: map[string]healthsvc.Check{
			"menu_store": menuStore.Ping,
			"user_store": users.Ping,
			"cache":      cc.Ping,
		},
		Version: version,
	})

	proxies, err := mw.ParseTrustedProxies(cfg.Rate.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a.Handler = router.New(router.Deps{
		Users: usersctrl.NewUsersController(service, site, usersctrl.Config{
			CSRFField:      validator.Field(),
			LangCookieName: menu.LanguageCookieName(cfg.Site.Secret),
			DefaultLang:    cfg.Site.DefaultLang,
		}),
		Health:         healthctrl.NewHealthController(health),
		Sessions:       sessions,
		LoginLimiter:   newLimiter(cfg, cc),
		TrustedProxies: proxies,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		BasePath:       site.Path(),
	})
	return a, nil
}

// Run sirve HTTP hasta que ctx se cancela.
func (a *App) Run(ctx context.Context) error {
	return httpserver.Start(ctx, httpserver.ServerConfig{
		Addr:         a.cfg.Server.Addr,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}, a.Handler)
}

// Close libera los recursos en orden inverso de apertura.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func loadSeed(path string) (*menu.StaticStore, *auth.StaticUserStore, error) {
	if strings.TrimSpace(path) == "" {
		return menu.NewStaticStore(), auth.NewStaticUserStore(), nil
	}
	ms, err := menu.LoadStaticStore(path)
	if err != nil {
		return nil, nil, err
	}
	us, err := auth.LoadStaticUserStore(path)
	if err != nil {
		return nil, nil, err
	}
	return ms, us, nil
}

// newLimiter usa redis si el cache es redis (límite compartido entre réplicas).
func newLimiter(cfg *config.Config, cc cache.Client) rate.Limiter {
	if !cfg.Rate.Enabled {
		return nil
	}
	window := config.Dur(cfg.Rate.Login.Window)
	if rc, ok := cc.(*cache.RedisClient); ok {
		return rate.NewRedisLimiter(rc.Redis(), cfg.Cache.Redis.Prefix+"rl:login:", cfg.Rate.Login.Limit, window)
	}
	return rate.NewMemoryLimiter(cfg.Rate.Login.Limit, window)
}
