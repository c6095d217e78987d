package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr         string        `yaml:"addr"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	// Site agrupa los parámetros del sitio público (equivalentes a la config global
	// y a los params del componente de usuarios).
	Site struct {
		BaseURL       string `yaml:"base_url"` // scheme://host[:port]/path/ del sitio
		Secret        string `yaml:"secret"`   // firma CSRF y deriva el nombre de la cookie de idioma
		Multilingual  bool   `yaml:"multilingual"`
		SharedSession bool   `yaml:"shared_session"`
		LoginMessage  bool   `yaml:"login_message"`
		LogoutMessage bool   `yaml:"logout_message"`
		LoginView     string `yaml:"login_view"`
		ProfileView   string `yaml:"profile_view"`
		RemindView    string `yaml:"remind_view"`
		LogoutPath    string `yaml:"logout_path"`
		DefaultLang   string `yaml:"default_language"`
		ClientID      int    `yaml:"client_id"` // 0 = site
		SiteName      string `yaml:"site_name"`
	} `yaml:"site"`

	Storage struct {
		Driver   string `yaml:"driver"` // memory | postgres
		DSN      string `yaml:"dsn"`
		SeedFile string `yaml:"seed_file"` // YAML con menú/usuarios para driver memory
		Postgres struct {
			MaxConns        int32  `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
		MenuTTL string `yaml:"menu_ttl"`
	} `yaml:"cache"`

	Session struct {
		CookieName  string `yaml:"cookie_name"`
		Domain      string `yaml:"domain"`
		SameSite    string `yaml:"samesite"`
		Secure      bool   `yaml:"secure"`
		TTL         string `yaml:"ttl"`
		RememberTTL string `yaml:"remember_ttl"`
	} `yaml:"session"`

	CSRF struct {
		Field string `yaml:"field"`
		TTL   string `yaml:"ttl"`
	} `yaml:"csrf"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		// TrustedProxies: IPs/CIDRs cuyo X-Forwarded-For se acepta para la clave.
		TrustedProxies []string `yaml:"trusted_proxies"`
		Login          struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"login"`
	} `yaml:"rate"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`
}

// Load lee el YAML en path, aplica defaults, overrides por env y valida.
// path vacío arranca de una config vacía (sólo defaults + env).
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	// seed relativo => relativo al directorio del YAML
	if p := strings.TrimSpace(c.Storage.SeedFile); p != "" && path != "" && !filepath.IsAbs(p) {
		c.Storage.SeedFile = filepath.Clean(filepath.Join(filepath.Dir(path), p))
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Site.BaseURL == "" {
		c.Site.BaseURL = "http://localhost:8080/"
	}
	if c.Site.LoginView == "" {
		c.Site.LoginView = "index.php?option=com_users&view=login"
	}
	if c.Site.ProfileView == "" {
		c.Site.ProfileView = "index.php?option=com_users&view=profile"
	}
	if c.Site.RemindView == "" {
		c.Site.RemindView = "index.php?option=com_users&view=remind"
	}
	if c.Site.LogoutPath == "" {
		c.Site.LogoutPath = "users/logout"
	}
	if c.Site.DefaultLang == "" {
		c.Site.DefaultLang = "en"
	}
	if c.Site.SiteName == "" {
		c.Site.SiteName = "Site"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "10m"
	}
	if c.Cache.MenuTTL == "" {
		c.Cache.MenuTTL = "5m"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "sid"
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "Lax"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "30m"
	}
	if c.Session.RememberTTL == "" {
		c.Session.RememberTTL = "720h" // 30d
	}
	if c.CSRF.Field == "" {
		c.CSRF.Field = "csrf_token"
	}
	if c.CSRF.TTL == "" {
		c.CSRF.TTL = "2h"
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == "" {
		c.Rate.Login.Window = "1m"
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
}

// Validate chequea duraciones y combinaciones inválidas.
func (c *Config) Validate() error {
	var errs []error

	for name, v := range map[string]string{
		"cache.memory.default_ttl": c.Cache.Memory.DefaultTTL,
		"cache.menu_ttl":           c.Cache.MenuTTL,
		"session.ttl":              c.Session.TTL,
		"session.remember_ttl":     c.Session.RememberTTL,
		"csrf.ttl":                 c.CSRF.TTL,
		"rate.login.window":        c.Rate.Login.Window,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", name, err))
		}
	}
	if v := c.Storage.Postgres.ConnMaxLifetime; v != "" {
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("config: storage.postgres.conn_max_lifetime: %w", err))
		}
	}

	for _, p := range c.Rate.TrustedProxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		var err error
		if strings.Contains(p, "/") {
			_, err = netip.ParsePrefix(p)
		} else {
			_, err = netip.ParseAddr(p)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("config: rate.trusted_proxies: %w", err))
		}
	}

	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("config: site.base_url must be absolute, got %q", c.Site.BaseURL))
	}

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("config: storage.dsn required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver))
	}

	if strings.EqualFold(c.App.Env, "prod") && len(c.Site.Secret) < 32 {
		errs = append(errs, errors.New("config: site.secret must be at least 32 bytes in prod"))
	}
	return errors.Join(errs...)
}

// Dur parsea una duración ya validada. Devuelve 0 si s está vacío.
func Dur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// SITE
	if v, ok := getEnvStr("SITE_BASE_URL"); ok {
		c.Site.BaseURL = v
	}
	if v, ok := getEnvStr("SITE_SECRET"); ok {
		c.Site.Secret = v
	}
	if v, ok := getEnvBool("SITE_MULTILINGUAL"); ok {
		c.Site.Multilingual = v
	}
	if v, ok := getEnvBool("SITE_SHARED_SESSION"); ok {
		c.Site.SharedSession = v
	}
	if v, ok := getEnvBool("SITE_LOGIN_MESSAGE"); ok {
		c.Site.LoginMessage = v
	}
	if v, ok := getEnvBool("SITE_LOGOUT_MESSAGE"); ok {
		c.Site.LogoutMessage = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("STORAGE_SEED_FILE"); ok {
		c.Storage.SeedFile = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// SESSION
	if v, ok := getEnvStr("SESSION_COOKIE_NAME"); ok {
		c.Session.CookieName = v
	}
	if v, ok := getEnvStr("SESSION_DOMAIN"); ok {
		c.Session.Domain = v
	}
	if v, ok := getEnvBool("SESSION_SECURE"); ok {
		c.Session.Secure = v
	}
	if v, ok := getEnvStr("SESSION_TTL"); ok {
		c.Session.TTL = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("RATE_TRUSTED_PROXIES"); ok {
		c.Rate.TrustedProxies = strings.Split(v, ",")
	}
	if v, ok := getEnvInt("RATE_LOGIN_LIMIT"); ok {
		c.Rate.Login.Limit = v
	}
	if v, ok := getEnvStr("RATE_LOGIN_WINDOW"); ok {
		c.Rate.Login.Window = v
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
}
