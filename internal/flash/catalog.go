package flash

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	LoginSuccess  = "COM_USERS_FRONTEND_LOGIN_SUCCESS"
	LogoutSuccess = "COM_USERS_FRONTEND_LOGOUT_SUCCESS"
	RemindSuccess = "COM_USERS_REMIND_REQUEST_SUCCESS"
	RemindFailed  = "COM_USERS_REMIND_REQUEST_FAILED"
	RemindError   = "COM_USERS_REMIND_REQUEST_ERROR"
	RemindInvalid = "COM_USERS_REMIND_REQUEST_INVALID_EMAIL"
	RemindSubject = "COM_USERS_EMAIL_USERNAME_REMINDER_SUBJECT"
	RemindBody    = "COM_USERS_EMAIL_USERNAME_REMINDER_BODY"
)

//go:embed messages.yaml
var defaultMessages []byte

const fallbackLang = "en"

// Catalog traduce keys por idioma: idioma pedido, después "en", después la key.
type Catalog struct {
	msgs map[string]map[string]string
}

// DefaultCatalog carga las traducciones embebidas.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultMessages)
	if err != nil {
		panic(fmt.Sprintf("flash: embedded catalog: %v", err))
	}
	return c
}

// ParseCatalog lee un YAML de la forma idioma -> key -> texto.
func ParseCatalog(b []byte) (*Catalog, error) {
	msgs := map[string]map[string]string{}
	if err := yaml.Unmarshal(b, &msgs); err != nil {
		return nil, fmt.Errorf("flash: parse catalog: %w", err)
	}
	return &Catalog{msgs: msgs}, nil
}

func (c *Catalog) T(lang, key string) string {
	for _, l := range candidates(lang) {
		if s, ok := c.msgs[l][key]; ok {
			return s
		}
	}
	return key
}

// Sprintf traduce key y la usa como formato.
func (c *Catalog) Sprintf(lang, key string, args ...any) string {
	return fmt.Sprintf(c.T(lang, key), args...)
}

// candidates: "fr-FR" -> fr-fr, fr, en.
func candidates(lang string) []string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	out := make([]string, 0, 3)
	if lang != "" && lang != "*" {
		out = append(out, lang)
		if i := strings.IndexAny(lang, "-_"); i > 0 {
			out = append(out, lang[:i])
		}
	}
	return append(out, fallbackLang)
}
