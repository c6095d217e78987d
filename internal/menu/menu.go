// Package menu resuelve metadatos de ítems de menú del sitio: idioma asociado,
// parámetros (p.ej. "logout") y el ítem home por idioma.
package menu

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Language es un código de idioma ("en-GB", "fr") o AllLanguages.
type Language string

// AllLanguages es el tag "*": el ítem es neutral respecto del idioma.
const AllLanguages Language = "*"

func (l Language) IsAll() bool { return l == AllLanguages }

// SiteClient identifica los ítems del frontend. Los del administrador (1) nunca
// se consideran para redirecciones.
const SiteClient = 0

// Item es un nodo de navegación del sitio.
type Item struct {
	ID       int64             `json:"id" yaml:"id"`
	ClientID int               `json:"client_id" yaml:"client_id"`
	Language Language          `json:"language" yaml:"language"`
	Home     bool              `json:"home" yaml:"home"`
	Params   map[string]string `json:"params,omitempty" yaml:"params"`
}

// Param devuelve el parámetro name o "" si no existe.
func (it Item) Param(name string) string {
	if it.Params == nil {
		return ""
	}
	return it.Params[name]
}

// LogoutTarget devuelve el id configurado en el parámetro "logout", si es válido.
func (it Item) LogoutTarget() (int64, bool) {
	v := strings.TrimSpace(it.Param("logout"))
	if v == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

var ErrItemNotFound = errors.New("menu: item not found")

// LookupError indica que no se pudo resolver metadata de menú (ítem inexistente
// o store inaccesible). Quien lo recibe debe abortar la operación completa en vez
// de adivinar un destino.
type LookupError struct {
	ID   int64  // 0 si la consulta fue por home
	Lang string // idioma consultado en lookups de home
	Err  error
}

func (e *LookupError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("menu: default item lookup (lang=%q): %v", e.Lang, e.Err)
	}
	return fmt.Sprintf("menu: item %d lookup: %v", e.ID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// IsLookupError reporta si err (o alguno de sus wrapped) es *LookupError.
func IsLookupError(err error) bool {
	var le *LookupError
	return errors.As(err, &le)
}

// Store es la fuente de metadatos de menú.
type Store interface {
	// ItemByID retorna ErrItemNotFound si no existe (o no está publicado).
	ItemByID(ctx context.Context, clientID int, id int64) (Item, error)
	// DefaultItem retorna el home del idioma lang, o ErrItemNotFound.
	DefaultItem(ctx context.Context, clientID int, lang Language) (Item, error)
	Ping(ctx context.Context) error
}

// LanguageCookieName deriva el nombre de la cookie de idioma: md5(secret + "language").
func LanguageCookieName(secret string) string {
	sum := md5.Sum([]byte(secret + "language"))
	return hex.EncodeToString(sum[:])
}
