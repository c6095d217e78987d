// Package redirect convierte el parámetro "return" (base64, controlado por el
// cliente) en un destino interno seguro.
package redirect

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// Destination es una URL interna lista para emitirse en un header Location.
type Destination string

func (d Destination) String() string { return string(d) }

// Token es el return decodificado, clasificado una sola vez al parsear.
// Es MenuItemToken u OpaqueToken.
type Token interface{ isToken() }

// MenuItemToken es un return enteramente numérico: id de ítem de menú.
// ID es 0 cuando los dígitos no forman un id positivo que entre en int64.
type MenuItemToken struct {
	ID     int64
	Digits string // dígitos tal cual llegaron, se preservan al componer la URL
}

// Valid reporta si el token nombra un id de menú posible.
func (t MenuItemToken) Valid() bool { return t.ID > 0 }

// OpaqueToken es cualquier otro string; debe pasar el chequeo de URL interna.
type OpaqueToken struct{ Raw string }

func (MenuItemToken) isToken() {}
func (OpaqueToken) isToken()   {}

// Decode revierte el base64 del transporte. Acepta alfabeto estándar y URL,
// con o sin padding, ignorando espacios. Un valor no decodificable es "".
func Decode(raw string) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, raw)
	if s == "" {
		return ""
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return string(b)
		}
	}
	return ""
}

// Encode codifica un destino para el parámetro return.
func Encode(dest string) string {
	return base64.StdEncoding.EncodeToString([]byte(dest))
}

// Parse clasifica un return ya decodificado.
func Parse(decoded string) Token {
	if isDigits(decoded) {
		id, err := strconv.ParseInt(decoded, 10, 64)
		if err != nil {
			id = 0
		}
		return MenuItemToken{ID: id, Digits: decoded}
	}
	return OpaqueToken{Raw: decoded}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
