// Package users define los campos de request y las respuestas de /users.
package users

import (
	"strings"

	"github.com/dropDatabas3/sitegate/internal/flash"
)

// Nombres de campos; estables entre las operaciones.
const (
	FieldReturn    = "return"
	FieldUsername  = "username"
	FieldPassword  = "password"
	FieldSecretKey = "secretkey"
	FieldRemember  = "remember"
	FieldEmail     = "jform[email]"
	FieldItemID    = "Itemid"
)

// TokenResponse es la respuesta de GET /users/token.
type TokenResponse struct {
	CSRFToken string `json:"csrf_token"`
	Field     string `json:"field"`
}

// MessagesResponse es la respuesta de GET /users/messages.
type MessagesResponse struct {
	Messages []flash.Message `json:"messages"`
}

// ParseBool interpreta checkboxes de form: "1", "true", "on", "yes".
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
