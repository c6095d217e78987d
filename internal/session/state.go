// Package session mantiene el estado por usuario entre requests (form data,
// destino pendiente, flags, identidad, cola de mensajes).
//
// Las keys son un conjunto cerrado: leer o escribir una key fuera de Keys()
// devuelve ErrUnknownKey.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Key string

const (
	// KeyLoginFormReturn destino pendiente del login; los LoginHook pueden pisarlo.
	KeyLoginFormReturn Key = "users.login.form.return"
	// KeyLoginFormData snapshot del form de login fallido, sin credenciales.
	KeyLoginFormData Key = "users.login.form.data"
	KeyRememberLogin Key = "rememberLogin"
	KeyUserID        Key = "user.id"
	KeyMessageQueue  Key = "application.queue"
)

var knownKeys = map[Key]struct{}{
	KeyLoginFormReturn: {},
	KeyLoginFormData:   {},
	KeyRememberLogin:   {},
	KeyUserID:          {},
	KeyMessageQueue:    {},
}

// Keys devuelve el conjunto de keys válidas.
func Keys() []Key {
	return []Key{KeyLoginFormReturn, KeyLoginFormData, KeyRememberLogin, KeyUserID, KeyMessageQueue}
}

var ErrUnknownKey = errors.New("session: unknown key")

func checkKey(k Key) error {
	if _, ok := knownKeys[k]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, string(k))
	}
	return nil
}

// LoginFormData es lo que se guarda para repoblar el form tras un login fallido.
// Username, Password y SecretKey siempre se persisten vacíos.
type LoginFormData struct {
	Return    string `json:"return"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	SecretKey string `json:"secretkey"`
	Remember  int    `json:"remember"`
}

// State es el estado de una sesión durante un request. No es seguro para uso
// concurrente; el Manager serializa los requests de una misma sesión.
type State struct {
	id      string
	oldID   string // id previo si hubo Rotate en este request
	data    map[Key]json.RawMessage
	isNew   bool
	dirty   bool
	rotated bool
}

// NewState crea un estado vacío con el id dado. Lo usan el Manager y los tests.
func NewState(id string) *State {
	return &State{id: id, data: map[Key]json.RawMessage{}, isNew: true}
}

func (s *State) ID() string  { return s.id }
func (s *State) IsNew() bool { return s.isNew }

// Get decodifica el valor de k en dst. ok=false si no hay valor.
func (s *State) Get(k Key, dst any) (bool, error) {
	if err := checkKey(k); err != nil {
		return false, err
	}
	raw, ok := s.data[k]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("session: decode %s: %w", k, err)
	}
	return true, nil
}

func (s *State) Set(k Key, v any) error {
	if err := checkKey(k); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", k, err)
	}
	s.data[k] = raw
	s.dirty = true
	return nil
}

func (s *State) Delete(k Key) error {
	if err := checkKey(k); err != nil {
		return err
	}
	if _, ok := s.data[k]; ok {
		delete(s.data, k)
		s.dirty = true
	}
	return nil
}

// Has reporta si k tiene valor. Una key desconocida es false.
func (s *State) Has(k Key) bool {
	_, ok := s.data[k]
	return ok
}

// String lee un string; "" si falta o no es string.
func (s *State) String(k Key) string {
	var v string
	if ok, err := s.Get(k, &v); !ok || err != nil {
		return ""
	}
	return v
}

// Bool lee un bool; false si falta o no es bool.
func (s *State) Bool(k Key) bool {
	var v bool
	if ok, err := s.Get(k, &v); !ok || err != nil {
		return false
	}
	return v
}

func (s *State) UserID() string    { return s.String(KeyUserID) }
func (s *State) IsAnonymous() bool { return s.UserID() == "" }

// Touch marca el estado para persistirse aunque no cambien datos (p.ej. al
// emitir un token ligado al id de una sesión nueva).
func (s *State) Touch() { s.dirty = true }

// Rotate asigna un id nuevo conservando los datos (defensa contra fixation).
// El Manager borra el registro viejo y emite la cookie nueva al guardar.
func (s *State) Rotate(newID string) {
	if !s.rotated {
		s.oldID = s.id
	}
	s.id = newID
	s.rotated = true
	s.dirty = true
}

func (s *State) record() ([]byte, error) {
	return json.Marshal(s.data)
}

func loadState(id string, b []byte) (*State, error) {
	data := map[Key]json.RawMessage{}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	for k := range data {
		if _, ok := knownKeys[k]; !ok {
			delete(data, k)
		}
	}
	return &State{id: id, data: data}, nil
}
