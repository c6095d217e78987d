// Package flash encola mensajes de una sola lectura en la sesión y traduce
// los textos de la componente de usuarios.
package flash

import (
	"fmt"

	"github.com/dropDatabas3/sitegate/internal/session"
)

type Severity string

const (
	SeverityMessage Severity = "message"
	SeverityNotice  Severity = "notice"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Message struct {
	Text     string   `json:"message"`
	Severity Severity `json:"type"`
}

// MaxQueue es el largo máximo de la cola; al superarlo se descartan los más viejos.
const MaxQueue = 10

// Messenger lee y escribe la cola en session.KeyMessageQueue.
type Messenger struct{}

func NewMessenger() *Messenger { return &Messenger{} }

func (m *Messenger) Enqueue(st *session.State, text string, sev Severity) error {
	if sev == "" {
		sev = SeverityMessage
	}
	q, err := m.Peek(st)
	if err != nil {
		return err
	}
	q = append(q, Message{Text: text, Severity: sev})
	if len(q) > MaxQueue {
		q = q[len(q)-MaxQueue:]
	}
	if err := st.Set(session.KeyMessageQueue, q); err != nil {
		return fmt.Errorf("flash: enqueue: %w", err)
	}
	return nil
}

// Peek devuelve la cola sin vaciarla.
func (m *Messenger) Peek(st *session.State) ([]Message, error) {
	var q []Message
	if _, err := st.Get(session.KeyMessageQueue, &q); err != nil {
		return nil, fmt.Errorf("flash: read queue: %w", err)
	}
	return q, nil
}

// Drain devuelve la cola y la vacía.
func (m *Messenger) Drain(st *session.State) ([]Message, error) {
	if !st.Has(session.KeyMessageQueue) {
		return nil, nil
	}
	q, err := m.Peek(st)
	if err != nil {
		return nil, err
	}
	if err := st.Delete(session.KeyMessageQueue); err != nil {
		return nil, err
	}
	return q, nil
}
