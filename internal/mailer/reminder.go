package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltpl "html/template"
	texttpl "text/template"
)

//go:embed templates/*
var templateFS embed.FS

type ReminderVars struct {
	SiteName string
	Username string
	LoginURL string
}

// Reminder arma y envía el recordatorio de nombre de usuario.
type Reminder struct {
	sender Sender
	html   *htmltpl.Template
	text   *texttpl.Template
}

func NewReminder(s Sender) (*Reminder, error) {
	h, err := htmltpl.ParseFS(templateFS, "templates/username_reminder.html")
	if err != nil {
		return nil, fmt.Errorf("mailer: parse html template: %w", err)
	}
	t, err := texttpl.ParseFS(templateFS, "templates/username_reminder.txt")
	if err != nil {
		return nil, fmt.Errorf("mailer: parse text template: %w", err)
	}
	return &Reminder{sender: s, html: h, text: t}, nil
}

// Render devuelve html y texto plano.
func (r *Reminder) Render(v ReminderVars) (string, string, error) {
	var hb, tb bytes.Buffer
	if err := r.html.Execute(&hb, v); err != nil {
		return "", "", fmt.Errorf("mailer: render html: %w", err)
	}
	if err := r.text.Execute(&tb, v); err != nil {
		return "", "", fmt.Errorf("mailer: render text: %w", err)
	}
	return hb.String(), tb.String(), nil
}

func (r *Reminder) Send(ctx context.Context, to, subject string, v ReminderVars) error {
	h, t, err := r.Render(v)
	if err != nil {
		return err
	}
	return r.sender.Send(ctx, to, subject, h, t)
}
