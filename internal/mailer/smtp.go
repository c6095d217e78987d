// Package mailer envía los correos transaccionales (recordatorio de usuario).
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/dropDatabas3/sitegate/internal/observability/logger"
)

type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

type SMTPConfig struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
}

type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	log := logger.From(ctx).With(logger.Component("mailer"), logger.Op("smtp.Send"))

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	// multipart/alternative (txt + html)
	if textBody != "" {
		m.SetBody("text/plain", textBody)
	}
	if htmlBody != "" {
		if textBody == "" {
			m.SetBody("text/html", htmlBody)
		} else {
			m.AddAlternative("text/html", htmlBody)
		}
	}

	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify, // sólo dev
	}
	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		// auto/starttls: go-mail negocia STARTTLS si el server lo ofrece
	}

	if err := d.DialAndSend(m); err != nil {
		log.Error("smtp send failed", logger.Any("host", s.cfg.Host), logger.Err(err))
		return fmt.Errorf("mailer: smtp send: %w", err)
	}
	log.Info("smtp send ok", logger.Any("host", s.cfg.Host))
	return nil
}

// LogSender no envía nada: deja constancia en el log. Para dev sin SMTP.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, subject, _, _ string) error {
	logger.From(ctx).Info("mail not sent (no smtp configured)",
		logger.Component("mailer"), logger.Any("subject", subject))
	return nil
}
