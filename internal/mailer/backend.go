package mailer

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"clouddrive/internal/config"
	"clouddrive/internal/logs"
)

// ErrSMTPNotConfigured is an error indicating that SMTP is not configured
var ErrSMTPNotConfigured = errors.New("SMTP is not configured")

// Backend is an interface for sending emails.
type Backend interface {
	SendEmail(templateType, from string, to []string, data interface{}) error
}

// EmailDialer is an interface for sending email messages
type EmailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// DefaultBackend sends emails via SMTP without queueing.
type DefaultBackend struct {
	Dialer    EmailDialer
	Templates Templates
}

// NewDefaultBackend creates an SMTP backend
func NewDefaultBackend(cfg config.MailConfig) (*DefaultBackend, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, ErrSMTPNotConfigured
	}

	t, err := NewTemplates()
	if err != nil {
		return nil, err
	}

	return &DefaultBackend{
		Dialer:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		Templates: t,
	}, nil
}

// SendEmail renders the template and sends the email immediately via SMTP.
func (b *DefaultBackend) SendEmail(templateType, from string, to []string, data interface{}) error {
	subject, body, err := b.Templates.Execute(templateType, data)
	if err != nil {
		return errors.Wrap(err, "executing template")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody(EmailKindText, body)

	if err := b.Dialer.DialAndSend(m); err != nil {
		return errors.Wrap(err, "dialing and sending email")
	}
	return nil
}

// StdoutBackend logs emails instead of sending them. Useful for development.
type StdoutBackend struct {
	Templates Templates
}

func NewStdoutBackend() (*StdoutBackend, error) {
	t, err := NewTemplates()
	if err != nil {
		return nil, err
	}
	return &StdoutBackend{Templates: t}, nil
}

func (b *StdoutBackend) SendEmail(templateType, from string, to []string, data interface{}) error {
	subject, body, err := b.Templates.Execute(templateType, data)
	if err != nil {
		return errors.Wrap(err, "executing template")
	}

	logs.Logger.WithFields(logrus.Fields{
		"subject": subject,
		"to":      to,
		"from":    from,
		"body":    body,
	}).Info("Email (not sent, using StdoutBackend)")
	return nil
}

// NewBackend выбирает backend по конфигурации.
func NewBackend(cfg config.MailConfig) (Backend, error) {
	if cfg.Backend == "smtp" {
		return NewDefaultBackend(cfg)
	}
	return NewStdoutBackend()
}
