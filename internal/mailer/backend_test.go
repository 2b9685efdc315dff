package mailer

import (
	"errors"
	"testing"

	"gopkg.in/gomail.v2"

	"clouddrive/internal/config"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func TestDefaultBackendSendEmail(t *testing.T) {
	tmpl, _ := NewTemplates()
	dialer := &fakeDialer{}
	b := &DefaultBackend{Dialer: dialer, Templates: tmpl}

	err := b.SendEmail(EmailTypeWelcome, "from@example.com", []string{"to@example.com"}, TmplData{Username: "a", AccountEmail: "to@example.com"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(dialer.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(dialer.sent))
	}

	m := dialer.sent[0]
	if got := m.GetHeader("To"); len(got) != 1 || got[0] != "to@example.com" {
		t.Errorf("unexpected To header %v", got)
	}
	if got := m.GetHeader("Subject"); len(got) != 1 || got[0] != "Welcome to Cloud Drive!" {
		t.Errorf("unexpected Subject header %v", got)
	}
}

func TestDefaultBackendDialError(t *testing.T) {
	tmpl, _ := NewTemplates()
	b := &DefaultBackend{Dialer: &fakeDialer{err: errors.New("boom")}, Templates: tmpl}

	if err := b.SendEmail(EmailTypeWelcome, "f", []string{"t"}, TmplData{}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestNewDefaultBackendNotConfigured(t *testing.T) {
	if _, err := NewDefaultBackend(config.MailConfig{}); err != ErrSMTPNotConfigured {
		t.Fatalf("expected ErrSMTPNotConfigured, got %v", err)
	}
}

func TestStdoutBackend(t *testing.T) {
	b, err := NewStdoutBackend()
	if err != nil {
		t.Fatalf("new stdout backend: %v", err)
	}
	if err := b.SendEmail(EmailTypeVerifyEmail, "f", []string{"t"}, TmplData{Link: "x"}); err != nil {
		t.Fatalf("send: %v", err)
	}
}
