package notify

import (
	"context"

	"github.com/pkg/errors"

	"clouddrive/internal/mailer"
)

var templateByEvent = map[EventType]string{
	EventWelcome:         mailer.EmailTypeWelcome,
	EventVerifyEmail:     mailer.EmailTypeVerifyEmail,
	EventResetPassword:   mailer.EmailTypeResetPassword,
	EventPasswordChanged: mailer.EmailTypePasswordChanged,
}

// MailDispatcher отправляет письмо, соответствующее событию.
type MailDispatcher struct {
	backend mailer.Backend
	from    string
}

func NewMailDispatcher(backend mailer.Backend, from string) *MailDispatcher {
	return &MailDispatcher{backend: backend, from: from}
}

func (d *MailDispatcher) Handle(_ context.Context, ev Event) error {
	tmpl, ok := templateByEvent[ev.Type]
	if !ok {
		return errors.Errorf("unknown event type %q", ev.Type)
	}
	if ev.Email == "" {
		return errors.New("event has no recipient")
	}

	data := mailer.TmplData{Username: ev.Username, AccountEmail: ev.Email, Link: ev.Link}
	if err := d.backend.SendEmail(tmpl, d.from, []string{ev.Email}, data); err != nil {
		return errors.Wrapf(err, "sending %s email", tmpl)
	}
	return nil
}
