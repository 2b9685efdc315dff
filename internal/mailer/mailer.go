// Package mailer renders and sends transactional emails
package mailer

import (
	"bytes"
	"fmt"
	ttemplate "text/template"

	"github.com/pkg/errors"

	"clouddrive/internal/mailer/templates"
)

const (
	EmailTypeWelcome         = "welcome"
	EmailTypeVerifyEmail     = "verify_email"
	EmailTypeResetPassword   = "reset_password"
	EmailTypePasswordChanged = "password_changed"
)

// EmailKindText is the type of text email
const EmailKindText = "text/plain"

type template struct {
	tmpl    *ttemplate.Template
	subject string
}

// Templates holds the parsed email templates with their subjects
type Templates map[string]template

var subjects = map[string]string{
	EmailTypeWelcome:         "Welcome to Cloud Drive!",
	EmailTypeVerifyEmail:     "Confirm your email address",
	EmailTypeResetPassword:   "Reset your Cloud Drive password",
	EmailTypePasswordChanged: "Your Cloud Drive password was changed",
}

// NewTemplates parses every embedded template.
func NewTemplates() (Templates, error) {
	T := Templates{}
	for name, subject := range subjects {
		t, err := initTextTmpl(name)
		if err != nil {
			return nil, errors.Wrapf(err, "initializing %s template", name)
		}
		T[name] = template{tmpl: t, subject: subject}
	}
	return T, nil
}

func initTextTmpl(name string) (*ttemplate.Template, error) {
	content, err := templates.Files.ReadFile(fmt.Sprintf("%s.txt", name))
	if err != nil {
		return nil, errors.Wrap(err, "reading template")
	}

	t, err := ttemplate.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, errors.Wrap(err, "parsing template")
	}
	return t, nil
}

// Execute executes the template and returns the subject and body
func (tmpl Templates) Execute(name string, data any) (subject, body string, err error) {
	t, ok := tmpl[name]
	if !ok {
		return "", "", errors.Errorf("unsupported template '%s'", name)
	}

	buf := new(bytes.Buffer)
	if err := t.tmpl.Execute(buf, data); err != nil {
		return "", "", errors.Wrap(err, "executing the template")
	}
	return t.subject, buf.String(), nil
}

// TmplData is the data every template receives.
type TmplData struct {
	Username     string
	AccountEmail string
	Link         string
}
