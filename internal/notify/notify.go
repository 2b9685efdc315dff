// Package notify доставляет почтовые уведомления асинхронно: события
// публикуются в очередь (в памяти или RabbitMQ), воркер отправляет письма.
package notify

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type EventType string

const (
	EventWelcome         EventType = "user.welcome"
	EventVerifyEmail     EventType = "user.verify_email"
	EventResetPassword   EventType = "user.reset_password"
	EventPasswordChanged EventType = "user.password_changed"
)

// Event - сообщение, которое кладется в очередь.
type Event struct {
	Type       EventType `json:"type"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	Link       string    `json:"link,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier - порт уведомлений сервисного слоя.
type Notifier interface {
	Welcome(ctx context.Context, email, username string) error
	VerifyEmail(ctx context.Context, email, username, link string) error
	ResetPassword(ctx context.Context, email, username, link string) error
	PasswordChanged(ctx context.Context, email, username string) error
}

// Publisher кладет событие в очередь.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Handler обрабатывает событие из очереди.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// EventNotifier превращает вызовы Notifier в события для Publisher.
type EventNotifier struct {
	pub Publisher
	now func() time.Time
}

func NewEventNotifier(pub Publisher) *EventNotifier {
	return &EventNotifier{pub: pub, now: time.Now}
}

func (n *EventNotifier) publish(ctx context.Context, typ EventType, email, username, link string) error {
	ev := Event{Type: typ, Email: email, Username: username, Link: link, OccurredAt: n.now().UTC()}
	if err := n.pub.Publish(ctx, ev); err != nil {
		return errors.Wrapf(err, "publishing %s", typ)
	}
	return nil
}

func (n *EventNotifier) Welcome(ctx context.Context, email, username string) error {
	return n.publish(ctx, EventWelcome, email, username, "")
}

func (n *EventNotifier) VerifyEmail(ctx context.Context, email, username, link string) error {
	return n.publish(ctx, EventVerifyEmail, email, username, link)
}

func (n *EventNotifier) ResetPassword(ctx context.Context, email, username, link string) error {
	return n.publish(ctx, EventResetPassword, email, username, link)
}

func (n *EventNotifier) PasswordChanged(ctx context.Context, email, username string) error {
	return n.publish(ctx, EventPasswordChanged, email, username, "")
}
