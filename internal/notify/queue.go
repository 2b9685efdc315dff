package notify

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"clouddrive/internal/logs"
)

var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrQueueClosed = errors.New("notification queue is closed")
)

// Queue - очередь уведомлений в памяти процесса. Publish не блокируется:
// при переполненном буфере событие отбрасывается с ошибкой.
type Queue struct {
	mu     sync.RWMutex
	events chan Event
	closed bool
}

func NewQueue(buffer int) *Queue {
	if buffer <= 0 {
		buffer = 1
	}
	return &Queue{events: make(chan Event, buffer)}
}

func (q *Queue) Publish(_ context.Context, ev Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.events <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close закрывает очередь; Run дообработает оставшиеся события и вернется.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
}

// Run обрабатывает события до закрытия очереди или отмены ctx.
func (q *Queue) Run(ctx context.Context, h Handler) {
	log := logs.WithComponent("notify-queue")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-q.events:
			if !ok {
				return
			}
			if err := h.Handle(ctx, ev); err != nil {
				log.WithError(err).WithField("event", ev.Type).Error("failed to handle notification")
			}
		}
	}
}
