// Package bus provides in-process pub/sub and correlated request/response
// messaging between workers.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

// ErrTimeout indicates no response arrived within the request deadline.
var ErrTimeout = errors.New("timed out waiting for response")

// NotificationKind labels a non-fatal bus condition.
type NotificationKind string

const (
	// NotifyRecipientNotFound means a message was addressed to an
	// unregistered participant. Delivery is best-effort, so this is
	// reported rather than raised.
	NotifyRecipientNotFound NotificationKind = "recipient_not_found"
	// NotifyQueueFull means a participant's queue was full and the
	// message was dropped.
	NotifyQueueFull NotificationKind = "queue_full"
)

// Notification reports a non-fatal delivery problem.
// Bus problems never halt orchestration; observers may subscribe to these.
type Notification struct {
	// Kind is the condition being reported.
	Kind NotificationKind
	// Participant is the affected participant id.
	Participant string
	// Message is the message that could not be delivered.
	Message models.Message
}

// DefaultQueueSize is the per-participant message buffer.
const DefaultQueueSize = 64

// MessageBus routes ephemeral messages between registered participants.
type MessageBus struct {
	mu      sync.RWMutex
	subs    map[string]chan models.Message
	waiters map[string]chan models.Message
	buffer  int

	notifications chan Notification
	now           func() time.Time
}

// New creates a MessageBus with the given per-participant queue size.
func New(buffer int) *MessageBus {
	if buffer <= 0 {
		buffer = DefaultQueueSize
	}
	return &MessageBus{
		subs:          make(map[string]chan models.Message),
		waiters:       make(map[string]chan models.Message),
		buffer:        buffer,
		notifications: make(chan Notification, DefaultQueueSize),
		now:           time.Now,
	}
}

// Register adds a participant and returns its receive channel.
// Registering an already-registered id returns the existing channel.
func (b *MessageBus) Register(participantID string) <-chan models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[participantID]; ok {
		return ch
	}
	ch := make(chan models.Message, b.buffer)
	b.subs[participantID] = ch
	return ch
}

// Unregister removes a participant. The receive channel is left open so
// that a concurrent Send holding a reference to it never panics; once the
// entry is dropped no new messages reach it and the receiver can drain
// whatever is buffered. Unknown ids are a no-op.
func (b *MessageBus) Unregister(participantID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, participantID)
}

// Participants returns the ids of all registered participants.
func (b *MessageBus) Participants() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.subs))
	for id := range b.subs {
		out = append(out, id)
	}
	return out
}

// Send delivers a message best-effort, fire-and-forget. A wildcard
// recipient broadcasts to every participant. Unknown recipients and full
// queues surface as notifications, never as errors: a missing collaborator
// must not halt orchestration.
//
// A message carrying the correlation id of a pending request resolves that
// request instead of being routed to a participant queue.
func (b *MessageBus) Send(msg models.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.now()
	}

	if msg.CorrelationID != "" {
		b.mu.Lock()
		waiter, ok := b.waiters[msg.CorrelationID]
		if ok {
			delete(b.waiters, msg.CorrelationID)
		}
		b.mu.Unlock()
		if ok {
			waiter <- msg
			return
		}
	}

	b.deliver(msg)
}

// deliver routes a message to participant queues without consulting waiters.
func (b *MessageBus) deliver(msg models.Message) {
	if msg.To == models.Broadcast {
		b.mu.RLock()
		targets := make(map[string]chan models.Message, len(b.subs))
		for id, ch := range b.subs {
			targets[id] = ch
		}
		b.mu.RUnlock()

		for id, ch := range targets {
			if id == msg.From {
				continue
			}
			b.push(id, ch, msg)
		}
		return
	}

	b.mu.RLock()
	ch, ok := b.subs[msg.To]
	b.mu.RUnlock()
	if !ok {
		b.notify(Notification{Kind: NotifyRecipientNotFound, Participant: msg.To, Message: msg})
		return
	}
	b.push(msg.To, ch, msg)
}

// push enqueues without blocking; a full queue drops the message.
func (b *MessageBus) push(participantID string, ch chan models.Message, msg models.Message) {
	select {
	case ch <- msg:
	default:
		b.notify(Notification{Kind: NotifyQueueFull, Participant: participantID, Message: msg})
	}
}

// Request sends a message and waits for a response carrying the same
// correlation id. A fresh correlation id is assigned. Fails with ErrTimeout
// after the timeout; the pending waiter is removed on every path.
func (b *MessageBus) Request(ctx context.Context, msg models.Message, timeout time.Duration) (models.Message, error) {
	correlationID := uuid.New().String()
	msg.CorrelationID = correlationID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.now()
	}

	waiter := make(chan models.Message, 1)
	b.mu.Lock()
	b.waiters[correlationID] = waiter
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.waiters, correlationID)
		b.mu.Unlock()
	}()

	b.deliver(msg)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case response := <-waiter:
		return response, nil
	case <-timer.C:
		return models.Message{}, fmt.Errorf("request to %s: %w", msg.To, ErrTimeout)
	case <-ctx.Done():
		return models.Message{}, ctx.Err()
	}
}

// Notifications returns the channel of non-fatal delivery reports.
func (b *MessageBus) Notifications() <-chan Notification {
	return b.notifications
}

// notify reports without blocking; an unread notification backlog is dropped.
func (b *MessageBus) notify(n Notification) {
	select {
	case b.notifications <- n:
	default:
	}
}
