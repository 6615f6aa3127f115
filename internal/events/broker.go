package events

import (
	"context"
	"sync"
	"time"

	"estatehub.org/internal/community"
)

// Event announces a committed decision on a sticker, permit or admin record.
type Event struct {
	Type         string    `json:"type"`
	TenantID     string    `json:"tenant_id"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Action       string    `json:"action"`
	Status       string    `json:"status"`
	ActorID      string    `json:"actor_id"`
	At           time.Time `json:"at"`
}

type subscriber struct {
	scope community.Scope
	ch    chan Event
}

// Broker fans out events to subscribers whose tenant scope admits them.
type Broker struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
	buf  int
}

// NewBroker returns an empty broker; buffer is the per-subscriber queue length.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{subs: make(map[int]subscriber), buf: buffer}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events visible in scope. The channel is closed when ctx ends.
func (b *Broker) Subscribe(ctx context.Context, scope community.Scope) <-chan Event {
	ch := make(chan Event, b.buf)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscriber{scope: scope, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers evt to every matching subscriber without blocking.
func (b *Broker) Publish(evt Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.scope.Allows(evt.TenantID) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			// slow subscriber
		}
	}
}

// Subscribers reports the number of active subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
