package eventbus

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/arolang/runtime"
)

type subscription struct {
	id      string
	handler aro.HandlerFunc
}

// Bus is the topic → subscriber registry of spec §4.5. Subscriber lists
// are copy-on-write: Publish reads a snapshot slice without holding the
// lock across delivery, and Subscribe/unsubscribe rebuild the slice under
// the lock (spec §5: "Event-bus subscriber lists: copy-on-write for
// publication; mutation under a lock").
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscription
	scheduler   *Scheduler
}

func New(scheduler *Scheduler) *Bus {
	if scheduler == nil {
		scheduler = NewScheduler()
	}
	return &Bus{
		subscribers: make(map[string][]subscription),
		scheduler:   scheduler,
	}
}

var _ aro.EventBus = (*Bus)(nil)

// Subscribe registers handler for topic. Each call gets a fresh
// subscriber id, so subscribing the same handler value twice yields two
// independent deliveries — idempotence (spec §4.5 "idempotent per
// (subscriber-id, event-type)") is the caller's responsibility to enforce
// by not calling Subscribe twice for the same logical subscriber.
func (b *Bus) Subscribe(topic string, handler aro.HandlerFunc) func() {
	id := uuid.NewString()
	b.mu.Lock()
	existing := b.subscribers[topic]
	next := make([]subscription, len(existing), len(existing)+1)
	copy(next, existing)
	next = append(next, subscription{id: id, handler: handler})
	b.subscribers[topic] = next
	b.mu.Unlock()

	return func() { b.unsubscribe(topic, id) }
}

func (b *Bus) unsubscribe(topic, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	existing := b.subscribers[topic]
	next := make([]subscription, 0, len(existing))
	for _, s := range existing {
		if s.id != id {
			next = append(next, s)
		}
	}
	b.subscribers[topic] = next
}

// Publish implements spec §4.5: non-blocking, enqueues a delivery per
// subscriber to the scheduler. Each delivery runs in its own fresh child
// context with `event` bound to the payload, and each payload key also
// bound as `event:key` (spec §4.5 "Handler execution contract").
// Deliveries for the same event are concurrent, not ordered.
func (b *Bus) Publish(ctx *aro.Context, evt aro.Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	b.mu.RLock()
	subs := b.subscribers[evt.Topic]
	b.mu.RUnlock()

	for _, sub := range subs {
		sub := sub
		b.scheduler.Go(func() {
			handlerCtx := ctx.NewChild()
			handlerCtx.Bind(aro.BindingEvent, evt.Payload)
			if m := evt.Payload.AsMap(); m != nil {
				for _, key := range m.Keys() {
					v, _ := m.Get(key)
					handlerCtx.Bind(fmt.Sprintf("event:%s", key), v)
				}
			}
			_ = sub.handler(handlerCtx, evt)
		})
	}
	return nil
}

// SubscriberCount reports the number of active subscribers for topic,
// used by tests and observability.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// Scheduler returns the process-wide gate this bus dispatches through, so
// callers outside the bus (parallel-for-each, in particular) can bound
// their own concurrent work against the same spec §4.5 gate instead of
// standing up a disposable one of their own.
func (b *Bus) Scheduler() *Scheduler {
	return b.scheduler
}
