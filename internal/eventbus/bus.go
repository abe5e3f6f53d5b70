// Package eventbus is a small in-process pub/sub used to fan bridge activity
// out to observers (web push, future dashboards) without coupling them to the
// event pipeline.
package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type EventType string

const (
	EventTurnCompleted EventType = "turn.completed"
	EventTurnErrored   EventType = "turn.errored"
	EventNotification  EventType = "session.notification"
	EventSessionEnded  EventType = "session.ended"
)

type Event struct {
	ID        string
	Type      EventType
	Project   string
	Instance  string
	Payload   string
	CreatedAt time.Time
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// buffer full, drop event for this subscriber
		}
	}
}

func (b *Bus) PublishNew(eventType EventType, project, instance, payload string) {
	b.Publish(&Event{
		ID:        ulid.Make().String(),
		Type:      eventType,
		Project:   project,
		Instance:  instance,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
}
