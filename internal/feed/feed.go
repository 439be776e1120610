// Package feed fans report changes out to listening clients, standing in for
// the live queries the app subscribes to.
package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

// EventType names the write that produced an event.
type EventType string

const (
	EventCreated EventType = "created"
	EventClaimed EventType = "claimed"
	EventStatus  EventType = "status"
	EventTeam    EventType = "team"
)

// Event carries the report as it looked right after the write.
type Event struct {
	Type   EventType     `json:"type"`
	Report *model.Report `json:"report"`
	At     time.Time     `json:"at"`
}

// Broker publishes events and hands out subscriptions. The returned cancel
// func must be called once the subscriber is done.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
}

// subscriberBuffer bounds how far a slow subscriber may lag before events for
// it are dropped.
const subscriberBuffer = 32

// MemoryBroker fans events out inside one process.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	log    *zap.Logger
}

// NewMemoryBroker constructs a MemoryBroker.
func NewMemoryBroker(log *zap.Logger) *MemoryBroker {
	return &MemoryBroker{subs: make(map[int]chan Event), log: log}
}

// Publish delivers ev to every subscriber without blocking.
func (b *MemoryBroker) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("feed subscriber lagging, event dropped", zap.Int("subscriber", id), zap.String("type", string(ev.Type)))
		}
	}
	return nil
}

// Subscribe registers a subscriber that lives until cancel is called or ctx
// ends.
func (b *MemoryBroker) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}

// Subscribers returns the number of live subscriptions.
func (b *MemoryBroker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Matches reports whether ev concerns a report in one of statuses. An empty
// status list matches everything.
func Matches(ev Event, statuses []model.Status) bool {
	if len(statuses) == 0 || ev.Report == nil {
		return true
	}
	for _, s := range statuses {
		if ev.Report.Status == s {
			return true
		}
	}
	return false
}
