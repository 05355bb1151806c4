// Package eventbus implements the Daemon's monotonically-cursored event
// stream: every contract creation, transition, and registry escalation is
// published here, numbered with a strictly increasing cursor starting at
// 1, so collaborators that reconnect after a gap can replay exactly what
// they missed instead of re-deriving it from the store.
package eventbus

import "sync"

// Kind names the category of a published event, mirroring the Daemon
// API's event stream variants.
type Kind string

const (
	KindContractCreated           Kind = "contract_created"
	KindContractTransitioned      Kind = "contract_transitioned"
	KindResourceConflictEscalated Kind = "resource_conflict_escalated"
	KindEndpointRangeExhausted    Kind = "endpoint_range_exhausted"
)

// Event is a single entry in the bus's history: an opaque payload tagged
// with its Kind and the cursor it was assigned at publish time.
type Event struct {
	Cursor  uint64
	Kind    Kind
	Payload any
}

// subscriberBuffer bounds how far a slow subscriber can lag before the bus
// starts dropping events to it rather than blocking publishers. A
// subscriber that falls behind should reconnect and call ReplayFrom
// instead of stalling the whole bus.
const subscriberBuffer = 256

// Bus is a single-writer, multi-reader event stream. Safe for concurrent
// use; all state is guarded by one mutex.
type Bus struct {
	mu          sync.Mutex
	nextCursor  uint64
	history     []Event
	subscribers []chan Event
}

// New constructs an empty Bus with its cursor starting before 1, so the
// first published event is assigned cursor 1.
func New() *Bus {
	return &Bus{}
}

// Publish assigns the next cursor to an event of the given kind and
// payload, appends it to history, and fans it out to every live
// subscriber. A subscriber whose buffer is full is dropped silently —
// fan-out is best-effort, and dropped subscribers must recover via
// [Bus.ReplayFrom].
func (b *Bus) Publish(kind Kind, payload any) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextCursor++
	event := Event{Cursor: b.nextCursor, Kind: kind, Payload: payload}
	b.history = append(b.history, event)

	live := b.subscribers[:0]
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
			live = append(live, ch)
		default:
			close(ch)
		}
	}
	b.subscribers = live

	return event
}

// Subscribe registers a new subscriber and returns a receive-only channel
// of future events. The channel is closed if the subscriber falls behind
// and is dropped, or when [Bus.Close] is called.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// ReplayFrom returns every event with a cursor strictly greater than
// cursor, in publish order. Passing 0 replays the entire history.
func (b *Bus) ReplayFrom(cursor uint64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, 0)
	for _, event := range b.history {
		if event.Cursor > cursor {
			out = append(out, event)
		}
	}
	return out
}

// Cursor returns the cursor of the most recently published event, or 0 if
// nothing has been published yet.
func (b *Bus) Cursor() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextCursor
}

// Close closes every live subscriber channel. The bus itself remains
// usable for Publish and ReplayFrom; new Subscribe calls after Close are
// still honored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
