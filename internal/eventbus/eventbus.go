// Package eventbus fans out persisted analysis events to WebSocket
// subscribers. It mirrors framestore's per-subscriber channel approach but
// adds an explicit lag-warning message instead of silently dropping frames,
// since an event subscriber (unlike a live viewer) cares about having missed
// something.
package eventbus

import (
	"sync"

	"camguard/internal/store"
)

// Capacity is the buffer depth of the process-wide broadcast; it is shared
// across every subscriber channel rather than being a single shared queue.
const Capacity = 256

// Message is either a persisted event or a synthetic notice that the
// subscriber fell behind and some events were skipped.
type Message struct {
	Record *store.EventRecord
	Missed int
}

type subscriber struct {
	ch     chan Message
	mu     sync.Mutex
	missed int
}

// Bus broadcasts EventRecords to every live subscriber.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Publish fans rec out to every subscriber. A subscriber with no room simply
// accumulates a missed count; the next successful send is preceded by a
// lag-warning message carrying it. No subscribers is not an error.
func (b *Bus) Publish(rec store.EventRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		s.send(rec)
	}
}

func (s *subscriber) send(rec store.EventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.missed > 0 {
		select {
		case s.ch <- Message{Missed: s.missed}:
			s.missed = 0
		default:
			s.missed++
			return
		}
	}

	r := rec
	select {
	case s.ch <- Message{Record: &r}:
	default:
		s.missed++
	}
}

// Subscribe returns a channel of messages for this subscriber and an
// unsubscribe function that must be called when the caller is done
// (typically on WebSocket close).
func (b *Bus) Subscribe() (<-chan Message, func()) {
	s := &subscriber{ch: make(chan Message, Capacity)}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[s]; ok {
			delete(b.subs, s)
			close(s.ch)
		}
	}

	return s.ch, unsubscribe
}
