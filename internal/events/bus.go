// Package events fans core events out to observers such as the SSE stream
// and the MQTT publisher. Publishing never blocks the caller.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type names the source of an event.
type Type string

const (
	TypeRecognition Type = "recognition"
	TypeAttendance  Type = "attendance"
	TypeCapture     Type = "capture"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Event is one published item. Payload is marshalled by the observer.
type Event struct {
	Type    Type      `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

type subscriber struct {
	ch      chan Event
	types   map[Type]bool
	dropped atomic.Uint64
}

func (s *subscriber) wants(t Type) bool {
	return len(s.types) == 0 || s.types[t]
}

// Bus is a non-blocking fan-out. The zero value is not usable; call New.
type Bus struct {
	mu        sync.RWMutex
	subs      map[uint64]*subscriber
	nextID    uint64
	published atomic.Uint64
	closed    bool
}

func New() *Bus {
	return &Bus{subs: make(map[uint64]*subscriber)}
}

// Subscribe registers a receiver for the given types, or every type when none
// are named. The returned cancel func closes the channel and is safe to call twice.
func (b *Bus) Subscribe(buffer int, types ...Type) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Publish stamps At when unset and delivers ev to every interested subscriber.
// A subscriber whose buffer is full misses the event.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.published.Add(1)
	for _, sub := range b.subs {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Stats reports events published and the total dropped across subscribers.
func (b *Bus) Stats() (published, dropped uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		dropped += sub.dropped.Load()
	}
	return b.published.Load(), dropped
}

// Subscribers is the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
