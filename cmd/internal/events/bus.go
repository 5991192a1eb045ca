// Package events is the portal's in-process completion signal.
//
// Events are named and carry no payload: "credentials changed, refetch what depends on them"
// or "session is gone, drop what depends on it". Publishing never blocks; a subscriber that
// does not keep up loses events rather than stalling the request that published them.
package events

import (
	"sync"
	"time"
)

const (
	// CredentialsRenewed is published after a request was retried with a renewed access credential.
	CredentialsRenewed = "auth.renewed"
	// SessionTerminated is published when the session ends and the client is sent to login.
	SessionTerminated = "auth.terminated"
)

const defaultSubscriberBuffer = 16

// Event is one published signal.
type Event struct {
	Name string
	At   time.Time
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Bus fans published events out to subscribers of the same name.
// The zero value is not usable; construct with NewBus.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
	now    func() time.Time
}

// NewBus returns an empty Bus. buffer <= 0 selects the default per-subscriber buffer.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Bus{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: buffer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers interest in name. The returned func unsubscribes and is idempotent.
// The channel is never closed by the bus.
func (b *Bus) Subscribe(name string) (<-chan Event, func()) {
	s := &subscriber{
		ch:   make(chan Event, b.buffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	set, ok := b.subs[name]
	if !ok {
		set = make(map[*subscriber]struct{})
		b.subs[name] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[name]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(b.subs, name)
			}
		}
		b.mu.Unlock()
		s.close()
	}
	return s.ch, cancel
}

// Publish delivers name to every current subscriber without blocking.
func (b *Bus) Publish(name string) {
	if b == nil {
		return
	}
	ev := Event{Name: name, At: b.now()}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs[name] {
		select {
		case <-s.done:
			continue
		default:
		}

		select {
		case s.ch <- ev:
		default:
			// Slow subscriber: drop.
		}
	}
}

// Subscribers returns the number of live subscribers for name.
func (b *Bus) Subscribers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}
