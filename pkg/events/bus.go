// Package events is the in-process subscription registry that carries
// cross-component refresh signals.
//
// Publishing never blocks: each subscriber has a buffered channel, and an
// event that does not fit is dropped for that subscriber and counted. For the
// refresh signal a drop is harmless because the subscriber still has an
// undelivered refresh queued.
package events

import (
	"sync"
	"sync/atomic"
)

type Kind string

const (
	TasksSynced        Kind = "tasks-synced"
	TasksRefreshNeeded Kind = "tasks-refresh-needed"
)

// Event is a single notification. ActorID names whose tasks changed, empty
// for everyone. Synced is set for TasksSynced only.
type Event struct {
	Kind    Kind           `json:"kind"`
	ActorID string         `json:"actorId,omitempty"`
	Synced  *SyncedPayload `json:"synced,omitempty"`
}

// For reports whether e concerns the given actor.
func (e Event) For(actorID string) bool {
	return e.ActorID == "" || e.ActorID == actorID
}

type SyncedPayload struct {
	SyncedCount int `json:"syncedCount"`
	ErrorCount  int `json:"errorCount"`
}

// SubscriberBuffer is the per-subscriber channel capacity.
const SubscriberBuffer = 32

type subscriber struct {
	kinds   map[Kind]bool
	channel chan Event
	dropped atomic.Int64
}

// Bus fans events out to subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[*subscriber]struct{})}
}

// Subscription is a live registration on a Bus.
type Subscription struct {
	bus *Bus
	sub *subscriber
}

// C returns the channel events are delivered on. It is closed by Close or
// when the bus closes.
func (s *Subscription) C() <-chan Event {
	return s.sub.channel
}

// Dropped reports how many events did not fit the buffer.
func (s *Subscription) Dropped() int64 {
	return s.sub.dropped.Load()
}

func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subscribers[s.sub]; ok {
		delete(s.bus.subscribers, s.sub)
		close(s.sub.channel)
	}
}

// Subscribe registers for the given kinds, or for every kind when none are
// given.
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	sub := &subscriber{channel: make(chan Event, SubscriberBuffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.channel)
	} else {
		b.subscribers[sub] = struct{}{}
	}
	return &Subscription{bus: b, sub: sub}
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subscribers {
		if sub.kinds != nil && !sub.kinds[e.Kind] {
			continue
		}
		select {
		case sub.channel <- e:
		default:
			sub.dropped.Add(1)
		}
	}
}

// PublishSynced emits tasks-synced for actorID and, when anything was
// synced, tasks-refresh-needed.
func (b *Bus) PublishSynced(actorID string, synced, failed int) {
	b.Publish(Event{Kind: TasksSynced, ActorID: actorID, Synced: &SyncedPayload{SyncedCount: synced, ErrorCount: failed}})
	if synced > 0 {
		b.Publish(Event{Kind: TasksRefreshNeeded, ActorID: actorID})
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subscribers {
		close(sub.channel)
		delete(b.subscribers, sub)
	}
}
