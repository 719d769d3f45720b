// Package eventbus is a small in-memory fanout bus used to decouple
// the reminder engine from telemetry consumers.
package eventbus

import (
	"sync"
	"time"
)

// Well-known event types published by the reminder pipeline.
const (
	TypeReminderScheduled = "reminder.scheduled"
	TypeReminderCancelled = "reminder.cancelled"
	TypeReminderSkipped   = "reminder.skipped"
	TypeNotifyFired       = "notify.fired"
	TypeNotifySent        = "notify.sent"
	TypeNotifyFailed      = "notify.failed"
)

// Event is a lightweight, in-memory signal.
//
// Contract:
//   - Publish never blocks.
//   - Slow subscribers drop events (bounded backpressure).
//
// Data should be small and ideally JSON-serializable.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

type subscriber struct {
	ch     chan Event
	closed bool
}

// New returns a simple in-memory fanout bus.
// It owns no background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*subscriber{}}
}

type memBus struct {
	mu   sync.Mutex
	subs map[uint64]*subscriber
	seq  uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	// Sends happen under the lock so Unsubscribe cannot close a channel
	// mid-send. Sends are non-blocking, so the lock is held briefly.
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.closed {
			continue
		}
		select {
		case s.ch <- e:
		default:
			// Subscriber is slow; drop.
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			s.closed = true
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, unsub
}
