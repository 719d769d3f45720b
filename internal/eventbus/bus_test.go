package eventbus

import (
	"testing"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Type: TypeReminderScheduled, Data: 7})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != TypeReminderScheduled || e.Data != 7 {
				t.Fatalf("subscriber %d got %+v", i, e)
			}
			if e.Time.IsZero() {
				t.Fatalf("subscriber %d: event time not stamped", i)
			}
		default:
			t.Fatalf("subscriber %d got nothing", i)
		}
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	// Second publish overflows the buffer and must be dropped, not block.
	b.Publish(Event{Type: TypeNotifyFired})
	b.Publish(Event{Type: TypeNotifySent})

	e := <-ch
	if e.Type != TypeNotifyFired {
		t.Fatalf("got %q, want the first event", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("overflow event %q should have been dropped", e.Type)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)

	unsub()
	unsub() // repeat is a no-op

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: TypeNotifyFailed})
}

func TestSubscribeDefaultBuffer(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(0)
	defer unsub()

	// Zero buffer falls back to a small default; a publish is buffered.
	b.Publish(Event{Type: TypeReminderCancelled})
	select {
	case e := <-ch:
		if e.Type != TypeReminderCancelled {
			t.Fatalf("got %q", e.Type)
		}
	default:
		t.Fatal("event not buffered")
	}
}
