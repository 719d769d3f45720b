package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

type captureDeliverer struct {
	ch chan reminder.Event
}

func newCaptureDeliverer() *captureDeliverer {
	return &captureDeliverer{ch: make(chan reminder.Event, 8)}
}

func (d *captureDeliverer) Deliver(_ context.Context, ev reminder.Event) error {
	d.ch <- ev
	return nil
}

func futureEvent(id int64, in time.Duration) reminder.Event {
	return reminder.Event{
		TaskID: id,
		Tier:   reminder.TierAtTime,
		FireAt: time.Now().Add(in),
		Title:  "t",
		Body:   "b",
	}
}

func TestScheduleRejectsWhenDisabled(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, newCaptureDeliverer(), logx.Nop(), nil)

	if s.CheckPermission() {
		t.Fatal("permission reported while disabled")
	}
	if _, err := s.Schedule(futureEvent(1, time.Hour)); !errors.Is(err, reminder.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestScheduleRejectsWithoutDeliverer(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, nil, logx.Nop(), nil)

	if s.CheckPermission() {
		t.Fatal("permission reported with no deliverer")
	}
	if _, err := s.Schedule(futureEvent(1, time.Hour)); !errors.Is(err, reminder.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestScheduleRejectsPastFire(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, newCaptureDeliverer(), logx.Nop(), nil)

	for _, in := range []time.Duration{0, -time.Second, -time.Hour} {
		if _, err := s.Schedule(futureEvent(1, in)); !errors.Is(err, reminder.ErrPastFire) {
			t.Fatalf("fire in %v: err = %v, want ErrPastFire", in, err)
		}
	}
	if s.Pending() != 0 {
		t.Fatalf("pending = %d after rejections, want 0", s.Pending())
	}
}

func TestScheduleAndCancel(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, newCaptureDeliverer(), logx.Nop(), nil)

	h1, err := s.Schedule(futureEvent(1, time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	h2, err := s.Schedule(futureEvent(2, time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("handles collide: %q", h1)
	}
	if s.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", s.Pending())
	}

	if err := s.Cancel(h1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if s.Pending() != 1 {
		t.Fatalf("pending = %d after cancel, want 1", s.Pending())
	}

	// Cancelling again, or an unknown handle, is a quiet no-op.
	if err := s.Cancel(h1); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	if err := s.Cancel(reminder.Handle("ntf:9999")); err != nil {
		t.Fatalf("unknown cancel: %v", err)
	}
}

func TestFireDeliversEvent(t *testing.T) {
	t.Parallel()
	d := newCaptureDeliverer()
	s := New(Config{Enabled: true}, d, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	want := futureEvent(42, 20*time.Millisecond)
	if _, err := s.Schedule(want); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	select {
	case got := <-d.ch:
		if got.TaskID != want.TaskID || got.Tier != want.Tier {
			t.Fatalf("delivered (%d, %s), want (%d, %s)", got.TaskID, got.Tier, want.TaskID, want.Tier)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
	if s.Pending() != 0 {
		t.Fatalf("pending = %d after fire, want 0", s.Pending())
	}
}

func TestCancelledEventDoesNotFire(t *testing.T) {
	t.Parallel()
	d := newCaptureDeliverer()
	s := New(Config{Enabled: true}, d, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	h, err := s.Schedule(futureEvent(1, 30*time.Millisecond))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := s.Cancel(h); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	select {
	case ev := <-d.ch:
		t.Fatalf("cancelled event fired: task %d", ev.TaskID)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestStopDropsPendingTimers(t *testing.T) {
	t.Parallel()
	d := newCaptureDeliverer()
	s := New(Config{Enabled: true}, d, logx.Nop(), nil)
	s.Start(context.Background())

	for i := int64(1); i <= 3; i++ {
		if _, err := s.Schedule(futureEvent(i, time.Hour)); err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}
	s.Stop(context.Background())
	if s.Pending() != 0 {
		t.Fatalf("pending = %d after stop, want 0", s.Pending())
	}
}

func TestApplyTogglesPermission(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, newCaptureDeliverer(), logx.Nop(), nil)

	if s.CheckPermission() {
		t.Fatal("permission reported while disabled")
	}
	s.Apply(Config{Enabled: true})
	if !s.CheckPermission() {
		t.Fatal("permission not reported after enable")
	}
	if _, err := s.Schedule(futureEvent(1, time.Hour)); err != nil {
		t.Fatalf("schedule after enable: %v", err)
	}
}
