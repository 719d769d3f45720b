// Package sched is the in-process notification scheduler: it accepts
// notification events, holds a one-shot timer per accepted event, and
// hands fired events to the delivery dispatcher.
//
// Timers are process-lifetime only. That matches the reconciler's
// ledger: both start empty after a restart.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// Deliverer receives events whose fire instant has arrived.
type Deliverer interface {
	Deliver(ctx context.Context, ev reminder.Event) error
}

type Config struct {
	// Enabled gates all scheduling; while false, CheckPermission
	// reports denied and Schedule rejects.
	Enabled bool
}

// Service implements reminder.Scheduler on top of handle-mapped
// time.AfterFunc timers. Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	cfg     Config
	log     logx.Logger
	bus     eventbus.Bus
	deliver Deliverer

	seq    uint64
	timers map[reminder.Handle]*time.Timer
	events map[reminder.Handle]reminder.Event

	runCtx    context.Context
	runCancel context.CancelFunc
}

// FiredEvent is the bus payload for notify.fired.
type FiredEvent struct {
	TaskID int64         `json:"task_id"`
	Tier   reminder.Tier `json:"tier"`
	Seq    int           `json:"seq,omitempty"`
	At     time.Time     `json:"at"`
}

func New(cfg Config, deliver Deliverer, log logx.Logger, bus eventbus.Bus) *Service {
	return &Service{
		cfg:     cfg,
		deliver: deliver,
		log:     log,
		bus:     bus,
		timers:  map[reminder.Handle]*time.Timer{},
		events:  map[reminder.Handle]reminder.Event{},
	}
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.runCtx == nil {
		s.runCtx, s.runCancel = context.WithCancel(ctx)
	}
	s.mu.Unlock()
}

// Stop cancels every pending timer. Events already handed to the
// deliverer are not interrupted beyond the run context being cancelled.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.runCancel
	s.runCancel = nil
	s.runCtx = nil
	n := len(s.timers)
	for h, t := range s.timers {
		_ = t.Stop()
		delete(s.timers, h)
		delete(s.events, h)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if n > 0 {
		s.log.Info("pending notifications dropped on stop", logx.Int("count", n))
	}
}

// CheckPermission reports whether delivery is currently permitted.
func (s *Service) CheckPermission() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && s.deliver != nil
}

// Schedule accepts a future-dated event and returns its handle.
func (s *Service) Schedule(ev reminder.Event) (reminder.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled || s.deliver == nil {
		return "", reminder.ErrPermissionDenied
	}
	delay := time.Until(ev.FireAt)
	if delay <= 0 {
		return "", reminder.ErrPastFire
	}

	s.seq++
	h := reminder.Handle(fmt.Sprintf("ntf:%d", s.seq))
	s.events[h] = ev
	s.timers[h] = time.AfterFunc(delay, func() { s.fire(h) })
	return h, nil
}

// Cancel stops the event's timer. Cancelling an unknown, fired, or
// already-cancelled handle is a no-op.
func (s *Service) Cancel(h reminder.Handle) error {
	s.mu.Lock()
	t, ok := s.timers[h]
	if ok {
		delete(s.timers, h)
		delete(s.events, h)
	}
	s.mu.Unlock()

	if ok {
		_ = t.Stop()
	}
	return nil
}

// Pending returns the number of not-yet-fired scheduled events.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Service) fire(h reminder.Handle) {
	s.mu.Lock()
	ev, ok := s.events[h]
	if !ok {
		// Cancelled between the timer firing and this callback.
		s.mu.Unlock()
		return
	}
	delete(s.timers, h)
	delete(s.events, h)
	ctx := s.runCtx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeNotifyFired, Data: FiredEvent{
			TaskID: ev.TaskID, Tier: ev.Tier, Seq: ev.Seq, At: time.Now(),
		}})
	}

	if err := s.deliver.Deliver(ctx, ev); err != nil {
		s.log.Warn("notification delivery failed",
			logx.Int64("task", ev.TaskID), logx.String("tier", string(ev.Tier)), logx.Err(err))
	}
}
