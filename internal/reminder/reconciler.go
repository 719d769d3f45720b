package reminder

import (
	"sync"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/task"
	logx "remindbot/pkg/logx"
)

// Reconciler keeps the platform scheduler in sync with the current
// task collection. It owns the ledger: the only record of which
// handles were asked for per task. The scheduler's true state is
// never read back; the ledger is trusted as-is.
//
// The ledger lives for the process lifetime only. On restart both the
// ledger and the in-process scheduler start empty, so the two stay
// consistent by construction.
type Reconciler struct {
	mu sync.Mutex

	sched Scheduler
	log   logx.Logger
	bus   eventbus.Bus
	now   func() time.Time

	ledger map[int64][]Handle
}

// Result summarizes one reconciliation pass.
type Result struct {
	Scheduled int // schedule calls that succeeded
	Cancelled int // cancel calls issued
	Skipped   int // events dropped (scheduler rejection or permission off)
}

func NewReconciler(sched Scheduler, log logx.Logger, bus eventbus.Bus) *Reconciler {
	return &Reconciler{
		sched:  sched,
		log:    log,
		bus:    bus,
		now:    time.Now,
		ledger: map[int64][]Handle{},
	}
}

// Reconcile diffs the given task collection against the ledger and
// issues the minimal schedule/cancel calls.
//
// Failure containment: no error ever propagates to the caller. A
// failed schedule skips that one event (siblings proceed); a failed
// cancel is logged and the ledger entry is removed anyway (a dangling
// notification that later fires for a gone task is accepted).
//
// Tasks present in both the ledger and the collection are left
// untouched — a changed reminder instant on an already-scheduled task
// is deliberately not detected here.
func (r *Reconciler) Reconcile(tasks []task.Task) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res Result
	now := r.now()

	active := make(map[int64]task.Task, len(tasks))
	for _, t := range tasks {
		if t.HasActiveReminder() {
			active[t.ID] = t
		}
	}

	// Cancel pass: ledger entries whose task is gone, completed, or no
	// longer has an active reminder.
	for id, handles := range r.ledger {
		if _, ok := active[id]; ok {
			continue
		}
		for _, h := range handles {
			if err := r.sched.Cancel(h); err != nil {
				// Best-effort cleanup; the entry is removed regardless.
				r.log.Warn("reminder cancel failed",
					logx.Int64("task", id), logx.String("handle", string(h)), logx.Err(err))
			}
			res.Cancelled++
		}
		delete(r.ledger, id)
		r.publish(eventbus.TypeReminderCancelled, ScheduledEvent{TaskID: id})
		r.log.Debug("reminders cancelled", logx.Int64("task", id), logx.Int("handles", len(handles)))
	}

	// Schedule pass. When permission is off every schedule call is
	// skipped and no ledger entries are created, so the same tasks are
	// naturally retried on the next pass.
	if !r.sched.CheckPermission() {
		if n := r.missing(active); n > 0 {
			res.Skipped += n
			r.log.Debug("schedule pass skipped (permission denied)", logx.Int("tasks", n))
		}
		return res
	}

	for id, t := range active {
		if _, ok := r.ledger[id]; ok {
			continue
		}
		events := Plan(t, now)
		handles := make([]Handle, 0, len(events))
		for _, ev := range events {
			h, err := r.sched.Schedule(ev)
			if err != nil {
				// One event failing must not abort its siblings.
				res.Skipped++
				r.publish(eventbus.TypeReminderSkipped, ScheduledEvent{
					TaskID: id, Tier: ev.Tier, Seq: ev.Seq, FireAt: ev.FireAt, Reason: err.Error(),
				})
				r.log.Warn("reminder schedule failed",
					logx.Int64("task", id), logx.String("tier", string(ev.Tier)),
					logx.Time("fire_at", ev.FireAt), logx.Err(err))
				continue
			}
			handles = append(handles, h)
			res.Scheduled++
			r.publish(eventbus.TypeReminderScheduled, ScheduledEvent{
				TaskID: id, Tier: ev.Tier, Seq: ev.Seq, Handle: h, FireAt: ev.FireAt,
			})
		}
		// A partial (even empty) set still claims the ledger slot; the
		// failed remainder is not retried while the entry exists.
		r.ledger[id] = handles
		r.log.Debug("reminders scheduled",
			logx.Int64("task", id), logx.Int("events", len(events)), logx.Int("handles", len(handles)))
	}

	return res
}

// missing counts active tasks without a ledger entry. Call with mu held.
func (r *Reconciler) missing(active map[int64]task.Task) int {
	n := 0
	for id := range active {
		if _, ok := r.ledger[id]; !ok {
			n++
		}
	}
	return n
}

// Tracked reports whether a task currently holds a ledger entry.
func (r *Reconciler) Tracked(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ledger[id]
	return ok
}

// Handles returns a copy of the handles recorded for a task.
func (r *Reconciler) Handles(id int64) []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Handle(nil), r.ledger[id]...)
}

func (r *Reconciler) publish(typ string, data ScheduledEvent) {
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}
