package reminder

import (
	"context"
	"sync"
	"time"

	"remindbot/internal/task"
	logx "remindbot/pkg/logx"
)

// TaskSource supplies the full current task collection on every
// reconciliation pass; the engine performs no partial reads.
type TaskSource interface {
	ListOpen(ctx context.Context) ([]task.Task, error)
}

// Engine serializes reconciliation passes.
//
// The ledger is mutated non-atomically across a pass's schedule and
// cancel calls, so two passes must never overlap. All triggers — task
// mutations, startup, the periodic sweep — funnel through Kick(),
// which a single consumer goroutine drains. Kick is non-blocking and
// coalescing: any number of kicks while a pass runs collapse into one
// follow-up pass over the then-current collection.
type Engine struct {
	source TaskSource
	rec    *Reconciler
	log    logx.Logger

	mu       sync.Mutex
	kick     chan struct{}
	stopDone chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
}

func NewEngine(source TaskSource, rec *Reconciler, log logx.Logger) *Engine {
	return &Engine{source: source, rec: rec, log: log}
}

func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.kick != nil {
		e.mu.Unlock()
		return
	}
	e.kick = make(chan struct{}, 1)
	e.stopDone = make(chan struct{})
	e.runCtx, e.runCancel = context.WithCancel(ctx)
	kick := e.kick
	done := e.stopDone
	runCtx := e.runCtx
	e.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-runCtx.Done():
				return
			case <-kick:
				e.runPass(runCtx)
			}
		}
	}()
	e.log.Info("reminder engine started")
}

func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	cancel := e.runCancel
	done := e.stopDone
	e.kick = nil
	e.runCancel = nil
	e.runCtx = nil
	e.stopDone = nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
	e.log.Info("reminder engine stopped")
}

// Kick requests a reconciliation pass. Safe from any goroutine; a
// no-op while the engine is stopped.
func (e *Engine) Kick() {
	e.mu.Lock()
	kick := e.kick
	e.mu.Unlock()
	if kick == nil {
		return
	}
	select {
	case kick <- struct{}{}:
	default:
		// A pass is already pending; it will see the latest state.
	}
}

func (e *Engine) runPass(ctx context.Context) {
	start := time.Now()

	lctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	tasks, err := e.source.ListOpen(lctx)
	cancel()
	if err != nil {
		// The next kick retries with a fresh read.
		e.log.Error("reconcile pass aborted: task list failed", logx.Err(err))
		return
	}

	res := e.rec.Reconcile(tasks)
	if res.Scheduled > 0 || res.Cancelled > 0 || res.Skipped > 0 {
		e.log.Info("reconcile pass",
			logx.Int("tasks", len(tasks)),
			logx.Int("scheduled", res.Scheduled),
			logx.Int("cancelled", res.Cancelled),
			logx.Int("skipped", res.Skipped),
			logx.Duration("took", time.Since(start)))
	}
}
