package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"remindbot/internal/task"
	logx "remindbot/pkg/logx"
)

type memSource struct {
	mu    sync.Mutex
	tasks []task.Task
	calls int
}

func (m *memSource) ListOpen(_ context.Context) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return append([]task.Task(nil), m.tasks...), nil
}

func (m *memSource) set(tasks []task.Task) {
	m.mu.Lock()
	m.tasks = tasks
	m.mu.Unlock()
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEngineKickRunsPass(t *testing.T) {
	t.Parallel()
	f := newFakeScheduler()
	rec := NewReconciler(f, logx.Nop(), nil)
	src := &memSource{}
	src.set([]task.Task{activeTask(1, "a", time.Now().Add(3*time.Hour))})

	e := NewEngine(src, rec, logx.Nop())
	e.Start(context.Background())
	defer e.Stop(context.Background())

	e.Kick()
	waitFor(t, func() bool { return rec.Tracked(1) }, "task 1 to be scheduled")
}

func TestEngineFollowsCollectionChanges(t *testing.T) {
	t.Parallel()
	f := newFakeScheduler()
	rec := NewReconciler(f, logx.Nop(), nil)
	src := &memSource{}
	src.set([]task.Task{activeTask(1, "a", time.Now().Add(3*time.Hour))})

	e := NewEngine(src, rec, logx.Nop())
	e.Start(context.Background())
	defer e.Stop(context.Background())

	e.Kick()
	waitFor(t, func() bool { return rec.Tracked(1) }, "task 1 to be scheduled")

	src.set(nil)
	e.Kick()
	waitFor(t, func() bool { return !rec.Tracked(1) }, "task 1 to be cancelled")
}

func TestEngineKickAfterStopIsNoop(t *testing.T) {
	t.Parallel()
	f := newFakeScheduler()
	rec := NewReconciler(f, logx.Nop(), nil)
	src := &memSource{}

	e := NewEngine(src, rec, logx.Nop())
	e.Start(context.Background())
	e.Stop(context.Background())

	before := func() int {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls
	}()
	e.Kick()
	time.Sleep(50 * time.Millisecond)

	src.mu.Lock()
	after := src.calls
	src.mu.Unlock()
	if after != before {
		t.Fatalf("pass ran after stop: %d calls, was %d", after, before)
	}
}
