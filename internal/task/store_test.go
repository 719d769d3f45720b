package task

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "tasks.db"),
		BusyTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{}); err == nil {
		t.Fatal("open with empty path should fail")
	}
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "  buy milk  ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id <= 0 {
		t.Fatalf("id = %d, want positive", id)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "buy milk" {
		t.Fatalf("title = %q, want trimmed %q", got.Title, "buy milk")
	}
	if got.Done || got.ReminderEnabled || got.RemindAt != nil {
		t.Fatalf("new task = %+v, want open with no reminder", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}
}

func TestCreateRejectsEmptyTitle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if _, err := s.Create(context.Background(), "   "); err == nil {
		t.Fatal("blank title should be rejected")
	}
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if _, err := s.Get(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListOpenExcludesDone(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	a, _ := s.Create(ctx, "a")
	b, _ := s.Create(ctx, "b")
	c, _ := s.Create(ctx, "c")
	if err := s.SetDone(ctx, b, true); err != nil {
		t.Fatalf("set done: %v", err)
	}

	open, err := s.ListOpen(ctx)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 2 || open[0].ID != a || open[1].ID != c {
		t.Fatalf("open = %+v, want tasks %d and %d in id order", open, a, c)
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all = %d tasks, want 3", len(all))
	}
	if !all[1].Done {
		t.Fatal("done task not marked in ListAll")
	}
}

func TestSetAndClearReminder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	id, _ := s.Create(ctx, "call dentist")
	at := time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC)

	if err := s.SetReminder(ctx, id, at); err != nil {
		t.Fatalf("set reminder: %v", err)
	}
	got, _ := s.Get(ctx, id)
	if !got.ReminderEnabled || got.RemindAt == nil {
		t.Fatalf("task = %+v, want active reminder", got)
	}
	if !got.RemindAt.Equal(at) {
		t.Fatalf("remind at = %v, want %v", got.RemindAt, at)
	}
	if !got.HasActiveReminder() {
		t.Fatal("HasActiveReminder = false, want true")
	}

	if err := s.ClearReminder(ctx, id); err != nil {
		t.Fatalf("clear reminder: %v", err)
	}
	got, _ = s.Get(ctx, id)
	if got.ReminderEnabled || got.RemindAt != nil {
		t.Fatalf("task = %+v, want reminder fully cleared", got)
	}
}

func TestSetReminderRejectsZeroInstant(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	id, _ := s.Create(ctx, "x")
	if err := s.SetReminder(ctx, id, time.Time{}); err == nil {
		t.Fatal("zero instant should be rejected")
	}
}

func TestRename(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	id, _ := s.Create(ctx, "old")
	if err := s.Rename(ctx, id, "new"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, _ := s.Get(ctx, id)
	if got.Title != "new" {
		t.Fatalf("title = %q, want %q", got.Title, "new")
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	id, _ := s.Create(ctx, "gone soon")
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: err = %v, want ErrNotFound", err)
	}
}

func TestUpdatesOnMissingTask(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		op   func() error
	}{
		{"set done", func() error { return s.SetDone(ctx, 404, true) }},
		{"rename", func() error { return s.Rename(ctx, 404, "x") }},
		{"set reminder", func() error { return s.SetReminder(ctx, 404, time.Now().Add(time.Hour)) }},
		{"clear reminder", func() error { return s.ClearReminder(ctx, 404) }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
		})
	}
}
