package task

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures the sqlite-backed store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Store provides SQLite-backed persistence for tasks.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the task database and runs migrations.
func Open(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("open store: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts a new open task and returns its ID.
func (s *Store) Create(ctx context.Context, title string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("create task: store is nil")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, fmt.Errorf("create task: title is empty")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (title, done, reminder_enabled, remind_at, created_at, updated_at)
		 VALUES (?, 0, 0, NULL, ?, ?)`,
		title, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("create task: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create task: last insert id: %w", err)
	}
	return id, nil
}

// Get returns a single task by id.
func (s *Store) Get(ctx context.Context, id int64) (Task, error) {
	if s == nil || s.db == nil {
		return Task{}, fmt.Errorf("get task: store is nil")
	}
	if id <= 0 {
		return Task{}, fmt.Errorf("get task: invalid task ID")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, done, reminder_enabled, remind_at, created_at, updated_at
		 FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListOpen returns all not-done tasks ordered by id.
// This is the full collection the reminder engine reconciles against.
func (s *Store) ListOpen(ctx context.Context) ([]Task, error) {
	return s.list(ctx, `SELECT id, title, done, reminder_enabled, remind_at, created_at, updated_at
		FROM tasks WHERE done = 0 ORDER BY id ASC`)
}

// ListAll returns every task, open and done, ordered by id.
func (s *Store) ListAll(ctx context.Context) ([]Task, error) {
	return s.list(ctx, `SELECT id, title, done, reminder_enabled, remind_at, created_at, updated_at
		FROM tasks ORDER BY id ASC`)
}

func (s *Store) list(ctx context.Context, query string) ([]Task, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("list tasks: store is nil")
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tasks: query: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: rows: %w", err)
	}
	return tasks, nil
}

// SetDone marks a task done (or re-opens it).
func (s *Store) SetDone(ctx context.Context, id int64, done bool) error {
	v := 0
	if done {
		v = 1
	}
	return s.update(ctx, "set done", id, `UPDATE tasks SET done = ?, updated_at = ? WHERE id = ?`,
		v, nowStr(), id)
}

// Rename updates a task's title.
func (s *Store) Rename(ctx context.Context, id int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("rename task: title is empty")
	}
	return s.update(ctx, "rename", id, `UPDATE tasks SET title = ?, updated_at = ? WHERE id = ?`,
		title, nowStr(), id)
}

// SetReminder enables the reminder and sets its instant.
func (s *Store) SetReminder(ctx context.Context, id int64, at time.Time) error {
	if at.IsZero() {
		return fmt.Errorf("set reminder: instant is zero")
	}
	return s.update(ctx, "set reminder", id,
		`UPDATE tasks SET reminder_enabled = 1, remind_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), nowStr(), id)
}

// ClearReminder disables the reminder. The instant is cleared too so a
// later re-enable cannot resurrect a stale time.
func (s *Store) ClearReminder(ctx context.Context, id int64) error {
	return s.update(ctx, "clear reminder", id,
		`UPDATE tasks SET reminder_enabled = 0, remind_at = NULL, updated_at = ? WHERE id = ?`,
		nowStr(), id)
}

// Delete removes a task permanently.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("delete task: store is nil")
	}
	if id <= 0 {
		return fmt.Errorf("delete task: invalid task ID")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) update(ctx context.Context, op string, id int64, query string, args ...any) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("%s task: store is nil", op)
	}
	if id <= 0 {
		return fmt.Errorf("%s task: invalid task ID", op)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s task: update: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s task: rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t            Task
		done         int
		enabled      int
		remindAtStr  sql.NullString
		createdAtStr string
		updatedAtStr string
	)
	if err := row.Scan(&t.ID, &t.Title, &done, &enabled, &remindAtStr, &createdAtStr, &updatedAtStr); err != nil {
		return Task{}, err
	}
	t.Done = done != 0
	t.ReminderEnabled = enabled != 0

	var err error
	t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return Task{}, fmt.Errorf("parse created_at: %w", err)
	}
	t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr)
	if err != nil {
		return Task{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if remindAtStr.Valid && strings.TrimSpace(remindAtStr.String) != "" {
		at, err := time.Parse(time.RFC3339Nano, remindAtStr.String)
		if err != nil {
			return Task{}, fmt.Errorf("parse remind_at: %w", err)
		}
		t.RemindAt = &at
	}
	return t, nil
}

func nowStr() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
