// Package bot wires the Telegram command surface: every task mutation
// goes through the store and then kicks the reminder engine so the
// scheduled notifications follow the collection.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/task"
	"remindbot/internal/telegram"
	logx "remindbot/pkg/logx"
)

// Engine is the part of the reminder engine the bot needs.
type Engine interface {
	Kick()
}

// Store is the task persistence surface the commands drive.
type Store interface {
	Create(ctx context.Context, title string) (int64, error)
	Get(ctx context.Context, id int64) (task.Task, error)
	ListOpen(ctx context.Context) ([]task.Task, error)
	ListAll(ctx context.Context) ([]task.Task, error)
	SetDone(ctx context.Context, id int64, done bool) error
	SetReminder(ctx context.Context, id int64, at time.Time) error
	ClearReminder(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

type Router struct {
	store  Store
	engine Engine
	log    logx.Logger
	chatID int64
}

func NewRouter(store Store, engine Engine, log logx.Logger) *Router {
	return &Router{store: store, engine: engine, log: log}
}

// Register installs all command handlers on the adapter.
// Must run before the adapter starts polling.
func (r *Router) Register(a *telegram.Adapter) {
	r.chatID = a.ChatID()

	a.Handle("/start", r.guard(r.handleHelp))
	a.Handle("/help", r.guard(r.handleHelp))
	a.Handle("/add", r.guard(r.handleAdd))
	a.Handle("/list", r.guard(r.handleList))
	a.Handle("/done", r.guard(r.handleDone))
	a.Handle("/del", r.guard(r.handleDelete))
	a.Handle("/remind", r.guard(r.handleRemind))
	a.Handle("/noremind", r.guard(r.handleNoRemind))
	a.Handle("/open", r.guard(r.handleOpen))
	// /open_<id> arrives as an unknown command, i.e. plain text.
	a.Handle(tele.OnText, r.guard(r.handleText))
}

// guard restricts commands to the configured chat.
func (r *Router) guard(fn tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if chat := c.Chat(); chat == nil || (r.chatID != 0 && chat.ID != r.chatID) {
			return nil
		}
		return fn(c)
	}
}

func (r *Router) handleHelp(c tele.Context) error {
	return c.Send(strings.Join([]string{
		"/add <title> — add a task",
		"/list — list tasks",
		"/done <id> — complete a task",
		"/del <id> — delete a task",
		"/remind <id> <when> — set a reminder (RFC3339, \"2006-01-02 15:04\", or \"in 2h30m\")",
		"/noremind <id> — disable a task's reminder",
		"/open <id> — show a task",
	}, "\n"))
}

func (r *Router) handleAdd(c tele.Context) error {
	title := strings.TrimSpace(c.Message().Payload)
	if title == "" {
		return c.Send("usage: /add <title>")
	}
	ctx := reqCtx()
	id, err := r.store.Create(ctx, title)
	if err != nil {
		r.log.Error("add failed", logx.Err(err))
		return c.Send("could not add the task")
	}
	r.engine.Kick()
	return c.Send(fmt.Sprintf("added #%d: %s", id, title))
}

func (r *Router) handleList(c tele.Context) error {
	ctx := reqCtx()
	tasks, err := r.store.ListAll(ctx)
	if err != nil {
		r.log.Error("list failed", logx.Err(err))
		return c.Send("could not list tasks")
	}
	if len(tasks) == 0 {
		return c.Send("no tasks yet — /add <title>")
	}
	var b strings.Builder
	for _, t := range tasks {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(formatLine(t))
	}
	return c.Send(b.String())
}

func (r *Router) handleDone(c tele.Context) error {
	id, err := parseID(c.Message().Payload)
	if err != nil {
		return c.Send("usage: /done <id>")
	}
	ctx := reqCtx()
	if err := r.store.SetDone(ctx, id, true); err != nil {
		return r.replyStoreErr(c, "done", id, err)
	}
	r.engine.Kick()
	return c.Send(fmt.Sprintf("done #%d", id))
}

func (r *Router) handleDelete(c tele.Context) error {
	id, err := parseID(c.Message().Payload)
	if err != nil {
		return c.Send("usage: /del <id>")
	}
	ctx := reqCtx()
	if err := r.store.Delete(ctx, id); err != nil {
		return r.replyStoreErr(c, "delete", id, err)
	}
	r.engine.Kick()
	return c.Send(fmt.Sprintf("deleted #%d", id))
}

func (r *Router) handleRemind(c tele.Context) error {
	fields := strings.Fields(c.Message().Payload)
	if len(fields) < 2 {
		return c.Send("usage: /remind <id> <when>")
	}
	id, err := parseID(fields[0])
	if err != nil {
		return c.Send("usage: /remind <id> <when>")
	}
	at, err := ParseWhen(strings.Join(fields[1:], " "), time.Now())
	if err != nil {
		return c.Send(err.Error())
	}
	if !at.After(time.Now()) {
		return c.Send("the reminder time must be in the future")
	}
	ctx := reqCtx()
	if err := r.store.SetReminder(ctx, id, at); err != nil {
		return r.replyStoreErr(c, "remind", id, err)
	}
	r.engine.Kick()
	return c.Send(fmt.Sprintf("reminder for #%d set to %s", id, at.Local().Format("2006-01-02 15:04")))
}

func (r *Router) handleNoRemind(c tele.Context) error {
	id, err := parseID(c.Message().Payload)
	if err != nil {
		return c.Send("usage: /noremind <id>")
	}
	ctx := reqCtx()
	if err := r.store.ClearReminder(ctx, id); err != nil {
		return r.replyStoreErr(c, "noremind", id, err)
	}
	r.engine.Kick()
	return c.Send(fmt.Sprintf("reminder for #%d disabled", id))
}

func (r *Router) handleOpen(c tele.Context) error {
	id, err := parseID(c.Message().Payload)
	if err != nil {
		return c.Send("usage: /open <id>")
	}
	return r.open(c, id)
}

// handleText catches /open_<id> deep commands from delivered
// notifications. Anything else is ignored.
func (r *Router) handleText(c tele.Context) error {
	text := strings.TrimSpace(c.Text())
	rest, ok := strings.CutPrefix(text, "/open_")
	if !ok {
		return nil
	}
	id, err := parseID(rest)
	if err != nil {
		return nil
	}
	return r.open(c, id)
}

// open shows the task a notification payload points at. A task that no
// longer exists is a silent no-op: the notification simply outlived it.
func (r *Router) open(c tele.Context, id int64) error {
	ctx := reqCtx()
	t, err := r.store.Get(ctx, id)
	if errors.Is(err, task.ErrNotFound) {
		return nil
	}
	if err != nil {
		r.log.Error("open failed", logx.Int64("task", id), logx.Err(err))
		return nil
	}
	return c.Send(formatTask(t))
}

func (r *Router) replyStoreErr(c tele.Context, op string, id int64, err error) error {
	if errors.Is(err, task.ErrNotFound) {
		return c.Send(fmt.Sprintf("no task #%d", id))
	}
	r.log.Error(op+" failed", logx.Int64("task", id), logx.Err(err))
	return c.Send("something went wrong, see the logs")
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}

// ParseWhen parses a reminder time: "in <duration>", RFC3339, or a
// local "2006-01-02 15:04".
func ParseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "in "); ok {
		d, err := time.ParseDuration(strings.ReplaceAll(rest, " ", ""))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid duration %q", rest)
		}
		if d <= 0 {
			return time.Time{}, fmt.Errorf("duration must be positive")
		}
		return now.Add(d), nil
	}
	if at, err := time.Parse(time.RFC3339, s); err == nil {
		return at, nil
	}
	if at, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local); err == nil {
		return at, nil
	}
	return time.Time{}, fmt.Errorf("could not parse %q (try RFC3339, \"2006-01-02 15:04\", or \"in 2h30m\")", s)
}

func formatLine(t task.Task) string {
	mark := "◻"
	if t.Done {
		mark = "✅"
	}
	line := fmt.Sprintf("%s #%d %s", mark, t.ID, t.Title)
	if t.HasActiveReminder() {
		line += " ⏰ " + t.RemindAt.Local().Format("2006-01-02 15:04")
	}
	return line
}

func formatTask(t task.Task) string {
	var b strings.Builder
	b.WriteString(formatLine(t))
	b.WriteString("\ncreated " + t.CreatedAt.Local().Format("2006-01-02 15:04"))
	if t.HasActiveReminder() {
		b.WriteString("\nreminds at " + t.RemindAt.Local().Format("2006-01-02 15:04"))
	}
	return b.String()
}

func reqCtx() context.Context {
	return context.Background()
}
