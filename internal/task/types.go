// Package task owns the persistent to-do task records.
package task

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("task not found")

// Task is a to-do item with optional reminder scheduling.
//
// RemindAt is only meaningful while ReminderEnabled is true; consumers
// must treat a task with a stale instant but enabled=false as having
// no reminder at all.
type Task struct {
	ID              int64
	Title           string
	Done            bool
	ReminderEnabled bool
	RemindAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasActiveReminder reports whether the task should have notifications
// scheduled: reminder toggled on and an instant set.
func (t Task) HasActiveReminder() bool {
	return t.ReminderEnabled && t.RemindAt != nil
}
