// Package reminder computes the desired notification timeline for
// tasks with reminders and keeps the platform notification scheduler
// reconciled with the current task collection.
package reminder

import (
	"errors"
	"time"
)

// Tier classifies a notification event within a task's timeline.
type Tier string

const (
	TierAdvance24h Tier = "advance-24h"
	TierAdvance12h Tier = "advance-12h"
	TierAdvance6h  Tier = "advance-6h"
	TierAtTime     Tier = "at-time"
	TierFollowUp   Tier = "follow-up"
)

// followUpCount and followUpStep define the bounded follow-up burst
// after the at-time alert: five notifications, two minutes apart.
const (
	followUpCount = 5
	followUpStep  = 2 * time.Minute
)

// Event is one discrete alert derived from a task's reminder.
//
// TaskID and Title form the payload: a fired notification must be
// routable back to its owning task.
type Event struct {
	TaskID int64
	Tier   Tier
	Seq    int // 1-based within follow-up, 0 otherwise

	// FireAt is the absolute fire instant; Offset is the same thing
	// relative to the plan's reference time.
	FireAt time.Time
	Offset time.Duration

	Title string
	Body  string
}

// Handle identifies one accepted scheduled notification. It is opaque
// to this package and valid only until cancelled or fired.
type Handle string

var (
	// ErrPermissionDenied is returned by a Scheduler when notification
	// delivery is not currently permitted.
	ErrPermissionDenied = errors.New("notification permission denied")

	// ErrPastFire is returned by a Scheduler for an event whose fire
	// instant is not in the future.
	ErrPastFire = errors.New("fire instant not in the future")
)

// Scheduler is the platform notification scheduler boundary.
//
// Schedule must reject (return an error, never panic) events with a
// non-future fire instant or while permission is off. Cancel is
// idempotent: cancelling an unknown, fired, or already-cancelled
// handle is not an error.
type Scheduler interface {
	Schedule(ev Event) (Handle, error)
	Cancel(h Handle) error
	CheckPermission() bool
}

// ScheduledEvent is the bus payload for reminder.* events.
type ScheduledEvent struct {
	TaskID int64     `json:"task_id"`
	Tier   Tier      `json:"tier,omitempty"`
	Seq    int       `json:"seq,omitempty"`
	Handle Handle    `json:"handle,omitempty"`
	FireAt time.Time `json:"fire_at,omitempty"`
	Reason string    `json:"reason,omitempty"`
}
