package reminder

import (
	"fmt"
	"time"

	"remindbot/internal/task"
)

// advanceTiers pairs each advance horizon with its tier and body template.
var advanceTiers = []struct {
	tier    Tier
	horizon time.Duration
	body    func(title string) string
}{
	{TierAdvance24h, 24 * time.Hour, func(t string) string { return t + " is scheduled for tomorrow" }},
	{TierAdvance12h, 12 * time.Hour, func(t string) string { return t + " is due in 12 hours" }},
	{TierAdvance6h, 6 * time.Hour, func(t string) string { return t + " is due in 6 hours" }},
}

// Plan computes the full desired notification timeline for one task:
// advance warnings for long lead times, one at-time alert, and a
// bounded follow-up burst.
//
// Plan is pure. Its output depends only on the task and now; it never
// consults prior scheduling state. Callers diff its result against
// what they already scheduled.
//
// A task without an active reminder, or whose reminder instant is not
// strictly in the future, yields no events at all.
func Plan(t task.Task, now time.Time) []Event {
	if !t.HasActiveReminder() {
		return nil
	}
	lead := t.RemindAt.Sub(now)
	if lead <= 0 {
		// Past or immediate deadline: nothing is schedulable,
		// follow-ups included.
		return nil
	}

	events := make([]Event, 0, len(advanceTiers)+1+followUpCount)

	// Advance tiers are evaluated independently; each applies only
	// when the lead time exceeds its horizon, and the resulting offset
	// must itself still be in the future.
	for _, at := range advanceTiers {
		if lead <= at.horizon {
			continue
		}
		off := lead - at.horizon
		if off <= 0 {
			continue
		}
		events = append(events, Event{
			TaskID: t.ID,
			Tier:   at.tier,
			FireAt: now.Add(off),
			Offset: off,
			Title:  t.Title,
			Body:   at.body(t.Title),
		})
	}

	events = append(events, Event{
		TaskID: t.ID,
		Tier:   TierAtTime,
		FireAt: now.Add(lead),
		Offset: lead,
		Title:  t.Title,
		Body:   t.Title + " is due now",
	})

	for i := 1; i <= followUpCount; i++ {
		off := lead + time.Duration(i)*followUpStep
		events = append(events, Event{
			TaskID: t.ID,
			Tier:   TierFollowUp,
			Seq:    i,
			FireAt: now.Add(off),
			Offset: off,
			Title:  t.Title,
			Body:   fmt.Sprintf("%s is still pending (reminder %d/%d)", t.Title, i, followUpCount),
		})
	}

	return events
}
