// Package deliver pushes fired notification events out to the chat,
// with rate limiting and bounded retries.
package deliver

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// Sender is the outbound message boundary (Telegram in production).
type Sender interface {
	SendText(ctx context.Context, text string) error
}

// Config controls delivery pacing and retries.
//
// Zero values fall back to: 3 msg/s, 2 retries, 500ms base backoff,
// 10s max backoff.
type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	} else if c.RetryMax == 0 {
		c.RetryMax = 2
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	return c
}

// Dispatcher serializes nothing and blocks nobody upstream for long:
// the scheduler calls Deliver from its timer goroutines; the limiter
// paces sends across them.
type Dispatcher struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender Sender
	log    logx.Logger
	bus    eventbus.Bus
}

// SentEvent is the bus payload for notify.sent / notify.failed.
type SentEvent struct {
	TaskID int64         `json:"task_id"`
	Tier   reminder.Tier `json:"tier"`
	Error  string        `json:"error,omitempty"`
}

func NewDispatcher(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	d := &Dispatcher{sender: sender, log: log, bus: bus}
	d.Apply(cfg)
	return d
}

func (d *Dispatcher) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	d.mu.Lock()
	d.cfg = cfg
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	d.mu.Unlock()
}

// Deliver sends one fired event, retrying transient failures with
// jittered exponential backoff.
func (d *Dispatcher) Deliver(ctx context.Context, ev reminder.Event) error {
	d.mu.Lock()
	cfg := d.cfg
	lim := d.limiter
	d.mu.Unlock()

	text := Format(ev)

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := d.sender.SendText(callCtx, text)
		cancel()
		if err == nil {
			d.publish(eventbus.TypeNotifySent, SentEvent{TaskID: ev.TaskID, Tier: ev.Tier})
			return nil
		}
		lastErr = err
		d.log.Debug("notification send failed",
			logx.Int64("task", ev.TaskID), logx.Int("attempt", attempt),
			logx.Int("max", maxAttempts), logx.Err(err))

		if attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return ctx.Err()
		}
	}

	d.publish(eventbus.TypeNotifyFailed, SentEvent{TaskID: ev.TaskID, Tier: ev.Tier, Error: lastErr.Error()})
	return fmt.Errorf("deliver: %w", lastErr)
}

func (d *Dispatcher) publish(typ string, data SentEvent) {
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

// Format renders the outgoing message text. The trailing /open_<id>
// command is the tap-routing payload: acting on it routes back to the
// owning task.
func Format(ev reminder.Event) string {
	prefix := "⏰"
	if ev.Tier == reminder.TierFollowUp {
		prefix = "🔁"
	}
	return fmt.Sprintf("%s %s\n/open_%d", prefix, ev.Body, ev.TaskID)
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1; the delay paces the NEXT attempt.
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}
