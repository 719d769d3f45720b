// Package telegram wraps telebot behind the small surface the rest of
// the app needs: start/stop the poller, send to the configured chat,
// and register command handlers.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "remindbot/pkg/logx"
)

type Config struct {
	Token       string
	ChatID      int64
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	runWG     sync.WaitGroup

	// telebot's Stop is a synchronous channel send consumed by a running
	// Start; a second send would block forever. stopOnce keeps shutdown
	// on a single path no matter how many triggers race.
	stopOnce sync.Once
	stopFn   func()
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	a.stopFn = b.Stop
	return a, nil
}

func (a *Adapter) stopBot() {
	a.stopOnce.Do(func() {
		if a.stopFn != nil {
			a.stopFn()
		}
	})
}

// ChatID returns the single chat this bot serves.
func (a *Adapter) ChatID() int64 { return a.cfg.ChatID }

// Handle registers a telebot handler. Must be called before Start.
func (a *Adapter) Handle(endpoint any, fn tele.HandlerFunc) {
	a.bot.Handle(endpoint, fn)
}

func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(1)
	a.runMu.Unlock()

	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.stopBot()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop()
	}()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	go a.stopBot()

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Grace window: keep shutdown snappy even if getUpdates long-poll
	// is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

// SendText sends a plain-text message to the configured chat.
func (a *Adapter) SendText(ctx context.Context, text string) error {
	if a.cfg.ChatID == 0 {
		return errors.New("telegram chat_id is not configured")
	}
	_, err := a.bot.Send(&tele.Chat{ID: a.cfg.ChatID}, text)
	return err
}
