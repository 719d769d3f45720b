// Package app wires configuration, storage, the reminder engine, the
// notification scheduler, and the Telegram surface into one lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/deliver"
	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/sched"
	"remindbot/internal/task"
	"remindbot/internal/telegram"
	logx "remindbot/pkg/logx"
)

const defaultSweep = "@every 5m"

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	bus        eventbus.Bus
	store      *task.Store
	adapter    *telegram.Adapter
	dispatcher *deliver.Dispatcher
	scheduler  *sched.Service
	engine     *reminder.Engine

	cron        *cron.Cron
	sweepSpec   string
	sweepEntry  cron.EntryID
	watchCancel context.CancelFunc
	watchWG     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validate(context.Background(), cfg); err != nil {
		return nil, err
	}
	mgr.SetValidator(validate)

	logSvc, log := logx.New(logConfig(cfg))
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log,
		bus:    eventbus.New(),
	}
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgMgr.Get()

	store, err := task.Open(task.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: mustDuration(cfg.Storage.BusyTimeout),
	})
	if err != nil {
		return err
	}
	a.store = store

	pollTimeout := mustDuration(cfg.Telegram.PollTimeout)
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		ChatID:      cfg.Telegram.ChatID,
		PollTimeout: pollTimeout,
	}, a.log.With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	a.adapter = adapter

	a.dispatcher = deliver.NewDispatcher(deliverConfig(cfg), adapter,
		a.log.With(logx.String("comp", "deliver")), a.bus)

	a.scheduler = sched.New(sched.Config{
		Enabled: cfg.Reminders.Enabled && cfg.Telegram.ChatID != 0,
	}, a.dispatcher, a.log.With(logx.String("comp", "sched")), a.bus)

	rec := reminder.NewReconciler(a.scheduler,
		a.log.With(logx.String("comp", "reconciler")), a.bus)
	a.engine = reminder.NewEngine(store, rec,
		a.log.With(logx.String("comp", "engine")))

	router := bot.NewRouter(store, a.engine, a.log.With(logx.String("comp", "bot")))
	router.Register(adapter)

	a.scheduler.Start(ctx)
	a.engine.Start(ctx)
	if err := adapter.Start(ctx); err != nil {
		return fmt.Errorf("telegram start: %w", err)
	}

	// Reconcile once on load, then on every mutation (bot kicks) and on
	// the periodic sweep, which also retries permission-denied passes.
	a.engine.Kick()
	a.cron = cron.New()
	a.sweepSpec = sweepSpec(cfg)
	a.sweepEntry, err = a.cron.AddFunc(a.sweepSpec, a.engine.Kick)
	if err != nil {
		return fmt.Errorf("sweep schedule %q: %w", a.sweepSpec, err)
	}
	a.cron.Start()

	wctx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.watchWG.Add(2)
	go func() {
		defer a.watchWG.Done()
		_ = a.cfgMgr.Watch(wctx)
	}()
	sub := a.cfgMgr.Subscribe(1)
	go func() {
		defer a.watchWG.Done()
		defer a.cfgMgr.Unsubscribe(sub)
		for {
			select {
			case <-wctx.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(next)
			}
		}
	}()

	a.watchWG.Add(1)
	go func() {
		defer a.watchWG.Done()
		a.tailBus(wctx)
	}()

	a.log.Info("started",
		logx.String("storage", cfg.Storage.Path),
		logx.Bool("reminders", cfg.Reminders.Enabled),
		logx.String("sweep", a.sweepSpec))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
	}
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	if a.engine != nil {
		a.engine.Stop(ctx)
	}
	if a.scheduler != nil {
		a.scheduler.Stop(ctx)
	}
	if a.adapter != nil {
		_ = a.adapter.Stop(ctx)
	}
	a.watchWG.Wait()
	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("stopped")
	_ = a.logSvc.Close()
	return nil
}

// applyConfig hot-applies the reloadable parts: logging, delivery
// pacing, the permission gate, and the sweep schedule. Token, chat and
// storage path changes need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logSvc.Apply(logConfig(cfg))
	a.dispatcher.Apply(deliverConfig(cfg))
	a.scheduler.Apply(sched.Config{
		Enabled: cfg.Reminders.Enabled && cfg.Telegram.ChatID != 0,
	})

	if spec := sweepSpec(cfg); spec != a.sweepSpec {
		a.cron.Remove(a.sweepEntry)
		id, err := a.cron.AddFunc(spec, a.engine.Kick)
		if err != nil {
			a.log.Warn("sweep reschedule failed", logx.String("spec", spec), logx.Err(err))
		} else {
			a.sweepEntry = id
			a.sweepSpec = spec
			a.log.Info("sweep rescheduled", logx.String("spec", spec))
		}
	}

	// A toggle from disabled to enabled should take effect promptly.
	a.engine.Kick()
	a.log.Info("config applied")
}

// tailBus mirrors pipeline telemetry into the trace log.
func (a *App) tailBus(ctx context.Context) {
	if !a.log.Enabled(logx.LevelTrace) {
		return
	}
	ch, unsub := a.bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			a.log.Trace("bus event", logx.String("type", e.Type), logx.Any("data", e.Data))
		}
	}
}

// validate is the config gate for both startup and hot reload.
func validate(_ context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	for path, raw := range map[string]string{
		"telegram.poll_timeout":     cfg.Telegram.PollTimeout,
		"storage.busy_timeout":      cfg.Storage.BusyTimeout,
		"reminders.retry_base":      cfg.Reminders.RetryBase,
		"reminders.retry_max_delay": cfg.Reminders.RetryMaxDelay,
	} {
		if _, err := config.ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	if spec := strings.TrimSpace(cfg.Reminders.Sweep); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("reminders.sweep: invalid spec %q: %w", spec, err)
		}
	}
	return nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func deliverConfig(cfg *config.Config) deliver.Config {
	return deliver.Config{
		RatePerSec:    cfg.Reminders.RatePerSec,
		RetryMax:      cfg.Reminders.RetryMax,
		RetryBase:     mustDuration(cfg.Reminders.RetryBase),
		RetryMaxDelay: mustDuration(cfg.Reminders.RetryMaxDelay),
	}
}

func sweepSpec(cfg *config.Config) string {
	if s := strings.TrimSpace(cfg.Reminders.Sweep); s != "" {
		return s
	}
	return defaultSweep
}

// mustDuration is only called on fields validate() already accepted.
func mustDuration(raw string) time.Duration {
	d, _ := config.ParseDurationField("", raw)
	return d
}
