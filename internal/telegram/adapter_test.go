package telegram

import (
	"context"
	"sync"
	"testing"

	logx "remindbot/pkg/logx"
)

func TestStopWithoutStartIsNoop(t *testing.T) {
	t.Parallel()
	a := &Adapter{cfg: Config{ChatID: 1}}
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("stop of a never-started adapter: %v", err)
	}
}

func TestStopBotFiresExactlyOnce(t *testing.T) {
	t.Parallel()
	var (
		mu    sync.Mutex
		calls int
	)
	a := &Adapter{stopFn: func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}}

	// Shutdown triggers race: the context watcher and Stop() both reach
	// stopBot; only one may actually stop the bot.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.stopBot()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("bot stopped %d times, want exactly once", calls)
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "   "}, logx.Nop()); err == nil {
		t.Fatal("blank token should be rejected")
	}
}
