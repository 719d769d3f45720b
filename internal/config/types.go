package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// ChatID is the chat all reminders are delivered to and the only
	// chat whose commands are accepted.
	ChatID int64 `json:"chat_id"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path string `json:"path"`

	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// RemindersConfig controls the reminder engine and delivery path.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - enabled: true is NOT assumed; an explicit true is required
//   - sweep: "@every 5m"
//   - rate_per_sec: 3
//   - retry_max: 2
//   - retry_base: "500ms"
//   - retry_max_delay: "10s"
type RemindersConfig struct {
	Enabled bool `json:"enabled"`

	// Sweep is a cron spec or "@every <duration>" that re-runs a full
	// reconciliation pass, so passes skipped while delivery was
	// unavailable are retried without a task mutation.
	Sweep string `json:"sweep,omitempty"`

	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}
