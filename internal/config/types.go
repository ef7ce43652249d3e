package config

type Config struct {
	Practicum PracticumConfig `json:"practicum"`
	Telegram  TelegramConfig  `json:"telegram"`
	Poller    PollerConfig    `json:"poller"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

// PracticumConfig configures the homework status API client.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type PracticumConfig struct {
	// Endpoint defaults to DefaultEndpoint.
	Endpoint string `json:"endpoint,omitempty"`
	// Token is the OAuth token. Prefer the PRACTICUM_TOKEN env var over the file.
	Token string `json:"token,omitempty"`
	// Timeout bounds a single GET. Defaults to 30s.
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// TelegramConfig configures the bot used for delivery.
//
// Token and ChatID are usually provided by TELEGRAM_TOKEN and CHAT_ID.
// CHAT_ID also takes a public "@name", which lands in ChatUsername.
type TelegramConfig struct {
	Token        string `json:"token,omitempty"`
	ChatID       int64  `json:"chat_id,omitempty"`
	ChatUsername string `json:"chat_username,omitempty"`
	ThreadID     int    `json:"thread_id,omitempty"`
	// APIURL overrides the Bot API base URL (self-hosted bot api server).
	APIURL string `json:"api_url,omitempty"`
	// Timeout bounds a single Bot API call. Defaults to 10s.
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// PollerConfig controls the poll loop.
type PollerConfig struct {
	// Schedule is a cron expression or an interval (see scheduler.ParseSchedule).
	// Defaults to "10m".
	Schedule string `json:"schedule,omitempty"`
	// ReportErrors relays failed-cycle errors to the chat (de-duplicated).
	ReportErrors bool `json:"report_errors,omitempty"`
	// FromDate seeds the cursor (epoch seconds) when no state is stored.
	// 0 means "now".
	FromDate int64 `json:"from_date,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram mirrors log records into the relay chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the optional state persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/hwbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
