package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hwbot/internal/task/scheduler"
)

const (
	DefaultEndpoint = "https://practicum.yandex.ru/api/user_api/homework_statuses/"
	DefaultSchedule = "10m"

	EnvPracticumToken = "PRACTICUM_TOKEN"
	EnvTelegramToken  = "TELEGRAM_TOKEN"
	EnvChatID         = "CHAT_ID"
	EnvEndpoint       = "PRACTICUM_ENDPOINT"
)

var ErrMissingCredentials = errors.New("missing required credentials")

// applyEnv overlays credentials from the environment. Env values win over the file.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPracticumToken); ok && strings.TrimSpace(v) != "" {
		c.Practicum.Token = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvTelegramToken); ok && strings.TrimSpace(v) != "" {
		c.Telegram.Token = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvEndpoint); ok && strings.TrimSpace(v) != "" {
		c.Practicum.Endpoint = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvChatID); ok && strings.TrimSpace(v) != "" {
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "@") {
			c.Telegram.ChatID, c.Telegram.ChatUsername = 0, v
			return nil
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid chat id %q: want a number or @username: %w", EnvChatID, v, err)
		}
		c.Telegram.ChatID, c.Telegram.ChatUsername = id, ""
	}
	return nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Practicum.Endpoint) == "" {
		c.Practicum.Endpoint = DefaultEndpoint
	}
	if strings.TrimSpace(c.Poller.Schedule) == "" {
		c.Poller.Schedule = DefaultSchedule
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if !c.Logging.Console && !c.Logging.File.Enabled {
		c.Logging.Console = true
	}
}

// Validate checks every credential (reporting all that are missing at once)
// plus the schedule and duration fields.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Practicum.Token) == "" {
		missing = append(missing, EnvPracticumToken)
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		missing = append(missing, EnvTelegramToken)
	}
	if c.Telegram.ChatID == 0 && strings.TrimSpace(c.Telegram.ChatUsername) == "" {
		missing = append(missing, EnvChatID)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}

	if u := c.Telegram.ChatUsername; u != "" && (len(u) < 2 || !strings.HasPrefix(u, "@")) {
		return fmt.Errorf("telegram.chat_username: %q must look like @name", u)
	}

	if _, err := scheduler.ParseSchedule(c.Poller.Schedule); err != nil {
		return fmt.Errorf("poller.schedule: %w", err)
	}
	if _, err := ParseDurationField("practicum.timeout", c.Practicum.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("telegram.timeout", c.Telegram.Timeout); err != nil {
		return err
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// DurationOr returns the parsed field, or def when the field is empty or zero.
// Callers run after Validate, so parse errors fall back to def as well.
func DurationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
