package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot + JSON Lines history
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// State is the relay state carried between poll cycles.
type State struct {
	Cursor      int64     `json:"cursor"`
	LastMessage string    `json:"last_message,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HistoryEntry records one delivered status change.
type HistoryEntry struct {
	At           time.Time `json:"at"`
	HomeworkName string    `json:"homework_name"`
	Status       string    `json:"status"`
	Message      string    `json:"message"`
}
