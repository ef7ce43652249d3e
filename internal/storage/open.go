package storage

import (
	"context"
	"errors"
	"hwbot/pkg/logx"
	"strings"
)

// Store is the persistence API used by the poller and the app.
type Store interface {
	// LoadState returns ok=false when nothing has been saved yet.
	LoadState(ctx context.Context) (st State, ok bool, err error)
	SaveState(ctx context.Context, st State) error
	AppendHistory(ctx context.Context, e HistoryEntry) error
	// History returns up to limit most recent entries, oldest first.
	History(ctx context.Context, limit int) ([]HistoryEntry, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
