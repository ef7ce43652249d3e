package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"hwbot/pkg/logx"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadState(ctx context.Context) (State, bool, error) {
	if s == nil || s.db == nil {
		return State{}, false, ErrDisabled
	}
	var (
		st      State
		lastMsg sql.NullString
		updated string
	)
	err := s.db.QueryRowContext(ctx, `SELECT cursor, last_message, updated_at FROM state WHERE id = 1`).
		Scan(&st.Cursor, &lastMsg, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}
	st.LastMessage = lastMsg.String
	st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return st, true, nil
}

func (s *sqliteStore) SaveState(ctx context.Context, st State) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state(id, cursor, last_message, updated_at) VALUES(1,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET cursor=excluded.cursor, last_message=excluded.last_message, updated_at=excluded.updated_at`,
		st.Cursor, nullStr(st.LastMessage), st.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) AppendHistory(ctx context.Context, e HistoryEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history(at, homework_name, status, message) VALUES(?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.HomeworkName, e.Status, e.Message,
	)
	return err
}

func (s *sqliteStore) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, homework_name, status, message FROM (
			SELECT id, at, homework_name, status, message FROM history ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e  HistoryEntry
			at string
		)
		if err := rows.Scan(&at, &e.HomeworkName, &e.Status, &e.Message); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
