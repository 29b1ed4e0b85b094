package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"strathyterm/internal/model"

	_ "modernc.org/sqlite"
)

// schemaVersion is bumped whenever the payload shape changes; a cache written
// by another version is dropped rather than migrated.
const schemaVersion = 1

const (
	metaSchemaVersion = "schema_version"
	metaSavedAt       = "saved_at"
)

// SQLiteStore keeps the last known thread store between runs so the console
// can show something before the first poll completes. It implements
// inbox.SnapshotStore.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs migrations.
// log may be nil.
func NewSQLiteStore(dbPath string, log *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the poller and UI actions both save.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &SQLiteStore{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS threads (
	thread_id   TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT '',
	received_at INTEGER NOT NULL DEFAULT 0,
	payload     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS threads_received_at ON threads (received_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	ctx := context.Background()
	v, err := s.GetMeta(ctx, metaSchemaVersion)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != "" && v != strconv.Itoa(schemaVersion) {
		s.log.Warn("dropping thread cache from another version", "found", v, "want", schemaVersion)
		if _, err := s.db.Exec("DELETE FROM threads"); err != nil {
			return fmt.Errorf("reset threads: %w", err)
		}
	}
	return s.SetMeta(ctx, metaSchemaVersion, strconv.Itoa(schemaVersion))
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveThreads replaces the cached store with threads.
func (s *SQLiteStore) SaveThreads(ctx context.Context, threads []model.Thread) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM threads"); err != nil {
		return fmt.Errorf("clear threads: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO threads (thread_id, status, received_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			status      = excluded.status,
			received_at = excluded.received_at,
			payload     = excluded.payload
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range threads {
		payload, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode thread %s: %w", t.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, t.ID, string(t.Status), t.ReceivedAt.UnixMilli(), string(payload)); err != nil {
			return fmt.Errorf("insert thread %s: %w", t.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metaSavedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadThreads returns the cached store newest first. Rows that no longer
// decode are skipped and logged.
func (s *SQLiteStore) LoadThreads(ctx context.Context) ([]model.Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT thread_id, payload FROM threads ORDER BY received_at DESC, thread_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []model.Thread
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var t model.Thread
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			s.log.Warn("discarding malformed cached thread", "thread_id", id, "err", err)
			continue
		}
		if t.ID != id {
			s.log.Warn("discarding cached thread with mismatched id", "thread_id", id, "payload_id", t.ID)
			continue
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

func (s *SQLiteStore) CountThreads(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM threads").Scan(&count)
	return count, err
}

// SavedAt reports when SaveThreads last succeeded. ok is false for a cache
// that was never written.
func (s *SQLiteStore) SavedAt(ctx context.Context) (time.Time, bool, error) {
	v, err := s.GetMeta(ctx, metaSavedAt)
	if err != nil || v == "" {
		return time.Time{}, false, err
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, nil
	}
	return ts, true, nil
}

func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return val, err
}

func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
