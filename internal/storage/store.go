package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// AccountEntry is the persisted account configuration: the identity the
// bridge logs in as and the session token obtained for it. Device state is
// never persisted.
type AccountEntry struct {
	Email     string
	Token     string
	UpdatedAt time.Time
}

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	store := &Store{db: db, logger: logger}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS account_entry (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			email TEXT NOT NULL,
			token TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

// Load returns the stored account entry, if any.
func (s *Store) Load(ctx context.Context) (AccountEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT email, token, updated_at FROM account_entry WHERE id = 1`)
	var entry AccountEntry
	var updatedAt string
	if err := row.Scan(&entry.Email, &entry.Token, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return AccountEntry{}, false, nil
		}
		return AccountEntry{}, false, err
	}
	if parsed, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		entry.UpdatedAt = parsed.UTC()
	}
	return entry, true, nil
}

// Save upserts the account entry.
func (s *Store) Save(ctx context.Context, entry AccountEntry) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_entry (id, email, token, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email, token = excluded.token, updated_at = excluded.updated_at`,
		entry.Email, entry.Token, now)
	return err
}

// ClearToken drops the stored session token so the next start performs a
// full login.
func (s *Store) ClearToken(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `UPDATE account_entry SET token = '', updated_at = ? WHERE id = 1`, now)
	return err
}
