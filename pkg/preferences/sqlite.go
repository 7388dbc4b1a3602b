package preferences

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS users (
	id                TEXT PRIMARY KEY,
	allow_ai_training INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
)`

// sqlitePragmas is the modernc.org/sqlite DSN suffix applied to every
// connection.
const sqlitePragmas = "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)"

// SQLiteStore persists records in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+sqlitePragmas)
	if err != nil {
		return nil, fmt.Errorf("preferences: open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("preferences: migrate sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, uid string) (Record, error) {
	var (
		allow bool
		ts    int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT allow_ai_training, updated_at FROM users WHERE id = ?`, uid).Scan(&allow, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	return Record{UserID: uid, AllowAITraining: allow, UpdatedAt: time.UnixMilli(ts).UTC()}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	ts := rec.UpdatedAt.UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, allow_ai_training, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET allow_ai_training = excluded.allow_ai_training, updated_at = excluded.updated_at`,
		rec.UserID, rec.AllowAITraining, ts)
	return err
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}
