package preferences

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*PostgresStore)(nil)

const postgresSchema = `CREATE TABLE IF NOT EXISTS users (
	id                TEXT PRIMARY KEY,
	allow_ai_training BOOLEAN NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
)`

// PostgresStore persists records in Postgres.
type PostgresStore struct {
	db *pgxpool.Pool
}

// OpenPostgres connects to connStr and ensures the users table exists.
func OpenPostgres(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("preferences: connect postgres: %w", err)
	}

	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("preferences: migrate postgres: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Get(ctx context.Context, uid string) (Record, error) {
	rec := Record{UserID: uid}

	err := p.db.QueryRow(ctx,
		`SELECT allow_ai_training, updated_at FROM users WHERE id = $1`, uid).
		Scan(&rec.AllowAITraining, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func (p *PostgresStore) Put(ctx context.Context, rec Record) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO users (id, allow_ai_training, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET allow_ai_training = EXCLUDED.allow_ai_training, updated_at = EXCLUDED.updated_at`,
		rec.UserID, rec.AllowAITraining, rec.UpdatedAt)
	return err
}

func (p *PostgresStore) Close(context.Context) error {
	p.db.Close()
	return nil
}
