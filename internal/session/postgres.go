package session

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// PostgresStore keeps sessions in a jsonb column. Update locks the row for
// the duration of fn.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresStore creates the sessions table when it is missing.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, ttl time.Duration) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate sessions: %w", err)
	}
	return &PostgresStore{pool: pool, ttl: ttl}, nil
}

func (p *PostgresStore) expired(updated time.Time) bool {
	return p.ttl > 0 && time.Since(updated) > p.ttl
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*State, error) {
	var (
		raw     []byte
		updated time.Time
	)
	err := p.pool.QueryRow(ctx,
		`SELECT state, updated_at FROM portal_sessions WHERE id = $1`, id,
	).Scan(&raw, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return New(id), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if p.expired(updated) {
		return New(id), nil
	}
	return decode(id, raw)
}

func (p *PostgresStore) Update(ctx context.Context, id string, fn func(*State) error) (*State, error) {
	fresh, err := encode(New(id))
	if err != nil {
		return nil, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin session tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO portal_sessions (id, state) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		id, fresh,
	); err != nil {
		return nil, fmt.Errorf("ensure session: %w", err)
	}

	var (
		raw     []byte
		updated time.Time
	)
	if err := tx.QueryRow(ctx,
		`SELECT state, updated_at FROM portal_sessions WHERE id = $1 FOR UPDATE`, id,
	).Scan(&raw, &updated); err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}

	st := New(id)
	if !p.expired(updated) {
		if st, err = decode(id, raw); err != nil {
			return nil, err
		}
	}

	if err := fn(st); err != nil {
		return nil, err
	}
	st.UpdatedAt = time.Now()
	buf, err := encode(st)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE portal_sessions SET state = $2, updated_at = $3 WHERE id = $1`,
		id, buf, st.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit session: %w", err)
	}
	return st, nil
}

// Sweep deletes sessions idle for longer than the ttl.
func (p *PostgresStore) Sweep(ctx context.Context) (int, error) {
	if p.ttl <= 0 {
		return 0, nil
	}
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM portal_sessions WHERE updated_at < $1`, time.Now().Add(-p.ttl))
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
