package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the single keyed table the PostgreSQL store uses. Records are
// JSONB documents addressed by (bucket, address).
const Schema = `
CREATE TABLE IF NOT EXISTS escrow_records (
	bucket     TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	value      JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (bucket, key)
);
CREATE INDEX IF NOT EXISTS escrow_receipts_match_idx
	ON escrow_records (((value->>'match_id')::NUMERIC))
	WHERE bucket = 'receipts';
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Every unit of work is one transaction; each record read inside it is
// locked with SELECT ... FOR UPDATE, so writers touching the same pool are
// serialized by the database.
type PostgresStore struct {
	reader

	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	s := &PostgresStore{pool: pool}
	s.reader = reader{view: s.view}
	return s
}

// EnsureSchema creates the records table if it is missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&txn{kv: &pgKV{ctx: ctx, tx: tx, lock: true}})
	})
}

func (s *PostgresStore) view(ctx context.Context, fn func(kv) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		return fn(&pgKV{ctx: ctx, tx: tx})
	})
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type pgKV struct {
	ctx  context.Context
	tx   pgx.Tx
	lock bool
}

func (k *pgKV) get(bucket, key string) ([]byte, error) {
	q := `SELECT value::TEXT FROM escrow_records WHERE bucket = $1 AND key = $2`
	if k.lock {
		q += ` FOR UPDATE`
	}
	var value string
	err := k.tx.QueryRow(k.ctx, q, bucket, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return []byte(value), nil
}

func (k *pgKV) insert(bucket, key string, val []byte) error {
	tag, err := k.tx.Exec(k.ctx,
		`INSERT INTO escrow_records (bucket, key, value)
		 VALUES ($1, $2, $3::JSONB)
		 ON CONFLICT (bucket, key) DO NOTHING`,
		bucket, key, string(val),
	)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", bucket, key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", ErrExists, bucket, key)
	}
	return nil
}

func (k *pgKV) put(bucket, key string, val []byte) error {
	_, err := k.tx.Exec(k.ctx,
		`INSERT INTO escrow_records (bucket, key, value)
		 VALUES ($1, $2, $3::JSONB)
		 ON CONFLICT (bucket, key) DO UPDATE
		 SET value = EXCLUDED.value, updated_at = now()`,
		bucket, key, string(val),
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (k *pgKV) scan(bucket string, fn func(val []byte) error) error {
	rows, err := k.tx.Query(k.ctx,
		`SELECT value::TEXT FROM escrow_records WHERE bucket = $1 ORDER BY key`, bucket)
	if err != nil {
		return fmt.Errorf("scan %s: %w", bucket, err)
	}
	defer rows.Close()

	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return err
		}
		if err := fn([]byte(value)); err != nil {
			return err
		}
	}
	return rows.Err()
}
