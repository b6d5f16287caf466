package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps every document in a single documents table (key, jsonb doc,
// version) and runs transactions at REPEATABLE READ, so a concurrent write
// to any row a transaction has read surfaces as a serialization failure.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *pgTx) Get(key string, dest any) error {
	var raw json.RawMessage
	err := t.tx.QueryRow(t.ctx, "SELECT doc FROM documents WHERE key = $1", key).Scan(&raw)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return mapPgError(err)
	}
	return json.Unmarshal(raw, dest)
}

func (t *pgTx) Set(key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = t.tx.Exec(t.ctx,
		`INSERT INTO documents (key, doc, version) VALUES ($1, $2, 1)
		 ON CONFLICT (key) DO UPDATE SET doc = $2, version = documents.version + 1`,
		key, raw,
	)
	return mapPgError(err)
}

func (s *Postgres) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, key string, dest any) error {
	var raw json.RawMessage
	err := s.pool.QueryRow(ctx, "SELECT doc FROM documents WHERE key = $1", key).Scan(&raw)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (s *Postgres) Put(ctx context.Context, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (key, doc, version) VALUES ($1, $2, 1)
		 ON CONFLICT (key) DO UPDATE SET doc = $2, version = documents.version + 1`,
		key, raw,
	)
	return err
}

func (s *Postgres) List(ctx context.Context, prefix string) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT key, doc FROM documents WHERE key LIKE $1 || '%' ORDER BY key",
		prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.Key, &d.Raw); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// mapPgError translates the store-level contention signals. 40001 is a
// serialization failure under REPEATABLE READ, 23505 a unique violation when
// two transactions insert the same key, 40P01 a deadlock abort.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "23505", "40P01":
			return ErrConflict
		}
	}
	return err
}
