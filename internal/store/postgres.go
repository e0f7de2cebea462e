package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the append-only version table. Keys are BYTEA because
// composite keys contain U+0000, which TEXT rejects.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_state (
	key          BYTEA       NOT NULL,
	seq          BIGINT      NOT NULL,
	value        BYTEA,
	tx_id        TEXT        NOT NULL,
	committed_at TIMESTAMPTZ NOT NULL,
	is_delete    BOOLEAN     NOT NULL DEFAULT FALSE,
	PRIMARY KEY (key, seq)
);`

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

type PostgresBackend struct {
	Db *pgxpool.Pool
}

func NewPostgresBackend(ctx context.Context, connString string) (*PostgresBackend, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresBackend{Db: pool}, nil
}

// Migrate creates the ledger_state table when it does not exist yet.
func (s *PostgresBackend) Migrate(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate ledger_state: %w", err)
	}
	return nil
}

func (s *PostgresBackend) Close() error {
	s.Db.Close()
	return nil
}

func (s *PostgresBackend) Get(ctx context.Context, key string) (*Version, error) {
	var v Version
	err := s.Db.QueryRow(ctx,
		"SELECT seq, value, tx_id, committed_at, is_delete FROM ledger_state WHERE key = $1 ORDER BY seq DESC LIMIT 1",
		[]byte(key),
	).Scan(&v.Seq, &v.Value, &v.TxID, &v.Timestamp, &v.IsDelete)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresBackend) Scan(ctx context.Context, start, end string) ([]Entry, error) {
	var upper []byte
	if end != "" {
		upper = []byte(end)
	}
	rows, err := s.Db.Query(ctx,
		`SELECT DISTINCT ON (key) key, seq, value, tx_id, committed_at, is_delete
		   FROM ledger_state
		  WHERE key >= $1 AND ($2::bytea IS NULL OR key < $2)
		  ORDER BY key, seq DESC`,
		[]byte(start), upper,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var key []byte
		var v Version
		if err := rows.Scan(&key, &v.Seq, &v.Value, &v.TxID, &v.Timestamp, &v.IsDelete); err != nil {
			return nil, err
		}
		if v.IsDelete {
			continue
		}
		out = append(out, Entry{Key: string(key), Version: v})
	}
	return out, rows.Err()
}

func (s *PostgresBackend) History(ctx context.Context, key string) ([]Version, error) {
	rows, err := s.Db.Query(ctx,
		"SELECT seq, value, tx_id, committed_at, is_delete FROM ledger_state WHERE key = $1 ORDER BY seq ASC",
		[]byte(key),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.Seq, &v.Value, &v.TxID, &v.Timestamp, &v.IsDelete); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Commit validates the read set and appends the write set in one
// serializable transaction. Two commits appending the same (key, seq) hit
// the primary key; anything subtler is caught by serializable isolation.
func (s *PostgresBackend) Commit(ctx context.Context, cs *Changeset) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	for key, seq := range cs.Reads {
		cur, err := currentSeq(ctx, tx, key)
		if err != nil {
			return mapPgError(err)
		}
		if cur != seq {
			return ErrConflict
		}
	}

	for _, w := range cs.Writes {
		cur, err := currentSeq(ctx, tx, w.Key)
		if err != nil {
			return mapPgError(err)
		}
		_, err = tx.Exec(ctx,
			"INSERT INTO ledger_state (key, seq, value, tx_id, committed_at, is_delete) VALUES ($1, $2, $3, $4, $5, $6)",
			[]byte(w.Key), cur+1, w.Value, cs.TxID, cs.Timestamp, w.IsDelete,
		)
		if err != nil {
			return mapPgError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

func currentSeq(ctx context.Context, tx pgx.Tx, key string) (uint64, error) {
	var seq int64
	err := tx.QueryRow(ctx, "SELECT COALESCE(MAX(seq), 0) FROM ledger_state WHERE key = $1", []byte(key)).Scan(&seq)
	return uint64(seq), err
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}
