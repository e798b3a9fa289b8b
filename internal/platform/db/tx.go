package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type contextKey string

const txKey contextKey = "db_tx"

// SQLSTATE codes the domain layer cares about.
const (
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeExclusionViolation   = "23P01"
	CodeCheckViolation       = "23514"
)

// TxFromContext returns the transaction opened by WithTx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// Conn returns the transaction carried by ctx, falling back to q.
func Conn(ctx context.Context, q Querier) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return q
}

// WithTx runs fn inside a transaction stored on the context handed to fn.
// Nested calls reuse the outer transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func WithTx(ctx context.Context, pool Pool, opts pgx.TxOptions, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	if pool == nil {
		return errors.New("no database pool configured")
	}

	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Serializable is the isolation used around check-then-write sequences.
var Serializable = pgx.TxOptions{IsoLevel: pgx.Serializable}

// IsCode reports whether err carries the given SQLSTATE.
func IsCode(err error, codes ...string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	for _, c := range codes {
		if pgErr.Code == c {
			return true
		}
	}
	return false
}

// Transactor adapts a Pool to the WithinTx shape the domain services depend on.
type Transactor struct {
	pool Pool
	opts pgx.TxOptions
}

// NewTransactor opens every transaction with opts.
func NewTransactor(pool Pool, opts pgx.TxOptions) *Transactor {
	return &Transactor{pool: pool, opts: opts}
}

// MaxTxAttempts bounds how often a top-level transaction is re-run after a
// serialization failure or deadlock.
const MaxTxAttempts = 3

// WithinTx runs fn in a transaction. A top-level transaction that fails with
// 40001 or 40P01 is re-run from scratch, so fn must be safe to repeat; nested
// calls are never retried here.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	var err error
	for attempt := 1; attempt <= MaxTxAttempts; attempt++ {
		err = WithTx(ctx, t.pool, t.opts, fn)
		if !IsCode(err, CodeSerializationFailure, CodeDeadlockDetected) || ctx.Err() != nil {
			return err
		}
	}
	return err
}
