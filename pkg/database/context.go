package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx operations repositories need. Both the pool
// and an open transaction satisfy it, so repository code is identical inside
// and outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// QuerierFrom returns the active transaction from the context if one is open,
// falling back to the pool. Repositories must route every statement through
// this so that intent-scoped transactions see all their own writes and commit
// atomically.
func QuerierFrom(ctx context.Context, db *DB) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db.Pool
}

// TxRunner runs a function inside a single atomic transaction scope.
// Services depend on this rather than on the pool directly.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RunInTx implements TxRunner on the pool-backed DB.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithTx(ctx, db, fn)
}

// InTx reports whether the context carries an open transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(pgx.Tx)
	return ok
}

// WithTx runs fn inside a single transaction. The transaction travels in the
// context passed to fn; a non-nil error from fn rolls everything back. Nested
// calls reuse the outer transaction.
func WithTx(ctx context.Context, db *DB, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
