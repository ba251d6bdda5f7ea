package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"gridreg/pkg/platform/tx"
)

const (
	defaultTxTimeout   = 5 * time.Second
	defaultLockTimeout = 3 * time.Second
)

// TxRunner runs functions inside a Postgres transaction carried in the context.
// Stores read it back with tx.From, so every write in fn commits or rolls back together.
type TxRunner struct {
	db          *sql.DB
	timeout     time.Duration
	lockTimeout time.Duration
}

type TxOption func(*TxRunner)

// WithTxTimeout bounds the whole transaction when the caller has no deadline.
func WithTxTimeout(d time.Duration) TxOption {
	return func(r *TxRunner) { r.timeout = d }
}

// WithLockTimeout bounds how long any statement waits for a row lock.
func WithLockTimeout(d time.Duration) TxOption {
	return func(r *TxRunner) { r.lockTimeout = d }
}

func NewTxRunner(db *sql.DB, opts ...TxOption) *TxRunner {
	r := &TxRunner{db: db, timeout: defaultTxTimeout, lockTimeout: defaultLockTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunInTx begins a transaction, sets a transaction-local lock_timeout and calls fn.
// Any error from fn rolls back. A transaction already in ctx is joined instead.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := tx.From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return Classify(err)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Classify(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if r.lockTimeout > 0 {
		ms := strconv.FormatInt(r.lockTimeout.Milliseconds(), 10) + "ms"
		if _, err := sqlTx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			return Classify(fmt.Errorf("set lock_timeout: %w", err))
		}
	}

	if err := fn(tx.WithTx(ctx, sqlTx)); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return Classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}
