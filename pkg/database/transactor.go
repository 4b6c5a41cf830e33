package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// UnitOfWork is executed inside one transaction. It may run several times when the storage
// reports a transient failure, so it must not publish anything outside tx.
type UnitOfWork func(ctx context.Context, tx sqlx.ExtContext) error

// Runner executes units of work atomically.
type Runner interface {
	RunAtomic(ctx context.Context, fn UnitOfWork) error
}

// TxBeginner is satisfied by *sqlx.DB.
type TxBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// TransactorConfig tunes retry behaviour.
type TransactorConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *zap.Logger
	// OnRetry is invoked before each re-execution, after the failed attempt rolled back.
	OnRetry func(attempt int, err error)
}

// Transactor wraps units of work in retryable transactions.
type Transactor struct {
	db          TxBeginner
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger
	onRetry     func(attempt int, err error)
}

// NewTransactor builds a Transactor over db.
func NewTransactor(db TxBeginner, cfg TransactorConfig) *Transactor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Transactor{
		db:          db,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		logger:      cfg.Logger,
		onRetry:     cfg.OnRetry,
	}
}

// RunAtomic runs fn in a transaction, re-running it from scratch on transient failures.
// Errors returned by fn itself abort without retry unless they are transient storage errors.
func (t *Transactor) RunAtomic(ctx context.Context, fn UnitOfWork) error {
	var lastErr error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		err := t.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
		if attempt == t.maxAttempts {
			break
		}

		t.logger.Warn("transient transaction failure, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", t.maxAttempts),
			zap.Error(err))
		if t.onRetry != nil {
			t.onRetry(attempt, err)
		}

		if t.retryDelay > 0 {
			timer := time.NewTimer(t.retryDelay * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", t.maxAttempts, lastErr)
}

func (t *Transactor) runOnce(ctx context.Context, fn UnitOfWork) (err error) {
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Atomic runs fn through r and returns the value produced by the attempt that committed.
func Atomic[T any](ctx context.Context, r Runner, fn func(ctx context.Context, tx sqlx.ExtContext) (T, error)) (T, error) {
	var result T
	err := r.RunAtomic(ctx, func(ctx context.Context, tx sqlx.ExtContext) error {
		value, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
