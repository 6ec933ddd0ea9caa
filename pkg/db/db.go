// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cloudflare/backoff"
	"github.com/lib/pq"
)

const (
	lockNotAvailableErrorCode  pq.ErrorCode = "55P03"
	serializationFailureCode   pq.ErrorCode = "40001"
	maxBackoffDuration                      = 1 * time.Minute
	backoffInterval                         = 1 * time.Second
)

// DB is the database handle the engine runs its statements through.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	WithRetryableTransaction(ctx context.Context, f func(context.Context, *sql.Tx) error) error
	RawConn() *sql.DB
	Close() error
}

// RDB wraps a *sql.DB and retries statements using an exponential backoff
// (with jitter) on lock_timeout and serialization failures.
type RDB struct {
	DB *sql.DB
}

// ExecContext wraps sql.DB.ExecContext with retries. Multi-statement scripts
// without arguments go through the simple query protocol, so whole migration
// scripts can be executed with a single call.
func (db *RDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	err := db.retry(ctx, func() error {
		var err error
		res, err = db.DB.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// QueryContext wraps sql.DB.QueryContext with retries.
func (db *RDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	err := db.retry(ctx, func() error {
		var err error
		rows, err = db.DB.QueryContext(ctx, query, args...)
		return err
	})
	return rows, err
}

// WithRetryableTransaction runs f in a transaction, retrying the whole
// transaction on retryable errors.
func (db *RDB) WithRetryableTransaction(ctx context.Context, f func(context.Context, *sql.Tx) error) error {
	return db.retry(ctx, func() error {
		tx, err := db.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		if err := f(ctx, tx); err != nil {
			if errRollback := tx.Rollback(); errRollback != nil {
				return errRollback
			}
			return err
		}

		return tx.Commit()
	})
}

// RawConn returns the underlying *sql.DB, for callers that manage their own
// retries.
func (db *RDB) RawConn() *sql.DB {
	return db.DB
}

func (db *RDB) Close() error {
	return db.DB.Close()
}

func (db *RDB) retry(ctx context.Context, f func() error) error {
	b := backoff.New(maxBackoffDuration, backoffInterval)

	for {
		err := f()
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}

		if err := sleepCtx(ctx, b.Duration()); err != nil {
			return err
		}
	}
}

func isRetryable(err error) bool {
	pqErr := &pq.Error{}
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == lockNotAvailableErrorCode || pqErr.Code == serializationFailureCode
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ScanFirstValue scans the first value of the first row, assuming rows holds
// a single row with a single value.
func ScanFirstValue[T any](rows *sql.Rows, dest *T) error {
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(dest); err != nil {
			return err
		}
	}
	return rows.Err()
}
