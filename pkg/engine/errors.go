// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/pgshift/pgshift/internal/connstr"
)

// ErrorKind classifies connector errors.
type ErrorKind string

const (
	// KindInput flags malformed input: a bad data model, a missing
	// migrations folder, an invalid connection URL.
	KindInput ErrorKind = "input"

	// KindConnectionFailure flags an unreachable database, an auth
	// failure or a connect timeout.
	KindConnectionFailure ErrorKind = "connection failure"

	// KindSqlExecution flags a failed statement.
	KindSqlExecution ErrorKind = "sql execution"

	// KindDescribeFailure flags a failed schema introspection.
	KindDescribeFailure ErrorKind = "describe failure"

	// KindHistoryCorruption flags an applied-migrations table that cannot
	// be reconciled with the migrations folder.
	KindHistoryCorruption ErrorKind = "history corruption"
)

// ConnectorError is the error type surfaced by the engine. It enriches the
// underlying error with its kind and the connection's public metadata;
// credentials never appear in it.
type ConnectorError struct {
	Kind ErrorKind
	Meta connstr.Metadata
	Err  error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Meta, e.Err)
}

func (e *ConnectorError) Unwrap() error {
	return e.Err
}

// wrapError converts an error into a ConnectorError carrying the
// connection's public metadata. pq errors are classified as SQL execution
// failures; everything else keeps the provided kind.
func wrapError(kind ErrorKind, meta connstr.Metadata, err error) error {
	if err == nil {
		return nil
	}

	connErr := &ConnectorError{}
	if errors.As(err, &connErr) {
		return err
	}

	pqErr := &pq.Error{}
	if errors.As(err, &pqErr) {
		kind = KindSqlExecution
	}

	return &ConnectorError{Kind: kind, Meta: meta, Err: err}
}
