// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/pgshift/pgshift/internal/connstr"
	"github.com/pgshift/pgshift/pkg/apply"
	"github.com/pgshift/pgshift/pkg/check"
	"github.com/pgshift/pgshift/pkg/db"
	"github.com/pgshift/pgshift/pkg/describe"
	"github.com/pgshift/pgshift/pkg/diff"
	"github.com/pgshift/pgshift/pkg/history"
	"github.com/pgshift/pgshift/pkg/schema"
)

// connectTimeout bounds the initial connection attempt. Statements issued
// later are not bounded by the engine.
const connectTimeout = 10 * time.Second

// Engine holds a connection to one target database and drives migrations
// against it. The connection is held exclusively for the duration of a
// command; no two commands may run concurrently on one Engine.
type Engine struct {
	conn    db.DB
	pgURL   string
	meta    connstr.Metadata
	schema  string
	flavour diff.Flavour

	describer describe.Describer
	store     *history.Store
	applier   *apply.Applier
	checker   *check.Checker
	logger    apply.Logger
}

type options struct {
	schema string
	logger apply.Logger
}

// Option configures an Engine.
type Option func(*options)

// WithSchema sets the database schema the engine acts on. Defaults to
// "public".
func WithSchema(schema string) Option {
	return func(o *options) { o.schema = schema }
}

// WithLogger sets the logger progress events go to.
func WithLogger(logger apply.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New connects to the target database and returns an engine acting on it.
// The connection attempt is bounded by a 10 second timeout.
func New(ctx context.Context, pgURL string, opts ...Option) (*Engine, error) {
	o := &options{schema: "public", logger: apply.NewNoopLogger()}
	for _, opt := range opts {
		opt(o)
	}

	meta, err := connstr.Parse(pgURL)
	if err != nil {
		return nil, &ConnectorError{Kind: KindInput, Err: err}
	}

	conn, err := connect(ctx, pgURL, o.schema)
	if err != nil {
		return nil, wrapError(KindConnectionFailure, meta, err)
	}

	rdb := &db.RDB{DB: conn}

	return &Engine{
		conn:      rdb,
		pgURL:     pgURL,
		meta:      meta,
		schema:    o.schema,
		flavour:   diff.PostgresFlavour{},
		describer: describe.NewPostgresDescriber(rdb),
		store:     history.NewStore(rdb),
		applier:   apply.NewApplier(rdb, o.logger),
		checker:   check.NewChecker(rdb),
		logger:    o.logger,
	}, nil
}

func connect(ctx context.Context, pgURL, schema string) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	dsn, err := connstr.AppendSearchPathOption(pgURL, schema)
	if err != nil {
		dsn = pgURL
	}
	if parsed, err := pq.ParseURL(dsn); err == nil {
		dsn = parsed
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// Init makes sure the applied-migrations table exists. Idempotent.
func (e *Engine) Init(ctx context.Context) error {
	return wrapError(KindSqlExecution, e.meta, e.store.EnsureTable(ctx))
}

// Schema returns the database schema the engine acts on.
func (e *Engine) Schema() string {
	return e.schema
}

// Conn returns the underlying database handle.
func (e *Engine) Conn() db.DB {
	return e.conn
}

// Store returns the applied-migrations store.
func (e *Engine) Store() *history.Store {
	return e.store
}

// Describe introspects the live database.
func (e *Engine) Describe(ctx context.Context) (*schema.Schema, error) {
	s, err := e.describer.Describe(ctx, e.schema)
	if err != nil {
		return nil, &ConnectorError{Kind: KindDescribeFailure, Meta: e.meta, Err: err}
	}
	return s, nil
}

func (e *Engine) Close() error {
	return e.conn.Close()
}
