// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pgshift/pgshift/internal/connstr"
	"github.com/pgshift/pgshift/pkg/db"
	"github.com/pgshift/pgshift/pkg/describe"
	"github.com/pgshift/pgshift/pkg/schema"
)

// ShadowDatabase is a disposable database used as neutral ground for
// materializing the migration folder's end state. It holds its own
// connection, separate from the engine's.
type ShadowDatabase struct {
	// Name is the database's uniquely-suffixed name
	Name string

	// SchemaName is the schema scripts replay into
	SchemaName string

	conn db.DB
}

// Conn returns the shadow database's connection.
func (t *ShadowDatabase) Conn() db.DB {
	return t.conn
}

// Describe introspects the shadow database.
func (t *ShadowDatabase) Describe(ctx context.Context) (*schema.Schema, error) {
	return describe.NewPostgresDescriber(t.conn).Describe(ctx, t.SchemaName)
}

// CreateShadowDatabase creates a uniquely-named temporary database next to
// the target database and connects to it.
func (e *Engine) CreateShadowDatabase(ctx context.Context) (*ShadowDatabase, error) {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	name := "pgshift_shadow_" + suffix

	if _, err := e.conn.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(name))); err != nil {
		return nil, wrapError(KindSqlExecution, e.meta, fmt.Errorf("creating shadow database: %w", err))
	}

	shadowURL, err := connstr.WithDatabase(e.pgURL, name)
	if err != nil {
		return nil, wrapError(KindInput, e.meta, err)
	}

	conn, err := connect(ctx, shadowURL, "public")
	if err != nil {
		// Best effort cleanup; the original error is the one that matters.
		e.dropDatabase(ctx, name)
		return nil, wrapError(KindConnectionFailure, e.meta, fmt.Errorf("connecting to shadow database: %w", err))
	}

	return &ShadowDatabase{
		Name:       name,
		SchemaName: "public",
		conn:       &db.RDB{DB: conn},
	}, nil
}

// DropShadowDatabase closes the shadow database's connection and drops it.
func (e *Engine) DropShadowDatabase(ctx context.Context, shadow *ShadowDatabase) error {
	if shadow == nil {
		return nil
	}
	if err := shadow.conn.Close(); err != nil {
		return err
	}
	return e.dropDatabase(ctx, shadow.Name)
}

func (e *Engine) dropDatabase(ctx context.Context, name string) error {
	_, err := e.conn.ExecContext(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", pq.QuoteIdentifier(name)))
	return wrapError(KindSqlExecution, e.meta, err)
}
