// SPDX-License-Identifier: Apache-2.0

package describe_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/internal/testutils"
	"github.com/pgshift/pgshift/pkg/db"
	"github.com/pgshift/pgshift/pkg/describe"
	"github.com/pgshift/pgshift/pkg/schema"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

func TestDescribeTablesInCanonicalOrder(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()

		mustExec(t, conn, `CREATE TABLE zebras (id int PRIMARY KEY)`)
		mustExec(t, conn, `CREATE TABLE apes (id int PRIMARY KEY)`)

		s, err := describe.NewPostgresDescriber(&db.RDB{DB: conn}).Describe(ctx, "public")
		require.NoError(t, err)

		require.Len(t, s.Tables, 2)
		assert.Equal(t, "apes", s.Tables[0].Name)
		assert.Equal(t, "zebras", s.Tables[1].Name)
	})
}

func TestDescribeColumns(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()

		mustExec(t, conn, `CREATE TABLE users (
			id bigint GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
			email varchar(255) NOT NULL,
			bio text,
			score numeric(10,2) DEFAULT 0,
			created_at timestamptz NOT NULL DEFAULT now(),
			tags text[]
		)`)

		s, err := describe.NewPostgresDescriber(&db.RDB{DB: conn}).Describe(ctx, "public")
		require.NoError(t, err)

		users, ok := s.TableByName("users")
		require.True(t, ok)

		// Columns come back in physical order.
		names := make([]string, 0)
		for _, c := range users.WalkColumns() {
			names = append(names, c.Name())
		}
		assert.Equal(t, []string{"id", "email", "bio", "score", "created_at", "tags"}, names)

		id, _ := users.Column("id")
		assert.Equal(t, schema.FamilyInt, id.Family())
		assert.Equal(t, schema.Required, id.Arity())
		assert.True(t, id.IsAutoIncrement())
		assert.True(t, id.IsPartOfPrimaryKey())

		email, _ := users.Column("email")
		assert.Equal(t, schema.FamilyString, email.Family())
		assert.Equal(t, schema.Required, email.Arity())

		bio, _ := users.Column("bio")
		assert.Equal(t, schema.Nullable, bio.Arity())

		score, _ := users.Column("score")
		assert.Equal(t, schema.FamilyDecimal, score.Family())
		assert.NotNil(t, score.Default())

		createdAt, _ := users.Column("created_at")
		assert.Equal(t, schema.FamilyDateTime, createdAt.Family())

		tags, _ := users.Column("tags")
		assert.Equal(t, schema.List, tags.Arity())
		assert.Equal(t, schema.FamilyString, tags.Family())
	})
}

func TestDescribeEnumsIndexesAndForeignKeys(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()

		mustExec(t, conn, `CREATE TYPE status AS ENUM ('active', 'disabled')`)
		mustExec(t, conn, `CREATE TABLE users (
			id int PRIMARY KEY,
			status status NOT NULL
		)`)
		mustExec(t, conn, `CREATE TABLE posts (
			id int PRIMARY KEY,
			author_id int NOT NULL,
			CONSTRAINT posts_author_id_fkey FOREIGN KEY (author_id) REFERENCES users (id) ON DELETE CASCADE
		)`)
		mustExec(t, conn, `CREATE UNIQUE INDEX posts_author_idx ON posts (author_id)`)

		s, err := describe.NewPostgresDescriber(&db.RDB{DB: conn}).Describe(ctx, "public")
		require.NoError(t, err)

		require.Len(t, s.Enums, 1)
		assert.Equal(t, "status", s.Enums[0].Name)
		assert.Equal(t, []string{"active", "disabled"}, s.Enums[0].Values)

		users, ok := s.TableByName("users")
		require.True(t, ok)
		statusColumn, _ := users.Column("status")
		assert.Equal(t, schema.FamilyEnum, statusColumn.Family())
		assert.Equal(t, "status", statusColumn.Type().EnumName)

		posts, ok := s.TableByName("posts")
		require.True(t, ok)

		require.Len(t, posts.WalkIndexes(), 1)
		index := posts.WalkIndexes()[0]
		assert.Equal(t, "posts_author_idx", index.Name())
		assert.True(t, index.IsUnique())
		assert.Equal(t, []string{"author_id"}, index.Columns())

		require.Len(t, posts.WalkForeignKeys(), 1)
		fk := posts.WalkForeignKeys()[0].ForeignKey()
		assert.Equal(t, "posts_author_id_fkey", fk.ConstraintName)
		assert.Equal(t, []string{"author_id"}, fk.Columns)
		assert.Equal(t, "users", fk.ReferencedTable)
		assert.Equal(t, []string{"id"}, fk.ReferencedColumns)
		assert.Equal(t, schema.Cascade, fk.OnDelete)
		assert.Equal(t, schema.NoAction, fk.OnUpdate)
	})
}

func mustExec(t *testing.T, conn *sql.DB, query string) {
	t.Helper()
	_, err := conn.ExecContext(context.Background(), query)
	require.NoError(t, err)
}
