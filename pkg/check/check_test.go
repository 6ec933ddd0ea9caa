// SPDX-License-Identifier: Apache-2.0

package check_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/pkg/check"
	"github.com/pgshift/pgshift/pkg/diff"
	"github.com/pgshift/pgshift/pkg/schema"
)

func TestPureCheckFlagsTableDrop(t *testing.T) {
	t.Parallel()

	migration := &diff.DatabaseMigration{Steps: []diff.Step{
		&diff.DropTable{Name: "users"},
	}}

	d := check.PureCheck(migration)

	require.Len(t, d.Warnings, 1)
	assert.Contains(t, d.Warnings[0].Description, `"users"`)
	assert.Empty(t, d.UnexecutableMigrations)
}

func TestPureCheckFlagsColumnDrop(t *testing.T) {
	t.Parallel()

	migration := &diff.DatabaseMigration{Steps: []diff.Step{
		&diff.DropColumn{Table: "users", Column: "email"},
	}}

	d := check.PureCheck(migration)

	require.Len(t, d.Warnings, 1)
	assert.Contains(t, d.Warnings[0].Description, `"email"`)
}

func TestPureCheckRequiredColumnWithoutDefaultIsUnexecutable(t *testing.T) {
	t.Parallel()

	migration := &diff.DatabaseMigration{Steps: []diff.Step{
		&diff.AddColumn{Table: "users", Column: schema.Column{
			Name: "age",
			Type: schema.ColumnType{Family: schema.FamilyInt, Arity: schema.Required},
		}},
	}}

	d := check.PureCheck(migration)

	assert.Empty(t, d.Warnings)
	require.Len(t, d.UnexecutableMigrations, 1)
	assert.Contains(t, d.UnexecutableMigrations[0].Description, `"age"`)
}

func TestPureCheckRequiredColumnWithDefaultIsFine(t *testing.T) {
	t.Parallel()

	expr := "0"
	migration := &diff.DatabaseMigration{Steps: []diff.Step{
		&diff.AddColumn{Table: "users", Column: schema.Column{
			Name:    "age",
			Type:    schema.ColumnType{Family: schema.FamilyInt, Arity: schema.Required},
			Default: &expr,
		}},
	}}

	d := check.PureCheck(migration)

	assert.Empty(t, d.Warnings)
	assert.Empty(t, d.UnexecutableMigrations)
}

func TestPureCheckAutoIncrementColumnIsFine(t *testing.T) {
	t.Parallel()

	migration := &diff.DatabaseMigration{Steps: []diff.Step{
		&diff.AddColumn{Table: "users", Column: schema.Column{
			Name:          "id",
			Type:          schema.ColumnType{Family: schema.FamilyInt, Arity: schema.Required},
			AutoIncrement: true,
		}},
	}}

	d := check.PureCheck(migration)

	assert.Empty(t, d.UnexecutableMigrations)
}

func TestPureCheckRiskyCastWarns(t *testing.T) {
	t.Parallel()

	migration := &diff.DatabaseMigration{Steps: []diff.Step{
		&diff.AlterColumn{
			Table:      "users",
			Previous:   schema.Column{Name: "age", Type: schema.ColumnType{Family: schema.FamilyFloat, Arity: schema.Required}},
			Next:       schema.Column{Name: "age", Type: schema.ColumnType{Family: schema.FamilyInt, Arity: schema.Required}},
			Changes:    diff.ColumnChanges{FamilyChanged: true},
			TypeChange: diff.RiskyCast,
		},
	}}

	d := check.PureCheck(migration)

	require.Len(t, d.Warnings, 1)
	assert.Contains(t, d.Warnings[0].Description, "may lose data")
	assert.Empty(t, d.UnexecutableMigrations)
}

func TestPureCheckNotCastableIsUnexecutable(t *testing.T) {
	t.Parallel()

	migration := &diff.DatabaseMigration{Steps: []diff.Step{
		&diff.AlterColumn{
			Table:      "users",
			Previous:   schema.Column{Name: "c", Type: schema.ColumnType{Family: schema.FamilyString, Arity: schema.Required}},
			Next:       schema.Column{Name: "c", Type: schema.ColumnType{Family: schema.FamilyInt, Arity: schema.Required}},
			Changes:    diff.ColumnChanges{FamilyChanged: true},
			TypeChange: diff.NotCastable,
		},
	}}

	d := check.PureCheck(migration)

	require.Len(t, d.UnexecutableMigrations, 1)
	assert.Contains(t, d.UnexecutableMigrations[0].Description, "cannot be cast")
}

func TestPureCheckTighteningNullabilityWarns(t *testing.T) {
	t.Parallel()

	migration := &diff.DatabaseMigration{Steps: []diff.Step{
		&diff.AlterColumn{
			Table:    "users",
			Previous: schema.Column{Name: "email", Type: schema.ColumnType{Family: schema.FamilyString, Arity: schema.Nullable}},
			Next:     schema.Column{Name: "email", Type: schema.ColumnType{Family: schema.FamilyString, Arity: schema.Required}},
			Changes:  diff.ColumnChanges{ArityChanged: true},
		},
	}}

	d := check.PureCheck(migration)

	require.Len(t, d.Warnings, 1)
	assert.Contains(t, d.Warnings[0].Description, "NULL values")
}

func TestPureCheckRedefinitionWarnsAboutDroppedColumns(t *testing.T) {
	t.Parallel()

	migration := &diff.DatabaseMigration{Steps: []diff.Step{
		&diff.RedefineTables{Tables: []diff.TableRedefinition{
			{
				Previous: schema.Table{Name: "users", Columns: []schema.Column{
					{Name: "id", Type: schema.ColumnType{Family: schema.FamilyInt, Arity: schema.Required}},
					{Name: "legacy", Type: schema.ColumnType{Family: schema.FamilyString, Arity: schema.Nullable}},
				}},
				Next: schema.Table{Name: "users", Columns: []schema.Column{
					{Name: "id", Type: schema.ColumnType{Family: schema.FamilyInt, Arity: schema.Required}},
				}},
			},
		}},
	}}

	d := check.PureCheck(migration)

	require.Len(t, d.Warnings, 2)
	assert.Contains(t, d.Warnings[0].Description, `"legacy"`)
	assert.Contains(t, d.Warnings[1].Description, "rebuilt")
}

func TestPureCheckSafeMigrationIsClean(t *testing.T) {
	t.Parallel()

	migration := &diff.DatabaseMigration{Steps: []diff.Step{
		&diff.CreateTable{Table: schema.Table{Name: "users"}},
		&diff.CreateIndex{Table: "users", Index: schema.Index{Name: "idx", Columns: []string{"id"}, Type: schema.NormalIndex}},
	}}

	d := check.PureCheck(migration)

	assert.Empty(t, d.Warnings)
	assert.Empty(t, d.UnexecutableMigrations)
}
