// SPDX-License-Identifier: Apache-2.0

package diff

import (
	"fmt"
	"strings"

	"github.com/oapi-codegen/nullable"

	"github.com/pgshift/pgshift/pkg/schema"
)

// DatabaseMigration is an ordered list of typed steps bringing one schema in
// line with another. Steps are applied strictly in order.
type DatabaseMigration struct {
	Steps []Step
}

// IsEmpty reports whether the migration contains no steps.
func (m *DatabaseMigration) IsEmpty() bool {
	return m == nil || len(m.Steps) == 0
}

// Step is a single schema-change operation.
type Step interface {
	// Description is a human-readable summary of the step, used in warnings
	// and logs.
	Description() string
}

type CreateEnum struct {
	Enum schema.Enum
}

func (s *CreateEnum) Description() string {
	return fmt.Sprintf("create enum %q", s.Enum.Name)
}

type AlterEnum struct {
	Name          string
	AddedValues   []string
	DroppedValues []string

	// Values is the full value list after the change; needed to recreate
	// the type when values were dropped.
	Values []string
}

func (s *AlterEnum) Description() string {
	return fmt.Sprintf("alter enum %q", s.Name)
}

type DropEnum struct {
	Name string
}

func (s *DropEnum) Description() string {
	return fmt.Sprintf("drop enum %q", s.Name)
}

type CreateTable struct {
	Table schema.Table
}

func (s *CreateTable) Description() string {
	return fmt.Sprintf("create table %q", s.Table.Name)
}

type DropTable struct {
	Name string
}

func (s *DropTable) Description() string {
	return fmt.Sprintf("drop table %q", s.Name)
}

type AddColumn struct {
	Table  string
	Column schema.Column
}

func (s *AddColumn) Description() string {
	return fmt.Sprintf("add column %q to table %q", s.Column.Name, s.Table)
}

type DropColumn struct {
	Table  string
	Column string
}

func (s *DropColumn) Description() string {
	return fmt.Sprintf("drop column %q from table %q", s.Column, s.Table)
}

// AlterColumn changes one column in place. Previous and Next carry the full
// column definitions; Changes records which aspects differ and TypeChange the
// dialect's riskiness classification for the type change, if any.
//
// DefaultChange is a tri-state: unspecified means the default is unchanged,
// explicit null means the default is dropped, a value means it is set.
type AlterColumn struct {
	Table         string
	Previous      schema.Column
	Next          schema.Column
	Changes       ColumnChanges
	TypeChange    ColumnTypeChange
	DefaultChange nullable.Nullable[string]
}

func (s *AlterColumn) Description() string {
	return fmt.Sprintf("alter column %q on table %q", s.Next.Name, s.Table)
}

type CreateIndex struct {
	Table string
	Index schema.Index
}

func (s *CreateIndex) Description() string {
	return fmt.Sprintf("create index %q on table %q", s.Index.Name, s.Table)
}

type DropIndex struct {
	Table string
	Index string
}

func (s *DropIndex) Description() string {
	return fmt.Sprintf("drop index %q on table %q", s.Index, s.Table)
}

type AddForeignKey struct {
	Table      string
	ForeignKey schema.ForeignKey
}

func (s *AddForeignKey) Description() string {
	return fmt.Sprintf("add foreign key on table %q referencing %q (%s)",
		s.Table, s.ForeignKey.ReferencedTable, strings.Join(s.ForeignKey.Columns, ", "))
}

type DropForeignKey struct {
	Table          string
	ConstraintName string
}

func (s *DropForeignKey) Description() string {
	return fmt.Sprintf("drop foreign key %q on table %q", s.ConstraintName, s.Table)
}

// RedefineTables rebuilds each listed table from scratch, copying the rows
// over. Dialects put a table here when in-place alteration is impossible.
type RedefineTables struct {
	Tables []TableRedefinition

	// RecreatePrimaryKey is set when the dialect requires the primary key
	// to be recreated together with the columns.
	RecreatePrimaryKey bool
}

type TableRedefinition struct {
	Previous schema.Table
	Next     schema.Table
}

func (s *RedefineTables) Description() string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Next.Name
	}
	return fmt.Sprintf("redefine tables %s", strings.Join(names, ", "))
}
