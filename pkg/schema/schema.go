// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"slices"
)

// Schema is the normalized, in-memory representation of a relational
// database's structure. It is produced either by a describer introspecting a
// live database or by reading a declarative data model file, and is treated
// as immutable after construction.
//
// Tables and enums are held in canonical order (sorted by name for
// describers); all comparisons are order-sensitive.
type Schema struct {
	// Name is the name of the database schema (e.g. "public")
	Name string `json:"name"`

	// Tables, in canonical order
	Tables []Table `json:"tables"`

	// Enums, in canonical order
	Enums []Enum `json:"enums,omitempty"`
}

// Table represents a table in the schema
type Table struct {
	Name string `json:"name"`

	// Columns in physical order
	Columns []Column `json:"columns"`

	// Indexes defined on the table, primary key excluded
	Indexes []Index `json:"indexes,omitempty"`

	// ForeignKeys defined on the table
	ForeignKeys []ForeignKey `json:"foreignKeys,omitempty"`

	// PrimaryKey is nil for tables without one
	PrimaryKey *PrimaryKey `json:"primaryKey,omitempty"`
}

// Enum is a named enumerated type with an ordered value list
type Enum struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Family classifies a column type independently of the dialect
type Family string

const (
	FamilyInt      Family = "int"
	FamilyFloat    Family = "float"
	FamilyString   Family = "string"
	FamilyBoolean  Family = "boolean"
	FamilyDateTime Family = "datetime"
	FamilyBytes    Family = "bytes"
	FamilyDecimal  Family = "decimal"
	FamilyJSON     Family = "json"
	FamilyUUID     Family = "uuid"
	FamilyEnum     Family = "enum"
)

// Arity is the nullability/cardinality of a column
type Arity string

const (
	Required Arity = "required"
	Nullable Arity = "nullable"
	List     Arity = "list"
)

// ColumnType is the full type of a column. NativeType is an opaque
// dialect-specific token; dialects deserialize it with NativeTypeAs.
type ColumnType struct {
	Family Family `json:"family"`
	Arity  Arity  `json:"arity"`

	// EnumName is set when Family is FamilyEnum
	EnumName string `json:"enumName,omitempty"`

	// NativeType is the dialect-specific type token, if any
	NativeType json.RawMessage `json:"nativeType,omitempty"`
}

// Column represents a column in a table
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`

	// Default is the rendered default expression, nil when the column has
	// no default
	Default *string `json:"default,omitempty"`

	AutoIncrement bool `json:"autoIncrement,omitempty"`
}

// IndexType distinguishes unique from plain indexes
type IndexType string

const (
	UniqueIndex IndexType = "unique"
	NormalIndex IndexType = "normal"
)

// Index represents an index on a table
type Index struct {
	Name    string    `json:"name"`
	Columns []string  `json:"columns"`
	Type    IndexType `json:"type"`
}

// ForeignKeyAction is a referential action
type ForeignKeyAction string

const (
	NoAction   ForeignKeyAction = "NO ACTION"
	Restrict   ForeignKeyAction = "RESTRICT"
	Cascade    ForeignKeyAction = "CASCADE"
	SetNull    ForeignKeyAction = "SET NULL"
	SetDefault ForeignKeyAction = "SET DEFAULT"
)

// ForeignKey represents a foreign key on a table
type ForeignKey struct {
	// ConstraintName may be empty; unnamed foreign keys are matched
	// structurally
	ConstraintName string `json:"constraintName,omitempty"`

	Columns           []string         `json:"columns"`
	ReferencedTable   string           `json:"referencedTable"`
	ReferencedColumns []string         `json:"referencedColumns"`
	OnDelete          ForeignKeyAction `json:"onDelete"`
	OnUpdate          ForeignKeyAction `json:"onUpdate"`
}

// PrimaryKey represents a table's primary key
type PrimaryKey struct {
	Columns []string `json:"columns"`

	// Sequence is the name of the sequence backing the key, if any
	Sequence string `json:"sequence,omitempty"`
}

// Equal reports whether two schemas are structurally identical. Ordered
// fields (tables, columns, enum values) compare order-sensitively.
func (s *Schema) Equal(other *Schema) bool {
	return slices.EqualFunc(s.Tables, other.Tables, Table.equal) &&
		slices.EqualFunc(s.Enums, other.Enums, Enum.equal)
}

func (t Table) equal(other Table) bool {
	return t.Name == other.Name &&
		slices.EqualFunc(t.Columns, other.Columns, Column.equal) &&
		slices.EqualFunc(t.Indexes, other.Indexes, Index.equal) &&
		slices.EqualFunc(t.ForeignKeys, other.ForeignKeys, ForeignKey.Equal) &&
		t.PrimaryKey.equal(other.PrimaryKey)
}

func (e Enum) equal(other Enum) bool {
	return e.Name == other.Name && slices.Equal(e.Values, other.Values)
}

func (c Column) equal(other Column) bool {
	return c.Name == other.Name &&
		c.Type.Equal(other.Type) &&
		equalPtr(c.Default, other.Default) &&
		c.AutoIncrement == other.AutoIncrement
}

// Equal reports whether two column types are identical, including the opaque
// native type token.
func (t ColumnType) Equal(other ColumnType) bool {
	return t.Family == other.Family &&
		t.Arity == other.Arity &&
		t.EnumName == other.EnumName &&
		slices.Equal(t.NativeType, other.NativeType)
}

func (i Index) equal(other Index) bool {
	return i.Name == other.Name &&
		i.Type == other.Type &&
		slices.Equal(i.Columns, other.Columns)
}

// Equal reports whether two foreign keys are identical, constraint name
// included.
func (fk ForeignKey) Equal(other ForeignKey) bool {
	return fk.ConstraintName == other.ConstraintName && fk.EqualStructurally(other) &&
		fk.OnDelete == other.OnDelete && fk.OnUpdate == other.OnUpdate
}

// EqualStructurally reports whether two foreign keys constrain the same
// columns against the same referenced columns, ignoring names and actions.
// Used to pair unnamed foreign keys.
func (fk ForeignKey) EqualStructurally(other ForeignKey) bool {
	return slices.Equal(fk.Columns, other.Columns) &&
		fk.ReferencedTable == other.ReferencedTable &&
		slices.Equal(fk.ReferencedColumns, other.ReferencedColumns)
}

func (pk *PrimaryKey) equal(other *PrimaryKey) bool {
	if pk == nil || other == nil {
		return pk == other
	}
	return slices.Equal(pk.Columns, other.Columns) && pk.Sequence == other.Sequence
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
