// SPDX-License-Identifier: Apache-2.0

package schema

import "encoding/json"

// Walkers are lightweight, non-owning views over an immutable Schema. They
// hold the schema pointer plus integer indices, so they are cheap to copy and
// stable across lookups. Lookups by name return a second boolean result;
// lookups by index are infallible because the caller owns the index.

// WalkTables returns a walker for every table in the schema, in order.
func (s *Schema) WalkTables() []TableWalker {
	walkers := make([]TableWalker, len(s.Tables))
	for i := range s.Tables {
		walkers[i] = TableWalker{schema: s, tableIndex: i}
	}
	return walkers
}

// Table returns a walker for the table at the given index.
func (s *Schema) Table(index int) TableWalker {
	return TableWalker{schema: s, tableIndex: index}
}

// TableByName returns a walker for the named table.
func (s *Schema) TableByName(name string) (TableWalker, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return TableWalker{schema: s, tableIndex: i}, true
		}
	}
	return TableWalker{}, false
}

// WalkEnums returns a walker for every enum in the schema, in order.
func (s *Schema) WalkEnums() []EnumWalker {
	walkers := make([]EnumWalker, len(s.Enums))
	for i := range s.Enums {
		walkers[i] = EnumWalker{schema: s, enumIndex: i}
	}
	return walkers
}

// EnumByName returns a walker for the named enum.
func (s *Schema) EnumByName(name string) (EnumWalker, bool) {
	for i := range s.Enums {
		if s.Enums[i].Name == name {
			return EnumWalker{schema: s, enumIndex: i}, true
		}
	}
	return EnumWalker{}, false
}

// TableWalker is a view over one table of a schema.
type TableWalker struct {
	schema     *Schema
	tableIndex int
}

// Table returns the underlying table.
func (w TableWalker) Table() *Table { return &w.schema.Tables[w.tableIndex] }

// Index returns the position of the table within the schema.
func (w TableWalker) Index() int { return w.tableIndex }

// Schema returns the schema the table belongs to.
func (w TableWalker) Schema() *Schema { return w.schema }

// Name returns the table name.
func (w TableWalker) Name() string { return w.Table().Name }

// WalkColumns returns a walker for every column of the table, in physical
// order.
func (w TableWalker) WalkColumns() []ColumnWalker {
	columns := make([]ColumnWalker, len(w.Table().Columns))
	for i := range columns {
		columns[i] = ColumnWalker{schema: w.schema, tableIndex: w.tableIndex, columnIndex: i}
	}
	return columns
}

// Column returns a walker for the named column.
func (w TableWalker) Column(name string) (ColumnWalker, bool) {
	for i, c := range w.Table().Columns {
		if c.Name == name {
			return ColumnWalker{schema: w.schema, tableIndex: w.tableIndex, columnIndex: i}, true
		}
	}
	return ColumnWalker{}, false
}

// WalkIndexes returns a walker for every index of the table.
func (w TableWalker) WalkIndexes() []IndexWalker {
	indexes := make([]IndexWalker, len(w.Table().Indexes))
	for i := range indexes {
		indexes[i] = IndexWalker{schema: w.schema, tableIndex: w.tableIndex, indexIndex: i}
	}
	return indexes
}

// WalkForeignKeys returns a walker for every foreign key of the table.
func (w TableWalker) WalkForeignKeys() []ForeignKeyWalker {
	fks := make([]ForeignKeyWalker, len(w.Table().ForeignKeys))
	for i := range fks {
		fks[i] = ForeignKeyWalker{schema: w.schema, tableIndex: w.tableIndex, fkIndex: i}
	}
	return fks
}

// PrimaryKey returns the table's primary key, or nil.
func (w TableWalker) PrimaryKey() *PrimaryKey { return w.Table().PrimaryKey }

// ColumnWalker is a view over one column of a table.
type ColumnWalker struct {
	schema      *Schema
	tableIndex  int
	columnIndex int
}

// Column returns the underlying column.
func (w ColumnWalker) Column() *Column { return &w.schema.Tables[w.tableIndex].Columns[w.columnIndex] }

// Table returns a walker for the owning table.
func (w ColumnWalker) Table() TableWalker {
	return TableWalker{schema: w.schema, tableIndex: w.tableIndex}
}

// Name returns the column name.
func (w ColumnWalker) Name() string { return w.Column().Name }

// Type returns the full column type.
func (w ColumnWalker) Type() ColumnType { return w.Column().Type }

// Family returns the column's type family.
func (w ColumnWalker) Family() Family { return w.Column().Type.Family }

// Arity returns the column's arity.
func (w ColumnWalker) Arity() Arity { return w.Column().Type.Arity }

// Default returns the column's default expression, or nil.
func (w ColumnWalker) Default() *string { return w.Column().Default }

// IsAutoIncrement reports whether the column is an auto-incrementing integer.
func (w ColumnWalker) IsAutoIncrement() bool { return w.Column().AutoIncrement }

// EnumType resolves the enum behind an enum-family column.
func (w ColumnWalker) EnumType() (EnumWalker, bool) {
	if w.Family() != FamilyEnum {
		return EnumWalker{}, false
	}
	return w.schema.EnumByName(w.Column().Type.EnumName)
}

// IsPartOfPrimaryKey reports whether the column is part of the table's
// primary key.
func (w ColumnWalker) IsPartOfPrimaryKey() bool {
	pk := w.Table().PrimaryKey()
	if pk == nil {
		return false
	}
	for _, name := range pk.Columns {
		if name == w.Name() {
			return true
		}
	}
	return false
}

// NativeTypeAs deserializes the column's opaque native type token into T.
// The second result is false when the column carries no native type.
func NativeTypeAs[T any](w ColumnWalker) (T, bool, error) {
	var out T
	raw := w.Column().Type.NativeType
	if len(raw) == 0 {
		return out, false, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

// IndexWalker is a view over one index of a table.
type IndexWalker struct {
	schema     *Schema
	tableIndex int
	indexIndex int
}

// Index returns the underlying index.
func (w IndexWalker) Index() *Index { return &w.schema.Tables[w.tableIndex].Indexes[w.indexIndex] }

// Table returns a walker for the owning table.
func (w IndexWalker) Table() TableWalker {
	return TableWalker{schema: w.schema, tableIndex: w.tableIndex}
}

// Name returns the index name.
func (w IndexWalker) Name() string { return w.Index().Name }

// IsUnique reports whether the index is a unique index.
func (w IndexWalker) IsUnique() bool { return w.Index().Type == UniqueIndex }

// Columns returns the key column names of the index.
func (w IndexWalker) Columns() []string { return w.Index().Columns }

// ForeignKeyWalker is a view over one foreign key of a table.
type ForeignKeyWalker struct {
	schema     *Schema
	tableIndex int
	fkIndex    int
}

// ForeignKey returns the underlying foreign key.
func (w ForeignKeyWalker) ForeignKey() *ForeignKey {
	return &w.schema.Tables[w.tableIndex].ForeignKeys[w.fkIndex]
}

// Table returns a walker for the owning table.
func (w ForeignKeyWalker) Table() TableWalker {
	return TableWalker{schema: w.schema, tableIndex: w.tableIndex}
}

// ConstraintName returns the constraint name, which may be empty.
func (w ForeignKeyWalker) ConstraintName() string { return w.ForeignKey().ConstraintName }

// ReferencedTable resolves the table the foreign key points at.
func (w ForeignKeyWalker) ReferencedTable() (TableWalker, bool) {
	return w.schema.TableByName(w.ForeignKey().ReferencedTable)
}

// EnumWalker is a view over one enum of a schema.
type EnumWalker struct {
	schema    *Schema
	enumIndex int
}

// Enum returns the underlying enum.
func (w EnumWalker) Enum() *Enum { return &w.schema.Enums[w.enumIndex] }

// Name returns the enum name.
func (w EnumWalker) Name() string { return w.Enum().Name }

// Values returns the ordered enum values.
func (w EnumWalker) Values() []string { return w.Enum().Values }
