// SPDX-License-Identifier: Apache-2.0

package diff

import (
	"github.com/oapi-codegen/nullable"

	"github.com/pgshift/pgshift/pkg/schema"
)

// Diff computes the migration that brings `previous` in agreement with
// `next`. It is a pure function of its inputs: no clock, no randomness, and
// the emitted step order depends only on the input order.
//
// Steps are emitted phase by phase: create enums, create tables, alter
// columns and indexes (including table redefinitions), add foreign keys, drop
// foreign keys, drop tables, drop enums. Within a phase, input order is
// preserved.
func Diff(previous, next *schema.Schema, flavour Flavour) *DatabaseMigration {
	d := NewDiffer(previous, next, flavour)
	return d.migration()
}

// Differ pairs up the entities of two schemas. Flavour hooks receive it to
// inspect the pairing when making dialect decisions.
type Differ struct {
	previous *schema.Schema
	next     *schema.Schema
	flavour  Flavour
}

// NewDiffer returns a differ over the two schemas.
func NewDiffer(previous, next *schema.Schema, flavour Flavour) *Differ {
	return &Differ{previous: previous, next: next, flavour: flavour}
}

// TablePairs returns the tables present on both sides, paired by name, in
// the order of the next schema.
func (d *Differ) TablePairs() []TablePair {
	var pairs []TablePair
	for _, nextTable := range d.next.WalkTables() {
		if prevTable, ok := d.previous.TableByName(nextTable.Name()); ok {
			pairs = append(pairs, TablePair{Previous: prevTable, Next: nextTable})
		}
	}
	return pairs
}

// CreatedTables returns the tables only present in the next schema.
func (d *Differ) CreatedTables() []schema.TableWalker {
	var created []schema.TableWalker
	for _, table := range d.next.WalkTables() {
		if _, ok := d.previous.TableByName(table.Name()); !ok {
			created = append(created, table)
		}
	}
	return created
}

// DroppedTables returns the tables only present in the previous schema.
func (d *Differ) DroppedTables() []schema.TableWalker {
	var dropped []schema.TableWalker
	for _, table := range d.previous.WalkTables() {
		if _, ok := d.next.TableByName(table.Name()); !ok {
			dropped = append(dropped, table)
		}
	}
	return dropped
}

func (d *Differ) migration() *DatabaseMigration {
	m := &DatabaseMigration{}

	// Create enums
	for _, enum := range d.next.WalkEnums() {
		if _, ok := d.previous.EnumByName(enum.Name()); !ok {
			m.Steps = append(m.Steps, &CreateEnum{Enum: *enum.Enum()})
		}
	}
	for _, nextEnum := range d.next.WalkEnums() {
		prevEnum, ok := d.previous.EnumByName(nextEnum.Name())
		if !ok {
			continue
		}
		added, dropped := diffStrings(prevEnum.Values(), nextEnum.Values())
		if len(added) > 0 || len(dropped) > 0 {
			m.Steps = append(m.Steps, &AlterEnum{
				Name:          nextEnum.Name(),
				AddedValues:   added,
				DroppedValues: dropped,
				Values:        nextEnum.Values(),
			})
		}
	}

	// Create tables, with their indexes
	for _, table := range d.CreatedTables() {
		m.Steps = append(m.Steps, &CreateTable{Table: *table.Table()})
		for _, index := range table.WalkIndexes() {
			if d.flavour.ShouldSkipIndexForNewTable(index) {
				continue
			}
			m.Steps = append(m.Steps, &CreateIndex{Table: table.Name(), Index: *index.Index()})
		}
	}

	// Alter columns and indexes
	redefine := d.flavour.TablesToRedefine(d)
	var redefinitions []TableRedefinition
	for _, pair := range d.TablePairs() {
		if redefine[pair.Next.Name()] {
			redefinitions = append(redefinitions, TableRedefinition{
				Previous: *pair.Previous.Table(),
				Next:     *pair.Next.Table(),
			})
			continue
		}
		m.Steps = append(m.Steps, d.tableSteps(pair)...)
	}
	if len(redefinitions) > 0 {
		m.Steps = append(m.Steps, &RedefineTables{
			Tables:             redefinitions,
			RecreatePrimaryKey: d.flavour.ShouldRecreatePrimaryKeyOnColumnRecreate(),
		})
	}

	// Add foreign keys
	for _, table := range d.CreatedTables() {
		for _, fk := range table.WalkForeignKeys() {
			m.Steps = append(m.Steps, &AddForeignKey{Table: table.Name(), ForeignKey: *fk.ForeignKey()})
		}
	}
	for _, pair := range d.TablePairs() {
		for _, fk := range pair.AddedForeignKeys() {
			m.Steps = append(m.Steps, &AddForeignKey{Table: pair.Next.Name(), ForeignKey: *fk.ForeignKey()})
		}
	}

	// Drop foreign keys
	for _, pair := range d.TablePairs() {
		for _, fk := range pair.DroppedForeignKeys() {
			m.Steps = append(m.Steps, &DropForeignKey{
				Table:          pair.Previous.Name(),
				ConstraintName: fk.ConstraintName(),
			})
		}
	}

	// Drop tables
	for _, table := range d.DroppedTables() {
		m.Steps = append(m.Steps, &DropTable{Name: table.Name()})
	}

	// Drop enums
	for _, enum := range d.previous.WalkEnums() {
		if _, ok := d.next.EnumByName(enum.Name()); !ok {
			m.Steps = append(m.Steps, &DropEnum{Name: enum.Name()})
		}
	}

	return m
}

// tableSteps emits the column and index level steps for one table pair.
func (d *Differ) tableSteps(pair TablePair) []Step {
	var steps []Step

	for _, column := range pair.AddedColumns() {
		steps = append(steps, &AddColumn{Table: pair.Next.Name(), Column: *column.Column()})
	}

	for _, columns := range pair.ColumnPairs() {
		changes := columns.Changes()
		if !changes.Any() {
			continue
		}
		steps = append(steps, &AlterColumn{
			Table:         pair.Next.Name(),
			Previous:      *columns.Previous.Column(),
			Next:          *columns.Next.Column(),
			Changes:       changes,
			TypeChange:    d.flavour.ColumnTypeChange(columns),
			DefaultChange: columns.defaultChange(),
		})
	}

	for _, column := range pair.DroppedColumns() {
		steps = append(steps, &DropColumn{Table: pair.Previous.Name(), Column: column.Name()})
	}

	for _, index := range pair.CreatedIndexes() {
		steps = append(steps, &CreateIndex{Table: pair.Next.Name(), Index: *index.Index()})
	}
	for _, index := range pair.DroppedIndexes() {
		steps = append(steps, &DropIndex{Table: pair.Previous.Name(), Index: index.Name()})
	}

	return steps
}

// TablePair is a table present in both schemas.
type TablePair struct {
	Previous schema.TableWalker
	Next     schema.TableWalker
}

// ColumnPairs returns the columns present on both sides, paired by name, in
// the order of the next table.
func (p TablePair) ColumnPairs() []ColumnPair {
	var pairs []ColumnPair
	for _, nextColumn := range p.Next.WalkColumns() {
		if prevColumn, ok := p.Previous.Column(nextColumn.Name()); ok {
			pairs = append(pairs, ColumnPair{Previous: prevColumn, Next: nextColumn})
		}
	}
	return pairs
}

// AddedColumns returns the columns only present in the next table.
func (p TablePair) AddedColumns() []schema.ColumnWalker {
	var added []schema.ColumnWalker
	for _, column := range p.Next.WalkColumns() {
		if _, ok := p.Previous.Column(column.Name()); !ok {
			added = append(added, column)
		}
	}
	return added
}

// DroppedColumns returns the columns only present in the previous table.
func (p TablePair) DroppedColumns() []schema.ColumnWalker {
	var dropped []schema.ColumnWalker
	for _, column := range p.Previous.WalkColumns() {
		if _, ok := p.Next.Column(column.Name()); !ok {
			dropped = append(dropped, column)
		}
	}
	return dropped
}

// CreatedIndexes returns the indexes only present in the next table, paired
// by name.
func (p TablePair) CreatedIndexes() []schema.IndexWalker {
	var created []schema.IndexWalker
	for _, index := range p.Next.WalkIndexes() {
		if !hasIndex(p.Previous, index.Name()) {
			created = append(created, index)
		}
	}
	return created
}

// DroppedIndexes returns the indexes only present in the previous table.
func (p TablePair) DroppedIndexes() []schema.IndexWalker {
	var dropped []schema.IndexWalker
	for _, index := range p.Previous.WalkIndexes() {
		if !hasIndex(p.Next, index.Name()) {
			dropped = append(dropped, index)
		}
	}
	return dropped
}

// AddedForeignKeys returns the foreign keys only present in the next table.
// Named keys pair by constraint name, unnamed keys structurally.
func (p TablePair) AddedForeignKeys() []schema.ForeignKeyWalker {
	var added []schema.ForeignKeyWalker
	for _, fk := range p.Next.WalkForeignKeys() {
		if findForeignKey(p.Previous, fk) == nil {
			added = append(added, fk)
		}
	}
	return added
}

// DroppedForeignKeys returns the foreign keys only present in the previous
// table.
func (p TablePair) DroppedForeignKeys() []schema.ForeignKeyWalker {
	var dropped []schema.ForeignKeyWalker
	for _, fk := range p.Previous.WalkForeignKeys() {
		if findForeignKey(p.Next, fk) == nil {
			dropped = append(dropped, fk)
		}
	}
	return dropped
}

func hasIndex(table schema.TableWalker, name string) bool {
	for _, index := range table.WalkIndexes() {
		if index.Name() == name {
			return true
		}
	}
	return false
}

func findForeignKey(table schema.TableWalker, fk schema.ForeignKeyWalker) *schema.ForeignKey {
	for _, candidate := range table.WalkForeignKeys() {
		if fk.ConstraintName() != "" || candidate.ConstraintName() != "" {
			if candidate.ConstraintName() == fk.ConstraintName() {
				return candidate.ForeignKey()
			}
			continue
		}
		if candidate.ForeignKey().EqualStructurally(*fk.ForeignKey()) {
			return candidate.ForeignKey()
		}
	}
	return nil
}

// ColumnPair is a column present in both sides of a table pair.
type ColumnPair struct {
	Previous schema.ColumnWalker
	Next     schema.ColumnWalker
}

// Changes reports which aspects of the column differ.
func (p ColumnPair) Changes() ColumnChanges {
	prev, next := p.Previous.Column(), p.Next.Column()
	return ColumnChanges{
		FamilyChanged: prev.Type.Family != next.Type.Family ||
			prev.Type.EnumName != next.Type.EnumName,
		ArityChanged:         prev.Type.Arity != next.Type.Arity,
		NativeTypeChanged:    !nativeTypesEqual(prev.Type, next.Type),
		DefaultChanged:       !defaultsEqual(prev.Default, next.Default),
		AutoIncrementChanged: prev.AutoIncrement != next.AutoIncrement,
	}
}

// AutoincrementChanged reports whether the auto-increment property changed.
func (p ColumnPair) AutoincrementChanged() bool {
	return p.Previous.IsAutoIncrement() != p.Next.IsAutoIncrement()
}

func (p ColumnPair) defaultChange() nullable.Nullable[string] {
	var change nullable.Nullable[string]
	if defaultsEqual(p.Previous.Default(), p.Next.Default()) {
		return change
	}
	if next := p.Next.Default(); next != nil {
		change.Set(*next)
	} else {
		change.SetNull()
	}
	return change
}

func nativeTypesEqual(prev, next schema.ColumnType) bool {
	// A side without a native type token compares equal to any token, so
	// that a described schema (which always carries tokens) does not
	// spuriously differ from a data model that leaves them implicit.
	if len(prev.NativeType) == 0 || len(next.NativeType) == 0 {
		return true
	}
	return string(prev.NativeType) == string(next.NativeType)
}

func defaultsEqual(prev, next *string) bool {
	if prev == nil || next == nil {
		return prev == next
	}
	return *prev == *next
}

func diffStrings(previous, next []string) (added, dropped []string) {
	for _, v := range next {
		if !containsString(previous, v) {
			added = append(added, v)
		}
	}
	for _, v := range previous {
		if !containsString(next, v) {
			dropped = append(dropped, v)
		}
	}
	return added, dropped
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
