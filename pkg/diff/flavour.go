// SPDX-License-Identifier: Apache-2.0

package diff

import "github.com/pgshift/pgshift/pkg/schema"

// ColumnTypeChange classifies the riskiness of a column type change.
type ColumnTypeChange int

const (
	// NoTypeChange means the type did not change.
	NoTypeChange ColumnTypeChange = iota
	// SafeCast is lossless for all values of the previous type.
	SafeCast
	// RiskyCast may lose precision or fail for some values.
	RiskyCast
	// NotCastable cannot be performed in place on existing data.
	NotCastable
)

func (c ColumnTypeChange) String() string {
	switch c {
	case NoTypeChange:
		return "none"
	case SafeCast:
		return "safe"
	case RiskyCast:
		return "risky"
	case NotCastable:
		return "not castable"
	default:
		return "unknown"
	}
}

// Flavour is the dialect-specific hook set the differ consults. A flavour is
// chosen at connection time from the connection URL's scheme.
type Flavour interface {
	// ShouldSkipIndexForNewTable reports whether the given index must not
	// be created as part of a new table's creation step (for example
	// because the dialect creates it implicitly with a constraint).
	ShouldSkipIndexForNewTable(index schema.IndexWalker) bool

	// ShouldRecreatePrimaryKeyOnColumnRecreate reports whether redefining
	// a table's columns requires the primary key to be recreated too.
	ShouldRecreatePrimaryKeyOnColumnRecreate() bool

	// TablesToRedefine returns the names of tables that must be rebuilt
	// from scratch instead of altered column by column.
	TablesToRedefine(d *Differ) map[string]bool

	// ColumnTypeChange classifies the type change between the two sides of
	// a column pair. NoTypeChange means the type is unchanged.
	ColumnTypeChange(pair ColumnPair) ColumnTypeChange
}

// TablesToRedefineDefault is the default rule: a table is redefined when at
// least one column changed its auto-increment property, or when every column
// pair of the table changed family with a NotCastable classification.
func TablesToRedefineDefault(d *Differ) map[string]bool {
	redefine := make(map[string]bool)

	for _, pair := range d.TablePairs() {
		autoincrementChanged := false
		for _, columns := range pair.ColumnPairs() {
			if columns.AutoincrementChanged() {
				autoincrementChanged = true
				break
			}
		}
		if autoincrementChanged {
			redefine[pair.Next.Name()] = true
			continue
		}

		allDropped := len(pair.ColumnPairs()) > 0
		for _, columns := range pair.ColumnPairs() {
			familyChanged := columns.Previous.Family() != columns.Next.Family()
			if !familyChanged || d.flavour.ColumnTypeChange(columns) != NotCastable {
				allDropped = false
				break
			}
		}
		if allDropped {
			redefine[pair.Next.Name()] = true
		}
	}

	return redefine
}

// ColumnChanges records which aspects of a column differ between the two
// sides of a pair.
type ColumnChanges struct {
	FamilyChanged        bool
	ArityChanged         bool
	NativeTypeChanged    bool
	DefaultChanged       bool
	AutoIncrementChanged bool
}

// Any reports whether anything changed at all.
func (c ColumnChanges) Any() bool {
	return c.FamilyChanged || c.ArityChanged || c.NativeTypeChanged ||
		c.DefaultChanged || c.AutoIncrementChanged
}

// TypeChanged reports whether the column's type (family, arity or native
// type) changed.
func (c ColumnChanges) TypeChanged() bool {
	return c.FamilyChanged || c.ArityChanged || c.NativeTypeChanged
}
