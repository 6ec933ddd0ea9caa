// SPDX-License-Identifier: Apache-2.0

package diff

import (
	"github.com/pgshift/pgshift/pkg/schema"
)

// PostgresType is the native type token attached to columns described from a
// Postgres database.
type PostgresType struct {
	// Name is the canonical type name (e.g. "int4", "varchar", "numeric")
	Name string `json:"name"`

	// Length applies to varchar/char/bit types; 0 means unbounded
	Length int `json:"length,omitempty"`

	// Precision and Scale apply to numeric types
	Precision int `json:"precision,omitempty"`
	Scale     int `json:"scale,omitempty"`
}

// PostgresFlavour implements the dialect hooks for Postgres.
type PostgresFlavour struct{}

func (PostgresFlavour) ShouldSkipIndexForNewTable(index schema.IndexWalker) bool {
	return false
}

func (PostgresFlavour) ShouldRecreatePrimaryKeyOnColumnRecreate() bool {
	return false
}

func (f PostgresFlavour) TablesToRedefine(d *Differ) map[string]bool {
	return TablesToRedefineDefault(d)
}

func (f PostgresFlavour) ColumnTypeChange(pair ColumnPair) ColumnTypeChange {
	prev, prevOk, prevErr := schema.NativeTypeAs[PostgresType](pair.Previous)
	next, nextOk, nextErr := schema.NativeTypeAs[PostgresType](pair.Next)

	// Without native types on both sides, fall back to the family table.
	// Undecodable tokens are treated the same way.
	if prevErr != nil || nextErr != nil || !prevOk || !nextOk {
		return familyTypeChange(pair)
	}

	if prev == next {
		if pair.Previous.Family() == pair.Next.Family() {
			return NoTypeChange
		}
		return familyTypeChange(pair)
	}

	return nativeTypeChange(prev, next)
}

// familyTypeChange is the family-level fallback table: anything casts safely
// to a string; strings to numbers and datetimes to floats cannot be cast;
// every other family change is risky.
func familyTypeChange(pair ColumnPair) ColumnTypeChange {
	prev, next := pair.Previous.Family(), pair.Next.Family()
	if prev == next {
		return NoTypeChange
	}

	switch {
	case next == schema.FamilyString:
		return SafeCast
	case prev == schema.FamilyString && next == schema.FamilyInt,
		prev == schema.FamilyString && next == schema.FamilyFloat,
		prev == schema.FamilyDateTime && next == schema.FamilyFloat:
		return NotCastable
	default:
		return RiskyCast
	}
}

// nativeTypeChange is the Postgres native-type matrix. The lookup is
// two-level: the previous type's name selects a row function, which then
// classifies against the next type, taking length/precision parameters into
// account.
func nativeTypeChange(prev, next PostgresType) ColumnTypeChange {
	if row, ok := postgresCastMatrix[prev.Name]; ok {
		return row(prev, next)
	}
	return RiskyCast
}

// intBits maps the integer type names to their width in bytes.
var intBits = map[string]int{"int2": 2, "int4": 4, "int8": 8}

// numericHolds reports whether a numeric(p,s) target can hold every value of
// an integer type with the given decimal digit count.
func numericHolds(next PostgresType, digits int) ColumnTypeChange {
	if next.Precision == 0 {
		// Unconstrained numeric holds anything.
		return SafeCast
	}
	if next.Precision-next.Scale < digits {
		return RiskyCast
	}
	return SafeCast
}

var postgresCastMatrix = map[string]func(prev, next PostgresType) ColumnTypeChange{
	"bool": func(_, next PostgresType) ColumnTypeChange {
		switch next.Name {
		case "int2", "int4", "int8", "text", "varchar", "char":
			return SafeCast
		case "float4", "float8", "numeric":
			return RiskyCast
		default:
			return NotCastable
		}
	},

	"int2": intRow(5),
	"int4": intRow(10),
	"int8": intRow(19),

	"float4": func(_, next PostgresType) ColumnTypeChange {
		switch next.Name {
		case "float8", "text", "varchar":
			return SafeCast
		case "int2", "int4", "int8", "numeric", "float4":
			return RiskyCast
		default:
			return NotCastable
		}
	},
	"float8": func(_, next PostgresType) ColumnTypeChange {
		switch next.Name {
		case "text", "varchar":
			return SafeCast
		case "int2", "int4", "int8", "numeric", "float4":
			return RiskyCast
		default:
			return NotCastable
		}
	},

	"numeric": func(prev, next PostgresType) ColumnTypeChange {
		switch next.Name {
		case "text", "varchar":
			return SafeCast
		case "numeric":
			if next.Precision == 0 {
				return SafeCast
			}
			if prev.Precision == 0 ||
				next.Precision-next.Scale < prev.Precision-prev.Scale ||
				next.Scale < prev.Scale {
				return RiskyCast
			}
			return SafeCast
		case "int2", "int4", "int8", "float4", "float8":
			return RiskyCast
		default:
			return NotCastable
		}
	},

	"text":    stringRow,
	"varchar": stringRow,
	"char":    stringRow,
	"bpchar":  stringRow,

	"bytea": func(_, next PostgresType) ColumnTypeChange {
		switch next.Name {
		case "text", "varchar":
			return SafeCast
		default:
			return NotCastable
		}
	},

	"timestamp": func(_, next PostgresType) ColumnTypeChange {
		switch next.Name {
		case "timestamptz", "text", "varchar":
			return SafeCast
		case "date", "time":
			return RiskyCast
		default:
			return NotCastable
		}
	},
	"timestamptz": func(_, next PostgresType) ColumnTypeChange {
		switch next.Name {
		case "text", "varchar":
			return SafeCast
		case "timestamp", "date", "time", "timetz":
			return RiskyCast
		default:
			return NotCastable
		}
	},
	"date": func(_, next PostgresType) ColumnTypeChange {
		switch next.Name {
		case "timestamp", "timestamptz", "text", "varchar":
			return SafeCast
		default:
			return NotCastable
		}
	},
	"time": func(_, next PostgresType) ColumnTypeChange {
		switch next.Name {
		case "timetz", "text", "varchar":
			return SafeCast
		default:
			return NotCastable
		}
	},
	"timetz": func(_, next PostgresType) ColumnTypeChange {
		switch next.Name {
		case "text", "varchar":
			return SafeCast
		case "time":
			return RiskyCast
		default:
			return NotCastable
		}
	},

	"uuid": func(_, next PostgresType) ColumnTypeChange {
		switch next.Name {
		case "text", "varchar":
			return SafeCast
		default:
			return NotCastable
		}
	},

	"json": func(_, next PostgresType) ColumnTypeChange {
		switch next.Name {
		case "jsonb", "text", "varchar":
			return SafeCast
		default:
			return NotCastable
		}
	},
	"jsonb": func(_, next PostgresType) ColumnTypeChange {
		switch next.Name {
		case "json", "text", "varchar":
			return SafeCast
		default:
			return NotCastable
		}
	},
}

// intRow builds the matrix row for an integer type holding up to `digits`
// decimal digits.
func intRow(digits int) func(prev, next PostgresType) ColumnTypeChange {
	return func(prev, next PostgresType) ColumnTypeChange {
		switch next.Name {
		case "int2", "int4", "int8":
			if intBits[next.Name] >= intBits[prev.Name] {
				return SafeCast
			}
			return RiskyCast
		case "numeric":
			return numericHolds(next, digits)
		case "float4":
			if digits <= 5 {
				return SafeCast
			}
			return RiskyCast
		case "float8":
			if digits <= 10 {
				return SafeCast
			}
			return RiskyCast
		case "text", "varchar":
			return stringHolds(next, digits+1)
		case "bool":
			return RiskyCast
		default:
			return NotCastable
		}
	}
}

func stringRow(prev, next PostgresType) ColumnTypeChange {
	switch next.Name {
	case "text":
		return SafeCast
	case "varchar", "char", "bpchar":
		if next.Length == 0 || (prev.Length != 0 && next.Length >= prev.Length) {
			return SafeCast
		}
		return RiskyCast
	case "bytea":
		return RiskyCast
	default:
		return NotCastable
	}
}

// stringHolds reports whether a string target is wide enough for `width`
// characters.
func stringHolds(next PostgresType, width int) ColumnTypeChange {
	if next.Name == "text" || next.Length == 0 || next.Length >= width {
		return SafeCast
	}
	return RiskyCast
}
