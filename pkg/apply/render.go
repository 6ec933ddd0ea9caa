// SPDX-License-Identifier: Apache-2.0

package apply

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/pgshift/pgshift/pkg/diff"
	"github.com/pgshift/pgshift/pkg/schema"
)

// Statements renders one migration step into the list of SQL statements that
// realize it. Rendering never fails. An AlterColumn with no renderable change,
// an AlterEnum with no added or dropped value and a RedefineTables with no
// table render to no statement; the steps Diff produces render to at least
// one.
func Statements(step diff.Step) []string {
	switch s := step.(type) {
	case *diff.CreateEnum:
		return []string{createEnumSQL(s.Enum.Name, s.Enum.Values)}

	case *diff.AlterEnum:
		return alterEnumSQL(s)

	case *diff.DropEnum:
		return []string{fmt.Sprintf("DROP TYPE %s", pq.QuoteIdentifier(s.Name))}

	case *diff.CreateTable:
		return []string{createTableSQL(s.Table)}

	case *diff.DropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", pq.QuoteIdentifier(s.Name))}

	case *diff.AddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s",
			pq.QuoteIdentifier(s.Table), columnDefinitionSQL(s.Column))}

	case *diff.DropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
			pq.QuoteIdentifier(s.Table), pq.QuoteIdentifier(s.Column))}

	case *diff.AlterColumn:
		return alterColumnSQL(s)

	case *diff.CreateIndex:
		return []string{createIndexSQL(s.Table, s.Index)}

	case *diff.DropIndex:
		return []string{fmt.Sprintf("DROP INDEX %s", pq.QuoteIdentifier(s.Index))}

	case *diff.AddForeignKey:
		return []string{addForeignKeySQL(s.Table, s.ForeignKey)}

	case *diff.DropForeignKey:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s",
			pq.QuoteIdentifier(s.Table), pq.QuoteIdentifier(s.ConstraintName))}

	case *diff.RedefineTables:
		var stmts []string
		for _, t := range s.Tables {
			stmts = append(stmts, redefineTableSQL(t)...)
		}
		return stmts

	default:
		return []string{fmt.Sprintf("-- unsupported step: %s", step.Description())}
	}
}

func createEnumSQL(name string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = pq.QuoteLiteral(v)
	}
	return fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)",
		pq.QuoteIdentifier(name), strings.Join(quoted, ", "))
}

func alterEnumSQL(s *diff.AlterEnum) []string {
	// Added values alter the type in place. Dropped values force a type
	// recreate; columns using the type must have been redefined first.
	if len(s.DroppedValues) == 0 {
		stmts := make([]string, len(s.AddedValues))
		for i, v := range s.AddedValues {
			stmts[i] = fmt.Sprintf("ALTER TYPE %s ADD VALUE IF NOT EXISTS %s",
				pq.QuoteIdentifier(s.Name), pq.QuoteLiteral(v))
		}
		return stmts
	}

	old := s.Name + "_old"
	return []string{
		fmt.Sprintf("ALTER TYPE %s RENAME TO %s", pq.QuoteIdentifier(s.Name), pq.QuoteIdentifier(old)),
		createEnumSQL(s.Name, s.Values),
		fmt.Sprintf("DROP TYPE %s", pq.QuoteIdentifier(old)),
	}
}

func createTableSQL(table schema.Table) string {
	parts := make([]string, 0, len(table.Columns)+1)
	for _, column := range table.Columns {
		parts = append(parts, columnDefinitionSQL(column))
	}
	if pk := table.PrimaryKey; pk != nil {
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", quoteJoin(pk.Columns)))
	}

	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)",
		pq.QuoteIdentifier(table.Name), strings.Join(parts, ",\n  "))
}

func createIndexSQL(table string, index schema.Index) string {
	unique := ""
	if index.Type == schema.UniqueIndex {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, pq.QuoteIdentifier(index.Name), pq.QuoteIdentifier(table), quoteJoin(index.Columns))
}

func addForeignKeySQL(table string, fk schema.ForeignKey) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD ", pq.QuoteIdentifier(table))
	if fk.ConstraintName != "" {
		fmt.Fprintf(&b, "CONSTRAINT %s ", pq.QuoteIdentifier(fk.ConstraintName))
	}
	fmt.Fprintf(&b, "FOREIGN KEY (%s) REFERENCES %s (%s)",
		quoteJoin(fk.Columns), pq.QuoteIdentifier(fk.ReferencedTable), quoteJoin(fk.ReferencedColumns))
	if fk.OnDelete != "" && fk.OnDelete != schema.NoAction {
		fmt.Fprintf(&b, " ON DELETE %s", fk.OnDelete)
	}
	if fk.OnUpdate != "" && fk.OnUpdate != schema.NoAction {
		fmt.Fprintf(&b, " ON UPDATE %s", fk.OnUpdate)
	}
	return b.String()
}

func alterColumnSQL(s *diff.AlterColumn) []string {
	table := pq.QuoteIdentifier(s.Table)
	column := pq.QuoteIdentifier(s.Next.Name)
	var actions []string

	if s.Changes.TypeChanged() {
		columnType := columnTypeSQL(s.Next)
		actions = append(actions, fmt.Sprintf("ALTER COLUMN %s TYPE %s USING %s::%s",
			column, columnType, column, columnType))
	}

	if s.Changes.ArityChanged {
		if s.Next.Type.Arity == schema.Nullable {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", column))
		} else {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", column))
		}
	}

	if s.DefaultChange.IsSpecified() {
		if s.DefaultChange.IsNull() {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", column))
		} else {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s",
				column, s.DefaultChange.MustGet()))
		}
	}

	if s.Changes.AutoIncrementChanged {
		if s.Next.AutoIncrement {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s ADD GENERATED BY DEFAULT AS IDENTITY", column))
		} else {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s DROP IDENTITY IF EXISTS", column))
		}
	}

	if len(actions) == 0 {
		return nil
	}
	return []string{fmt.Sprintf("ALTER TABLE %s %s", table, strings.Join(actions, ", "))}
}

// redefineTableSQL rebuilds a table: create the new shape under a temporary
// name, copy the overlapping columns over with casts, then swap the tables.
func redefineTableSQL(t diff.TableRedefinition) []string {
	tmp := "_pgshift_new_" + t.Next.Name

	tmpTable := t.Next
	tmpTable.Name = tmp

	var common, selected []string
	for _, next := range t.Next.Columns {
		for _, prev := range t.Previous.Columns {
			if prev.Name != next.Name {
				continue
			}
			common = append(common, pq.QuoteIdentifier(next.Name))
			selected = append(selected, fmt.Sprintf("%s::%s",
				pq.QuoteIdentifier(prev.Name), columnTypeSQL(next)))
		}
	}

	stmts := []string{createTableSQL(tmpTable)}
	if len(common) > 0 {
		stmts = append(stmts, fmt.Sprintf("INSERT INTO %s (%s)\nSELECT %s FROM %s",
			pq.QuoteIdentifier(tmp), strings.Join(common, ", "),
			strings.Join(selected, ", "), pq.QuoteIdentifier(t.Previous.Name)))
	}
	stmts = append(stmts,
		fmt.Sprintf("DROP TABLE %s", pq.QuoteIdentifier(t.Previous.Name)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", pq.QuoteIdentifier(tmp), pq.QuoteIdentifier(t.Next.Name)),
	)
	for _, index := range t.Next.Indexes {
		stmts = append(stmts, createIndexSQL(t.Next.Name, index))
	}
	return stmts
}

func columnDefinitionSQL(column schema.Column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", pq.QuoteIdentifier(column.Name), columnTypeSQL(column))
	if column.AutoIncrement {
		b.WriteString(" GENERATED BY DEFAULT AS IDENTITY")
	}
	if column.Type.Arity != schema.Nullable {
		b.WriteString(" NOT NULL")
	}
	if column.Default != nil {
		fmt.Fprintf(&b, " DEFAULT %s", *column.Default)
	}
	return b.String()
}

// columnTypeSQL renders a column's SQL type. The native type token wins when
// present; otherwise the family maps to a canonical Postgres type.
func columnTypeSQL(column schema.Column) string {
	base := familyTypeSQL(column.Type)

	if len(column.Type.NativeType) > 0 {
		var native diff.PostgresType
		if err := json.Unmarshal(column.Type.NativeType, &native); err == nil && native.Name != "" {
			base = nativeTypeSQL(native)
		}
	}

	if column.Type.Arity == schema.List {
		base += "[]"
	}
	return base
}

func nativeTypeSQL(native diff.PostgresType) string {
	switch {
	case native.Precision > 0:
		return fmt.Sprintf("%s(%d,%d)", native.Name, native.Precision, native.Scale)
	case native.Length > 0:
		return fmt.Sprintf("%s(%d)", native.Name, native.Length)
	default:
		return native.Name
	}
}

func familyTypeSQL(t schema.ColumnType) string {
	switch t.Family {
	case schema.FamilyInt:
		return "integer"
	case schema.FamilyFloat:
		return "double precision"
	case schema.FamilyString:
		return "text"
	case schema.FamilyBoolean:
		return "boolean"
	case schema.FamilyDateTime:
		return "timestamptz"
	case schema.FamilyBytes:
		return "bytea"
	case schema.FamilyDecimal:
		return "numeric"
	case schema.FamilyJSON:
		return "jsonb"
	case schema.FamilyUUID:
		return "uuid"
	case schema.FamilyEnum:
		return pq.QuoteIdentifier(t.EnumName)
	default:
		return "text"
	}
}

func quoteJoin(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = pq.QuoteIdentifier(name)
	}
	return strings.Join(quoted, ", ")
}
