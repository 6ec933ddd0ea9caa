// SPDX-License-Identifier: Apache-2.0

package describe

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/pgshift/pgshift/pkg/db"
	"github.com/pgshift/pgshift/pkg/diff"
	"github.com/pgshift/pgshift/pkg/history"
	"github.com/pgshift/pgshift/pkg/schema"
)

// PostgresDescriber reads a schema out of a live Postgres database.
type PostgresDescriber struct {
	conn db.DB
}

// NewPostgresDescriber returns a describer reading through conn.
func NewPostgresDescriber(conn db.DB) *PostgresDescriber {
	return &PostgresDescriber{conn: conn}
}

// Describe introspects the named schema. Tables come back sorted by name,
// columns in physical order, indexes sorted by name.
func (d *PostgresDescriber) Describe(ctx context.Context, schemaName string) (*schema.Schema, error) {
	s := &schema.Schema{Name: schemaName}

	enums, err := d.describeEnums(ctx, schemaName)
	if err != nil {
		return nil, fmt.Errorf("describing enums: %w", err)
	}
	s.Enums = enums

	enumNames := make(map[string]bool, len(enums))
	for _, e := range enums {
		enumNames[e.Name] = true
	}

	tables, err := d.describeTables(ctx, schemaName, enumNames)
	if err != nil {
		return nil, fmt.Errorf("describing tables: %w", err)
	}
	s.Tables = tables

	return s, nil
}

func (d *PostgresDescriber) describeEnums(ctx context.Context, schemaName string) ([]schema.Enum, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = $1
		ORDER BY t.typname, e.enumsortorder`, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enums []schema.Enum
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		if len(enums) == 0 || enums[len(enums)-1].Name != name {
			enums = append(enums, schema.Enum{Name: name})
		}
		enums[len(enums)-1].Values = append(enums[len(enums)-1].Values, value)
	}

	return enums, rows.Err()
}

func (d *PostgresDescriber) describeTables(ctx context.Context, schemaName string, enumNames map[string]bool) ([]schema.Table, error) {
	// The applied-migrations table is bookkeeping, not part of the schema.
	rows, err := d.conn.QueryContext(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = $1 AND tablename <> $2
		ORDER BY tablename`, schemaName, history.MigrationsTable)
	if err != nil {
		return nil, err
	}

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	tables := make([]schema.Table, 0, len(names))
	for _, name := range names {
		table, err := d.describeTable(ctx, schemaName, name, enumNames)
		if err != nil {
			return nil, fmt.Errorf("describing table %q: %w", name, err)
		}
		tables = append(tables, table)
	}

	return tables, nil
}

func (d *PostgresDescriber) describeTable(ctx context.Context, schemaName, tableName string, enumNames map[string]bool) (schema.Table, error) {
	table := schema.Table{Name: tableName}

	columns, err := d.describeColumns(ctx, schemaName, tableName, enumNames)
	if err != nil {
		return table, err
	}
	table.Columns = columns

	pk, err := d.describePrimaryKey(ctx, schemaName, tableName)
	if err != nil {
		return table, err
	}
	table.PrimaryKey = pk

	indexes, err := d.describeIndexes(ctx, schemaName, tableName)
	if err != nil {
		return table, err
	}
	table.Indexes = indexes

	fks, err := d.describeForeignKeys(ctx, schemaName, tableName)
	if err != nil {
		return table, err
	}
	table.ForeignKeys = fks

	return table, nil
}

func (d *PostgresDescriber) describeColumns(ctx context.Context, schemaName, tableName string, enumNames map[string]bool) ([]schema.Column, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT column_name, udt_name, is_nullable, column_default, is_identity,
		       COALESCE(character_maximum_length, 0),
		       COALESCE(numeric_precision, 0), COALESCE(numeric_scale, 0)
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var name, udtName, isNullable, isIdentity string
		var columnDefault sql.NullString
		var length, precision, scale int
		if err := rows.Scan(&name, &udtName, &isNullable, &columnDefault, &isIdentity, &length, &precision, &scale); err != nil {
			return nil, err
		}

		column := schema.Column{Name: name}

		arity := schema.Required
		if isNullable == "YES" {
			arity = schema.Nullable
		}

		elementType := udtName
		if strings.HasPrefix(udtName, "_") {
			arity = schema.List
			elementType = strings.TrimPrefix(udtName, "_")
		}

		column.Type = columnType(elementType, arity, enumNames)

		autoIncrement := isIdentity == "YES" ||
			(columnDefault.Valid && strings.HasPrefix(columnDefault.String, "nextval("))
		column.AutoIncrement = autoIncrement

		if columnDefault.Valid && !autoIncrement {
			value := columnDefault.String
			column.Default = &value
		}

		native := diff.PostgresType{Name: elementType}
		switch elementType {
		case "varchar", "bpchar", "char", "bit", "varbit":
			native.Length = length
		case "numeric":
			native.Precision = precision
			native.Scale = scale
		}
		raw, err := json.Marshal(native)
		if err != nil {
			return nil, err
		}
		column.Type.NativeType = raw

		columns = append(columns, column)
	}

	return columns, rows.Err()
}

func columnType(udtName string, arity schema.Arity, enumNames map[string]bool) schema.ColumnType {
	t := schema.ColumnType{Arity: arity}

	switch udtName {
	case "int2", "int4", "int8":
		t.Family = schema.FamilyInt
	case "float4", "float8":
		t.Family = schema.FamilyFloat
	case "numeric", "money":
		t.Family = schema.FamilyDecimal
	case "text", "varchar", "bpchar", "char", "name", "citext":
		t.Family = schema.FamilyString
	case "bool":
		t.Family = schema.FamilyBoolean
	case "timestamp", "timestamptz", "date", "time", "timetz":
		t.Family = schema.FamilyDateTime
	case "bytea":
		t.Family = schema.FamilyBytes
	case "json", "jsonb":
		t.Family = schema.FamilyJSON
	case "uuid":
		t.Family = schema.FamilyUUID
	default:
		if enumNames[udtName] {
			t.Family = schema.FamilyEnum
			t.EnumName = udtName
		} else {
			t.Family = schema.FamilyString
		}
	}

	return t
}

func (d *PostgresDescriber) describePrimaryKey(ctx context.Context, schemaName, tableName string) (*schema.PrimaryKey, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT a.attname
		FROM pg_index i
		JOIN pg_class c ON c.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY(i.indkey)
		WHERE n.nspname = $1 AND c.relname = $2 AND i.indisprimary
		ORDER BY array_position(i.indkey::int2[], a.attnum)`, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(columns) == 0 {
		return nil, nil
	}
	return &schema.PrimaryKey{Columns: columns}, nil
}

func (d *PostgresDescriber) describeIndexes(ctx context.Context, schemaName, tableName string) ([]schema.Index, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT ic.relname, i.indisunique, a.attname
		FROM pg_index i
		JOIN pg_class c ON c.oid = i.indrelid
		JOIN pg_class ic ON ic.oid = i.indexrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY(i.indkey)
		WHERE n.nspname = $1 AND c.relname = $2 AND NOT i.indisprimary
		ORDER BY ic.relname, array_position(i.indkey::int2[], a.attnum)`, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []schema.Index
	for rows.Next() {
		var name, column string
		var unique bool
		if err := rows.Scan(&name, &unique, &column); err != nil {
			return nil, err
		}
		if len(indexes) == 0 || indexes[len(indexes)-1].Name != name {
			indexType := schema.NormalIndex
			if unique {
				indexType = schema.UniqueIndex
			}
			indexes = append(indexes, schema.Index{Name: name, Type: indexType})
		}
		indexes[len(indexes)-1].Columns = append(indexes[len(indexes)-1].Columns, column)
	}

	return indexes, rows.Err()
}

func (d *PostgresDescriber) describeForeignKeys(ctx context.Context, schemaName, tableName string) ([]schema.ForeignKey, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT con.conname,
		       ref.relname,
		       con.confdeltype,
		       con.confupdtype,
		       (SELECT array_agg(a.attname ORDER BY k.ord)
		          FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
		          JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum),
		       (SELECT array_agg(a.attname ORDER BY k.ord)
		          FROM unnest(con.confkey) WITH ORDINALITY AS k(attnum, ord)
		          JOIN pg_attribute a ON a.attrelid = con.confrelid AND a.attnum = k.attnum)
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_class ref ON ref.oid = con.confrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2 AND con.contype = 'f'
		ORDER BY con.conname`, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []schema.ForeignKey
	for rows.Next() {
		var fk schema.ForeignKey
		var onDelete, onUpdate string
		var columns, referencedColumns []string
		if err := rows.Scan(&fk.ConstraintName, &fk.ReferencedTable, &onDelete, &onUpdate,
			pq.Array(&columns), pq.Array(&referencedColumns)); err != nil {
			return nil, err
		}
		fk.Columns = columns
		fk.ReferencedColumns = referencedColumns
		fk.OnDelete = foreignKeyAction(onDelete)
		fk.OnUpdate = foreignKeyAction(onUpdate)
		fks = append(fks, fk)
	}

	return fks, rows.Err()
}

func foreignKeyAction(code string) schema.ForeignKeyAction {
	switch code {
	case "r":
		return schema.Restrict
	case "c":
		return schema.Cascade
	case "n":
		return schema.SetNull
	case "d":
		return schema.SetDefault
	default:
		return schema.NoAction
	}
}
