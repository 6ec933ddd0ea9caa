// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"sigs.k8s.io/yaml"
)

//go:embed datamodel.json
var datamodelSchema []byte

var compiledDatamodelSchema = mustCompileDatamodelSchema()

func mustCompileDatamodelSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(datamodelSchema))
	if err != nil {
		panic(err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("datamodel.json", doc); err != nil {
		panic(err)
	}

	sch, err := c.Compile("datamodel.json")
	if err != nil {
		panic(err)
	}
	return sch
}

// ReadDatamodel reads a declarative data model from r and returns the schema
// it describes. The input is JSON; callers with YAML input should go through
// ReadDatamodelFile. The document is validated against the embedded JSON
// schema before decoding, then checked for referential integrity.
func ReadDatamodel(r io.Reader) (*Schema, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading data model: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing data model: %w", err)
	}
	if err := compiledDatamodelSchema.Validate(inst); err != nil {
		return nil, fmt.Errorf("invalid data model: %w", err)
	}

	var s Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decoding data model: %w", err)
	}
	s.applyDefaults()

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

// applyDefaults fills in the optional fields left unset in the document:
// column arity (required), index type (normal) and foreign key actions
// (NO ACTION).
func (s *Schema) applyDefaults() {
	for ti := range s.Tables {
		table := &s.Tables[ti]
		for ci := range table.Columns {
			if table.Columns[ci].Type.Arity == "" {
				table.Columns[ci].Type.Arity = Required
			}
		}
		for ii := range table.Indexes {
			if table.Indexes[ii].Type == "" {
				table.Indexes[ii].Type = NormalIndex
			}
		}
		for fi := range table.ForeignKeys {
			if table.ForeignKeys[fi].OnDelete == "" {
				table.ForeignKeys[fi].OnDelete = NoAction
			}
			if table.ForeignKeys[fi].OnUpdate == "" {
				table.ForeignKeys[fi].OnUpdate = NoAction
			}
		}
	}
}

// ReadDatamodelFile reads a declarative data model from a `.json`, `.yaml` or
// `.yml` file. YAML documents are converted to JSON before validation.
func ReadDatamodelFile(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading data model file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err = yaml.YAMLToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("converting data model file %q to JSON: %w", path, err)
		}
	}

	return ReadDatamodel(bytes.NewReader(raw))
}

// Validate checks the schema's internal references: foreign keys must point
// at existing tables and columns, enum columns at existing enums, and index
// and primary key columns at columns of the owning table.
func (s *Schema) Validate() error {
	for _, table := range s.WalkTables() {
		for _, column := range table.WalkColumns() {
			if column.Family() != FamilyEnum {
				continue
			}
			if _, ok := column.EnumType(); !ok {
				return UnknownEnumError{Table: table.Name(), Column: column.Name(), Enum: column.Type().EnumName}
			}
		}

		if pk := table.PrimaryKey(); pk != nil {
			for _, name := range pk.Columns {
				if _, ok := table.Column(name); !ok {
					return UnknownColumnError{Table: table.Name(), Column: name, Referrer: "primary key"}
				}
			}
		}

		for _, index := range table.WalkIndexes() {
			for _, name := range index.Columns() {
				if _, ok := table.Column(name); !ok {
					return UnknownColumnError{Table: table.Name(), Column: name, Referrer: fmt.Sprintf("index %q", index.Name())}
				}
			}
		}

		for _, fk := range table.WalkForeignKeys() {
			referenced, ok := fk.ReferencedTable()
			if !ok {
				return UnknownTableError{Table: fk.ForeignKey().ReferencedTable, Referrer: table.Name()}
			}
			for _, name := range fk.ForeignKey().Columns {
				if _, ok := table.Column(name); !ok {
					return UnknownColumnError{Table: table.Name(), Column: name, Referrer: "foreign key"}
				}
			}
			for _, name := range fk.ForeignKey().ReferencedColumns {
				if _, ok := referenced.Column(name); !ok {
					return UnknownColumnError{Table: referenced.Name(), Column: name, Referrer: "foreign key"}
				}
			}
		}
	}

	return nil
}
