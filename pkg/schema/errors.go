// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

type UnknownTableError struct {
	Table    string
	Referrer string
}

func (e UnknownTableError) Error() string {
	return fmt.Sprintf("table %q referenced from %q does not exist", e.Table, e.Referrer)
}

type UnknownColumnError struct {
	Table    string
	Column   string
	Referrer string
}

func (e UnknownColumnError) Error() string {
	return fmt.Sprintf("column %q on table %q referenced from %s does not exist", e.Column, e.Table, e.Referrer)
}

type UnknownEnumError struct {
	Table  string
	Column string
	Enum   string
}

func (e UnknownEnumError) Error() string {
	return fmt.Sprintf("enum %q referenced by column %q on table %q does not exist", e.Enum, e.Column, e.Table)
}
