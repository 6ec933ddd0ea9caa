// SPDX-License-Identifier: Apache-2.0

package describe

import (
	"context"

	"github.com/pgshift/pgshift/pkg/schema"
)

// Describer introspects a live database into a schema value. Implementations
// are read-only and must produce canonical order: tables sorted by name,
// columns in physical order, indexes sorted by name.
type Describer interface {
	Describe(ctx context.Context, schemaName string) (*schema.Schema, error)
}
