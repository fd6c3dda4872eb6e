// Package catalog resolves table identifiers to live table handles.
package catalog

import (
	"context"

	"github.com/zegnqin/seatunnel/iceberg"
)

// Catalog manages Iceberg table metadata lifecycle.
type Catalog interface {
	// TableExists reports whether the identifier resolves to a table now.
	TableExists(ctx context.Context, id iceberg.Identifier) (bool, error)

	// LoadTable returns a handle on the current metadata. A missing table is a
	// *icebergerr.TableNotFoundError.
	LoadTable(ctx context.Context, id iceberg.Identifier) (*iceberg.Table, error)
}

// TableCreator is implemented by catalogs that can create tables.
type TableCreator interface {
	CreateTable(ctx context.Context, id iceberg.Identifier, schema *iceberg.Schema, spec *iceberg.PartitionSpec, props map[string]string) (*iceberg.Table, error)
}

// MetadataCommitter is implemented by catalogs that atomically swap the
// metadata pointer of a table.
type MetadataCommitter interface {
	// CommitTable publishes updated as the next metadata version. The commit
	// fails with *icebergerr.CommitConflictError if the current metadata
	// location is no longer baseLocation. It returns the new location.
	CommitTable(ctx context.Context, id iceberg.Identifier, baseLocation string, updated *iceberg.TableMetadata) (string, error)
}
