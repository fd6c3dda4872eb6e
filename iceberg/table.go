package iceberg

import (
	"context"
	"fmt"
	"sync"

	"github.com/zegnqin/seatunnel/storage"
)

// RefreshFunc reloads the latest committed metadata and its location.
type RefreshFunc func(ctx context.Context) (*TableMetadata, string, error)

// Table is a live handle to a table: its current metadata plus the file IO
// used for its data and metadata files. Safe for concurrent use.
type Table struct {
	ident   Identifier
	io      storage.Storage
	refresh RefreshFunc

	mu               sync.RWMutex
	meta             *TableMetadata
	metadataLocation string
}

// NewTable builds a handle. refresh may be nil for a static table.
func NewTable(ident Identifier, meta *TableMetadata, metadataLocation string, io storage.Storage, refresh RefreshFunc) *Table {
	return &Table{ident: ident, io: io, refresh: refresh, meta: meta, metadataLocation: metadataLocation}
}

func (t *Table) Identifier() Identifier { return t.ident }

func (t *Table) IO() storage.Storage { return t.io }

// Metadata returns the current metadata. Callers must not mutate it.
func (t *Table) Metadata() *TableMetadata {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta
}

func (t *Table) MetadataLocation() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metadataLocation
}

// Schema returns the current schema.
func (t *Table) Schema() *Schema {
	if s := t.Metadata().CurrentSchema(); s != nil {
		return s
	}
	return &Schema{}
}

// Spec returns the default partition spec.
func (t *Table) Spec() *PartitionSpec { return t.Metadata().DefaultSpec() }

// Properties returns the table properties.
func (t *Table) Properties() map[string]string {
	if p := t.Metadata().Properties; p != nil {
		return p
	}
	return map[string]string{}
}

// Location returns the table base location.
func (t *Table) Location() string { return t.Metadata().Location }

// Refresh reloads metadata through the catalog that produced the handle.
func (t *Table) Refresh(ctx context.Context) error {
	if t.refresh == nil {
		return nil
	}
	meta, loc, err := t.refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", t.ident, err)
	}
	t.Update(meta, loc)
	return nil
}

// Update swaps in newly committed metadata.
func (t *Table) Update(meta *TableMetadata, metadataLocation string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.meta = meta
	t.metadataLocation = metadataLocation
}
