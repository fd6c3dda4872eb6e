package iceberg

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// TableMetadata is the top-level Iceberg table metadata (format-version 2).
type TableMetadata struct {
	FormatVersion    int                    `json:"format-version"`
	TableUUID        string                 `json:"table-uuid"`
	Location         string                 `json:"location"`
	LastSeqNumber    int64                  `json:"last-sequence-number"`
	LastUpdatedMS    int64                  `json:"last-updated-ms"`
	LastColumnID     int                    `json:"last-column-id"`
	Schemas          []Schema               `json:"schemas"`
	CurrentSchemaID  int                    `json:"current-schema-id"`
	PartitionSpecs   []PartitionSpec        `json:"partition-specs"`
	DefaultSpecID    int                    `json:"default-spec-id"`
	LastPartitionID  int                    `json:"last-partition-id"`
	Properties       map[string]string      `json:"properties,omitempty"`
	CurrentSnapshot  int64                  `json:"current-snapshot-id"`
	Snapshots        []Snapshot             `json:"snapshots"`
	SnapshotLog      []SnapshotLogEntry     `json:"snapshot-log"`
	MetadataLog      []MetadataLogEntry     `json:"metadata-log"`
	SortOrders       []SortOrder            `json:"sort-orders"`
	DefaultSortOrder int                    `json:"default-sort-order-id"`
	Refs             map[string]SnapshotRef `json:"refs,omitempty"`
}

// Snapshot records a point-in-time view of the table.
type Snapshot struct {
	SnapshotID       int64             `json:"snapshot-id"`
	ParentSnapshotID *int64            `json:"parent-snapshot-id,omitempty"`
	SequenceNumber   int64             `json:"sequence-number"`
	TimestampMS      int64             `json:"timestamp-ms"`
	ManifestList     string            `json:"manifest-list"`
	Summary          map[string]string `json:"summary"`
	SchemaID         int               `json:"schema-id"`
}

// SnapshotRef names a branch or tag.
type SnapshotRef struct {
	SnapshotID int64  `json:"snapshot-id"`
	Type       string `json:"type"`
}

// SnapshotLogEntry records when a snapshot was made current.
type SnapshotLogEntry struct {
	TimestampMS int64 `json:"timestamp-ms"`
	SnapshotID  int64 `json:"snapshot-id"`
}

// MetadataLogEntry records a previous metadata file.
type MetadataLogEntry struct {
	TimestampMS  int64  `json:"timestamp-ms"`
	MetadataFile string `json:"metadata-file"`
}

// SortOrder defines how data is sorted within files.
type SortOrder struct {
	OrderID int         `json:"order-id"`
	Fields  []SortField `json:"fields"`
}

// SortField is a single sort column.
type SortField struct {
	SourceID  int    `json:"source-id"`
	Transform string `json:"transform"`
	Direction string `json:"direction"`  // "asc" or "desc"
	NullOrder string `json:"null-order"` // "nulls-first" or "nulls-last"
}

// MainBranch is the default ref updated by commits.
const MainBranch = "main"

// NewTableMetadata creates initial Iceberg v2 table metadata.
func NewTableMetadata(location string, schema *Schema, spec *PartitionSpec, props map[string]string) *TableMetadata {
	if spec == nil {
		spec = UnpartitionedSpec()
	}
	if props == nil {
		props = map[string]string{}
	}
	return &TableMetadata{
		FormatVersion:    2,
		TableUUID:        uuid.New().String(),
		Location:         location,
		LastSeqNumber:    0,
		LastUpdatedMS:    time.Now().UnixMilli(),
		LastColumnID:     schema.HighestFieldID(),
		Schemas:          []Schema{*schema},
		CurrentSchemaID:  schema.SchemaID,
		PartitionSpecs:   []PartitionSpec{*spec},
		DefaultSpecID:    spec.SpecID,
		LastPartitionID:  spec.LastFieldID(),
		Properties:       props,
		CurrentSnapshot:  -1,
		Snapshots:        []Snapshot{},
		SnapshotLog:      []SnapshotLogEntry{},
		MetadataLog:      []MetadataLogEntry{},
		SortOrders:       []SortOrder{{OrderID: 0, Fields: []SortField{}}},
		DefaultSortOrder: 0,
	}
}

// CurrentSchema returns the schema marked current, or nil.
func (m *TableMetadata) CurrentSchema() *Schema {
	for i := range m.Schemas {
		if m.Schemas[i].SchemaID == m.CurrentSchemaID {
			return &m.Schemas[i]
		}
	}
	return nil
}

// DefaultSpec returns the default partition spec; unpartitioned when absent.
func (m *TableMetadata) DefaultSpec() *PartitionSpec {
	for i := range m.PartitionSpecs {
		if m.PartitionSpecs[i].SpecID == m.DefaultSpecID {
			return &m.PartitionSpecs[i]
		}
	}
	return UnpartitionedSpec()
}

// SpecByID returns the partition spec with the given id, or nil.
func (m *TableMetadata) SpecByID(id int) *PartitionSpec {
	for i := range m.PartitionSpecs {
		if m.PartitionSpecs[i].SpecID == id {
			return &m.PartitionSpecs[i]
		}
	}
	return nil
}

// CurrentSnapshotEntry returns the current snapshot, or nil for an empty table.
func (m *TableMetadata) CurrentSnapshotEntry() *Snapshot {
	if m.CurrentSnapshot < 0 {
		return nil
	}
	for i := range m.Snapshots {
		if m.Snapshots[i].SnapshotID == m.CurrentSnapshot {
			return &m.Snapshots[i]
		}
	}
	return nil
}

// Clone returns an independent copy for building the next metadata version.
func (m *TableMetadata) Clone() (*TableMetadata, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("clone metadata: %w", err)
	}
	return ReadMetadata(data)
}

// WriteMetadata serializes table metadata to JSON.
func WriteMetadata(meta *TableMetadata) ([]byte, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}

// ReadMetadata deserializes table metadata from JSON.
func ReadMetadata(data []byte) (*TableMetadata, error) {
	meta := TableMetadata{CurrentSnapshot: -1}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if meta.Properties == nil {
		meta.Properties = map[string]string{}
	}
	return &meta, nil
}

// GenerateSnapshotID produces a random positive int64 for snapshot IDs.
func GenerateSnapshotID() int64 {
	return rand.Int64N(1<<62) + 1
}
