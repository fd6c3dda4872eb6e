package iceberg

// FileContent is the content type of a file tracked in a manifest.
type FileContent int

const (
	ContentData FileContent = iota
	ContentPositionDeletes
	ContentEqualityDeletes
)

func (c FileContent) String() string {
	switch c {
	case ContentPositionDeletes:
		return "position_deletes"
	case ContentEqualityDeletes:
		return "equality_deletes"
	default:
		return "data"
	}
}

// DataFile describes a single data or delete file in the table.
type DataFile struct {
	Content         FileContent    `json:"content"`
	FilePath        string         `json:"file-path"`
	FileFormat      FileFormat     `json:"file-format"`
	SpecID          int            `json:"spec-id"`
	PartitionData   map[string]any `json:"partition,omitempty"`
	RecordCount     int64          `json:"record-count"`
	FileSizeBytes   int64          `json:"file-size-in-bytes"`
	ColumnSizes     map[int]int64  `json:"column-sizes,omitempty"`
	ValueCounts     map[int]int64  `json:"value-counts,omitempty"`
	NullValueCounts map[int]int64  `json:"null-value-counts,omitempty"`
	NaNValueCounts  map[int]int64  `json:"nan-value-counts,omitempty"`
	LowerBounds     map[int][]byte `json:"lower-bounds,omitempty"`
	UpperBounds     map[int][]byte `json:"upper-bounds,omitempty"`
	KeyMetadata     []byte         `json:"key-metadata,omitempty"`
	SplitOffsets    []int64        `json:"split-offsets,omitempty"`
	EqualityIDs     []int          `json:"equality-ids,omitempty"`
	SortOrderID     *int           `json:"sort-order-id,omitempty"`
}

// ManifestEntry status constants.
const (
	ManifestEntryStatusExisting = 0
	ManifestEntryStatusAdded    = 1
	ManifestEntryStatusDeleted  = 2
)

// ManifestFile describes a manifest in the manifest list (Avro).
type ManifestFile struct {
	ManifestPath        string `avro:"manifest_path"`
	ManifestLength      int64  `avro:"manifest_length"`
	PartitionSpecID     int    `avro:"partition_spec_id"`
	ContentType         int    `avro:"content"` // 0 = data, 1 = deletes
	SequenceNumber      int64  `avro:"sequence_number"`
	MinSequenceNumber   int64  `avro:"min_sequence_number"`
	AddedSnapshotID     int64  `avro:"added_snapshot_id"`
	AddedDataFilesCount int    `avro:"added_data_files_count"`
	AddedRowsCount      int64  `avro:"added_rows_count"`
	ExistingDataFiles   int    `avro:"existing_data_files_count"`
	ExistingRowsCount   int64  `avro:"existing_rows_count"`
	DeletedDataFiles    int    `avro:"deleted_data_files_count"`
	DeletedRowsCount    int64  `avro:"deleted_rows_count"`
}
