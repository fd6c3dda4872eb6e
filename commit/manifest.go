package commit

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"github.com/hamba/avro/v2/ocf"

	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/storage"
)

// Manifest content codes in the manifest list.
const (
	manifestContentData    = 0
	manifestContentDeletes = 1
)

// Avro schema for Iceberg manifest entries (format v2). The partition record
// is generated from the partition spec.
const manifestEntryAvroSchema = `{
	"type": "record",
	"name": "manifest_entry",
	"fields": [
		{"name": "status", "type": "int", "field-id": 0},
		{"name": "snapshot_id", "type": ["null", "long"], "default": null, "field-id": 1},
		{"name": "sequence_number", "type": ["null", "long"], "default": null, "field-id": 3},
		{"name": "file_sequence_number", "type": ["null", "long"], "default": null, "field-id": 4},
		{"name": "data_file", "field-id": 2, "type": {
			"type": "record",
			"name": "r2",
			"fields": [
				{"name": "content", "type": "int", "field-id": 134},
				{"name": "file_path", "type": "string", "field-id": 100},
				{"name": "file_format", "type": "string", "field-id": 101},
				{"name": "partition", "field-id": 102, "type": {"type": "record", "name": "r102", "fields": %s}},
				{"name": "record_count", "type": "long", "field-id": 103},
				{"name": "file_size_in_bytes", "type": "long", "field-id": 104},
				{"name": "column_sizes", "field-id": 108, "type": ["null", {"type": "array", "logicalType": "map", "items": {
					"type": "record", "name": "k117_v118",
					"fields": [{"name": "key", "type": "int", "field-id": 117}, {"name": "value", "type": "long", "field-id": 118}]
				}}], "default": null},
				{"name": "value_counts", "field-id": 109, "type": ["null", {"type": "array", "logicalType": "map", "items": {
					"type": "record", "name": "k119_v120",
					"fields": [{"name": "key", "type": "int", "field-id": 119}, {"name": "value", "type": "long", "field-id": 120}]
				}}], "default": null},
				{"name": "null_value_counts", "field-id": 110, "type": ["null", {"type": "array", "logicalType": "map", "items": {
					"type": "record", "name": "k121_v122",
					"fields": [{"name": "key", "type": "int", "field-id": 121}, {"name": "value", "type": "long", "field-id": 122}]
				}}], "default": null},
				{"name": "nan_value_counts", "field-id": 137, "type": ["null", {"type": "array", "logicalType": "map", "items": {
					"type": "record", "name": "k138_v139",
					"fields": [{"name": "key", "type": "int", "field-id": 138}, {"name": "value", "type": "long", "field-id": 139}]
				}}], "default": null},
				{"name": "lower_bounds", "field-id": 125, "type": ["null", {"type": "array", "logicalType": "map", "items": {
					"type": "record", "name": "k126_v127",
					"fields": [{"name": "key", "type": "int", "field-id": 126}, {"name": "value", "type": "bytes", "field-id": 127}]
				}}], "default": null},
				{"name": "upper_bounds", "field-id": 128, "type": ["null", {"type": "array", "logicalType": "map", "items": {
					"type": "record", "name": "k129_v130",
					"fields": [{"name": "key", "type": "int", "field-id": 129}, {"name": "value", "type": "bytes", "field-id": 130}]
				}}], "default": null},
				{"name": "key_metadata", "type": ["null", "bytes"], "default": null, "field-id": 131},
				{"name": "split_offsets", "type": ["null", {"type": "array", "items": "long", "element-id": 133}], "default": null, "field-id": 132},
				{"name": "equality_ids", "type": ["null", {"type": "array", "items": "int", "element-id": 136}], "default": null, "field-id": 135},
				{"name": "sort_order_id", "type": ["null", "int"], "default": null, "field-id": 140}
			]
		}}
	]
}`

// manifestEntryAvro is the Avro-serializable form of a manifest entry.
type manifestEntryAvro struct {
	Status             int                  `avro:"status"`
	SnapshotID         *int64               `avro:"snapshot_id"`
	SequenceNumber     *int64               `avro:"sequence_number"`
	FileSequenceNumber *int64               `avro:"file_sequence_number"`
	DataFile           manifestDataFileAvro `avro:"data_file"`
}

type manifestDataFileAvro struct {
	Content         int            `avro:"content"`
	FilePath        string         `avro:"file_path"`
	FileFormat      string         `avro:"file_format"`
	Partition       map[string]any `avro:"partition"`
	RecordCount     int64          `avro:"record_count"`
	FileSizeBytes   int64          `avro:"file_size_in_bytes"`
	ColumnSizes     []intLongKV    `avro:"column_sizes"`
	ValueCounts     []intLongKV    `avro:"value_counts"`
	NullValueCounts []intLongKV    `avro:"null_value_counts"`
	NanValueCounts  []intLongKV    `avro:"nan_value_counts"`
	LowerBounds     []intBytesKV   `avro:"lower_bounds"`
	UpperBounds     []intBytesKV   `avro:"upper_bounds"`
	KeyMetadata     []byte         `avro:"key_metadata"`
	SplitOffsets    []int64        `avro:"split_offsets"`
	EqualityIDs     []int          `avro:"equality_ids"`
	SortOrderID     *int           `avro:"sort_order_id"`
}

type intLongKV struct {
	Key   int   `avro:"key"`
	Value int64 `avro:"value"`
}

type intBytesKV struct {
	Key   int    `avro:"key"`
	Value []byte `avro:"value"`
}

// ManifestEntry is one file tracked by a manifest.
type ManifestEntry struct {
	Status         int
	SnapshotID     int64
	SequenceNumber int64
	File           iceberg.DataFile
}

// partitionAvroType maps a partition result type to the Avro primitive used
// in the manifest partition record.
func partitionAvroType(t iceberg.Type) string {
	switch t.ID() {
	case iceberg.TypeBoolean:
		return "boolean"
	case iceberg.TypeInteger, iceberg.TypeDate:
		return "int"
	case iceberg.TypeLong, iceberg.TypeTime, iceberg.TypeTimestamp:
		return "long"
	case iceberg.TypeFloat:
		return "float"
	case iceberg.TypeDouble:
		return "double"
	case iceberg.TypeString:
		return "string"
	default:
		return "bytes"
	}
}

// partitionAvroValue converts a transform result to the Go value hamba/avro
// encodes for partitionAvroType.
func partitionAvroValue(v any) any {
	switch x := v.(type) {
	case *big.Int:
		return iceberg.DecimalBytes(x)
	case int:
		return int64(x)
	default:
		return v
	}
}

type partitionColumn struct {
	name    string
	avroTyp string
}

func partitionColumns(spec *iceberg.PartitionSpec, schema *iceberg.Schema) ([]partitionColumn, []map[string]any, error) {
	cols := make([]partitionColumn, 0, len(spec.Fields))
	fields := make([]map[string]any, 0, len(spec.Fields))
	for _, pf := range spec.Fields {
		src, ok := schema.FindField(pf.SourceID)
		if !ok {
			return nil, nil, fmt.Errorf("partition field %s: source column %d not in schema", pf.Name, pf.SourceID)
		}
		tr, err := iceberg.ParseTransform(pf.Transform)
		if err != nil {
			return nil, nil, fmt.Errorf("partition field %s: %w", pf.Name, err)
		}
		typ := partitionAvroType(tr.ResultType(src.Type))
		cols = append(cols, partitionColumn{name: pf.Name, avroTyp: typ})
		fields = append(fields, map[string]any{
			"name":     pf.Name,
			"type":     []string{"null", typ},
			"default":  nil,
			"field-id": pf.FieldID,
		})
	}
	return cols, fields, nil
}

// manifestSchema renders the manifest entry schema for spec.
func manifestSchema(spec *iceberg.PartitionSpec, schema *iceberg.Schema) (string, []partitionColumn, error) {
	cols, fields, err := partitionColumns(spec, schema)
	if err != nil {
		return "", nil, err
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return "", nil, fmt.Errorf("marshal partition fields: %w", err)
	}
	return fmt.Sprintf(manifestEntryAvroSchema, fieldsJSON), cols, nil
}

// writeManifest writes manifest entries for files of one content kind and
// one partition spec as an Avro OCF file. Returns the serialized bytes.
func writeManifest(files []iceberg.DataFile, content int, schema *iceberg.Schema, spec *iceberg.PartitionSpec, snapshotID, seqNum int64) ([]byte, error) {
	avroSchema, cols, err := manifestSchema(spec, schema)
	if err != nil {
		return nil, err
	}
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	specJSON, err := json.Marshal(spec.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshal partition spec: %w", err)
	}
	contentName := "data"
	if content == manifestContentDeletes {
		contentName = "deletes"
	}

	var buf bytes.Buffer
	enc, err := ocf.NewEncoder(avroSchema, &buf,
		ocf.WithMetadata(map[string][]byte{
			"schema":            schemaJSON,
			"schema-id":         encodeIntBytes(schema.SchemaID),
			"partition-spec":    specJSON,
			"partition-spec-id": encodeIntBytes(spec.SpecID),
			"format-version":    []byte("2"),
			"content":           []byte(contentName),
		}),
		ocf.WithCodec(ocf.Deflate),
	)
	if err != nil {
		return nil, fmt.Errorf("create manifest encoder: %w", err)
	}

	for _, df := range files {
		entry := toManifestEntryAvro(df, cols, snapshotID, seqNum)
		if err := enc.Encode(entry); err != nil {
			return nil, fmt.Errorf("encode manifest entry %s: %w", df.FilePath, err)
		}
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close manifest encoder: %w", err)
	}
	return buf.Bytes(), nil
}

func toManifestEntryAvro(df iceberg.DataFile, cols []partitionColumn, snapshotID, seqNum int64) manifestEntryAvro {
	partition := make(map[string]any, len(cols))
	for _, c := range cols {
		partition[c.name] = partitionAvroValue(df.PartitionData[c.name])
	}
	return manifestEntryAvro{
		Status:             iceberg.ManifestEntryStatusAdded,
		SnapshotID:         &snapshotID,
		SequenceNumber:     &seqNum,
		FileSequenceNumber: &seqNum,
		DataFile: manifestDataFileAvro{
			Content:         int(df.Content),
			FilePath:        df.FilePath,
			FileFormat:      string(df.FileFormat),
			Partition:       partition,
			RecordCount:     df.RecordCount,
			FileSizeBytes:   df.FileSizeBytes,
			ColumnSizes:     mapToIntLongKV(df.ColumnSizes),
			ValueCounts:     mapToIntLongKV(df.ValueCounts),
			NullValueCounts: mapToIntLongKV(df.NullValueCounts),
			NanValueCounts:  mapToIntLongKV(df.NaNValueCounts),
			LowerBounds:     mapToIntBytesKV(df.LowerBounds),
			UpperBounds:     mapToIntBytesKV(df.UpperBounds),
			KeyMetadata:     df.KeyMetadata,
			SplitOffsets:    df.SplitOffsets,
			EqualityIDs:     df.EqualityIDs,
			SortOrderID:     df.SortOrderID,
		},
	}
}

func mapToIntLongKV(m map[int]int64) []intLongKV {
	if len(m) == 0 {
		return nil
	}
	out := make([]intLongKV, 0, len(m))
	for k, v := range m {
		out = append(out, intLongKV{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func mapToIntBytesKV(m map[int][]byte) []intBytesKV {
	if len(m) == 0 {
		return nil
	}
	out := make([]intBytesKV, 0, len(m))
	for k, v := range m {
		out = append(out, intBytesKV{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func intLongMap(kvs []intLongKV) map[int]int64 {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[int]int64, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}
	return out
}

func intBytesMap(kvs []intBytesKV) map[int][]byte {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[int][]byte, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}
	return out
}

func encodeIntBytes(v int) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

// ReadManifest decodes the entries of a manifest file.
func ReadManifest(ctx context.Context, io storage.Storage, path string) ([]ManifestEntry, error) {
	data, err := io.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	dec, err := ocf.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", path, err)
	}
	var entries []ManifestEntry
	for dec.HasNext() {
		var e manifestEntryAvro
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("decode manifest %s: %w", path, err)
		}
		entries = append(entries, fromManifestEntryAvro(e))
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return entries, nil
}

func fromManifestEntryAvro(e manifestEntryAvro) ManifestEntry {
	out := ManifestEntry{Status: e.Status}
	if e.SnapshotID != nil {
		out.SnapshotID = *e.SnapshotID
	}
	if e.SequenceNumber != nil {
		out.SequenceNumber = *e.SequenceNumber
	}
	df := e.DataFile
	out.File = iceberg.DataFile{
		Content:         iceberg.FileContent(df.Content),
		FilePath:        df.FilePath,
		FileFormat:      iceberg.FileFormat(df.FileFormat),
		PartitionData:   df.Partition,
		RecordCount:     df.RecordCount,
		FileSizeBytes:   df.FileSizeBytes,
		ColumnSizes:     intLongMap(df.ColumnSizes),
		ValueCounts:     intLongMap(df.ValueCounts),
		NullValueCounts: intLongMap(df.NullValueCounts),
		NaNValueCounts:  intLongMap(df.NanValueCounts),
		LowerBounds:     intBytesMap(df.LowerBounds),
		UpperBounds:     intBytesMap(df.UpperBounds),
		KeyMetadata:     df.KeyMetadata,
		SplitOffsets:    df.SplitOffsets,
		EqualityIDs:     df.EqualityIDs,
		SortOrderID:     df.SortOrderID,
	}
	return out
}

// Avro schema for manifest list (format v2).
const manifestListAvroSchema = `{
	"type": "record",
	"name": "manifest_file",
	"fields": [
		{"name": "manifest_path", "type": "string", "field-id": 500},
		{"name": "manifest_length", "type": "long", "field-id": 501},
		{"name": "partition_spec_id", "type": "int", "field-id": 502},
		{"name": "content", "type": "int", "field-id": 517},
		{"name": "sequence_number", "type": "long", "field-id": 515},
		{"name": "min_sequence_number", "type": "long", "field-id": 516},
		{"name": "added_snapshot_id", "type": "long", "field-id": 503},
		{"name": "added_data_files_count", "type": "int", "field-id": 504},
		{"name": "added_rows_count", "type": "long", "field-id": 512},
		{"name": "existing_data_files_count", "type": "int", "field-id": 505},
		{"name": "existing_rows_count", "type": "long", "field-id": 513},
		{"name": "deleted_data_files_count", "type": "int", "field-id": 506},
		{"name": "deleted_rows_count", "type": "long", "field-id": 514}
	]
}`

// writeManifestList writes manifest file entries as an Avro OCF file.
func writeManifestList(manifests []iceberg.ManifestFile, snapshotID int64, parentID *int64, seqNum int64) ([]byte, error) {
	meta := map[string][]byte{
		"format-version":  []byte("2"),
		"snapshot-id":     []byte(fmt.Sprint(snapshotID)),
		"sequence-number": []byte(fmt.Sprint(seqNum)),
	}
	if parentID != nil {
		meta["parent-snapshot-id"] = []byte(fmt.Sprint(*parentID))
	}

	var buf bytes.Buffer
	enc, err := ocf.NewEncoder(manifestListAvroSchema, &buf,
		ocf.WithMetadata(meta),
		ocf.WithCodec(ocf.Deflate),
	)
	if err != nil {
		return nil, fmt.Errorf("create manifest list encoder: %w", err)
	}

	for _, mf := range manifests {
		if err := enc.Encode(mf); err != nil {
			return nil, fmt.Errorf("encode manifest list entry: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close manifest list encoder: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadManifestList decodes the manifests listed by a snapshot.
func ReadManifestList(ctx context.Context, io storage.Storage, path string) ([]iceberg.ManifestFile, error) {
	data, err := io.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read manifest list %s: %w", path, err)
	}
	dec, err := ocf.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open manifest list %s: %w", path, err)
	}
	var out []iceberg.ManifestFile
	for dec.HasNext() {
		var mf iceberg.ManifestFile
		if err := dec.Decode(&mf); err != nil {
			return nil, fmt.Errorf("decode manifest list %s: %w", path, err)
		}
		out = append(out, mf)
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("decode manifest list %s: %w", path, err)
	}
	return out, nil
}
