package iceberg

import (
	"fmt"
	"strings"
)

// FileFormat is the on-disk encoding of a data or delete file.
type FileFormat string

const (
	FormatParquet FileFormat = "PARQUET"
	FormatORC     FileFormat = "ORC"
	FormatAvro    FileFormat = "AVRO"
)

// ParseFileFormat accepts any casing of PARQUET, ORC or AVRO.
func ParseFileFormat(s string) (FileFormat, error) {
	switch f := FileFormat(strings.ToUpper(strings.TrimSpace(s))); f {
	case FormatParquet, FormatORC, FormatAvro:
		return f, nil
	}
	return "", fmt.Errorf("unknown file format %q", s)
}

// Extension returns the file name suffix, e.g. ".parquet".
func (f FileFormat) Extension() string {
	return "." + strings.ToLower(string(f))
}

// Table property keys read by the write path.
const (
	PropDefaultFileFormat      = "write.format.default"
	PropTargetFileSizeBytes    = "write.target-file-size-bytes"
	PropParquetCompression     = "write.parquet.compression-codec"
	PropParquetPageSizeBytes   = "write.parquet.page-size-bytes"
	PropParquetRowGroupLimit   = "write.parquet.row-group-limit"
	PropORCCompression         = "write.orc.compression-codec"
	PropORCStripeSizeBytes     = "write.orc.stripe-size-bytes"
	PropMetricsDefault         = "write.metadata.metrics.default"
	PropMetricsColumnPrefix    = "write.metadata.metrics.column."
	PropMetricsMaxInferredCols = "write.metadata.metrics.max-inferred-column-defaults"
	PropUpsertEnabled          = "write.upsert.enabled"
	PropWriteDataPath          = "write.data.path"
	PropNameMappingDefault     = "schema.name-mapping.default"

	DefaultTargetFileSizeBytes = 512 * 1024 * 1024
)
