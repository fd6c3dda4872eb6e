package writer

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/zegnqin/seatunnel/iceberg"
)

// encoding creates file writers for one on-disk format.
type encoding interface {
	newFileWriter(out io.Writer, schema *iceberg.Schema, props map[string]string) (fileWriter, error)
}

// fileWriter serializes physical records into one file.
type fileWriter interface {
	write(rec []any) error
	close() error
}

var (
	encodingsMu sync.RWMutex
	encodings   = map[iceberg.FileFormat]encoding{
		iceberg.FormatParquet: parquetEncoding{},
		iceberg.FormatORC:     orcEncoding{},
	}
)

func lookupEncoding(format iceberg.FileFormat) (encoding, bool) {
	encodingsMu.RLock()
	defer encodingsMu.RUnlock()
	e, ok := encodings[format]
	return e, ok
}

// SupportedFormats lists the formats appenders can be created for.
func SupportedFormats() []iceberg.FileFormat {
	encodingsMu.RLock()
	defer encodingsMu.RUnlock()
	out := make([]iceberg.FileFormat, 0, len(encodings))
	for _, f := range []iceberg.FileFormat{iceberg.FormatParquet, iceberg.FormatORC, iceberg.FormatAvro} {
		if _, ok := encodings[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

func intProp(props map[string]string, key string, def int64) (int64, error) {
	v, ok := props[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: invalid value %q", key, v)
	}
	return n, nil
}
