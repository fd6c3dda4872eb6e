package writer

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/zegnqin/seatunnel/iceberg"
)

// parquetSchemaKey is the footer key holding the iceberg schema JSON.
const parquetSchemaKey = "iceberg.schema"

type parquetEncoding struct{}

func parquetCodec(name string) (compress.Codec, error) {
	switch strings.ToLower(name) {
	case "", "zstd":
		return &parquet.Zstd, nil
	case "snappy":
		return &parquet.Snappy, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "uncompressed", "none":
		return &parquet.Uncompressed, nil
	}
	return nil, fmt.Errorf("%s: unsupported codec %q", iceberg.PropParquetCompression, name)
}

// parquetNode builds the column of f, tagged with its iceberg field id.
func parquetNode(f iceberg.NestedField) (parquet.Node, error) {
	var node parquet.Node
	switch t := f.Type.(type) {
	case iceberg.DecimalType:
		node = parquet.Decimal(t.Scale, t.Precision, parquet.FixedLenByteArrayType(iceberg.DecimalRequiredBytes(t.Precision)))
	case iceberg.FixedType:
		node = parquet.Leaf(parquet.FixedLenByteArrayType(t.Length))
	case iceberg.TimestampType:
		node = parquet.TimestampAdjusted(parquet.Microsecond, t.WithZone)
	case *iceberg.StructType:
		group := parquet.Group{}
		for _, child := range t.Fields {
			n, err := parquetNode(child)
			if err != nil {
				return nil, err
			}
			group[child.Name] = n
		}
		node = group
	default:
		switch f.Type.ID() {
		case iceberg.TypeBoolean:
			node = parquet.Leaf(parquet.BooleanType)
		case iceberg.TypeInteger:
			node = parquet.Int(32)
		case iceberg.TypeLong:
			node = parquet.Int(64)
		case iceberg.TypeFloat:
			node = parquet.Leaf(parquet.FloatType)
		case iceberg.TypeDouble:
			node = parquet.Leaf(parquet.DoubleType)
		case iceberg.TypeDate:
			node = parquet.Date()
		case iceberg.TypeTime:
			node = parquet.TimeAdjusted(parquet.Microsecond, false)
		case iceberg.TypeString:
			node = parquet.String()
		case iceberg.TypeUUID:
			node = parquet.UUID()
		case iceberg.TypeBinary:
			node = parquet.Leaf(parquet.ByteArrayType)
		default:
			return nil, fmt.Errorf("parquet: unsupported column type %s", f.Type)
		}
	}
	if f.Required {
		node = parquet.Required(node)
	} else {
		node = parquet.Optional(node)
	}
	return parquet.FieldID(node, f.ID), nil
}

func parquetSchema(schema *iceberg.Schema) (*parquet.Schema, error) {
	group := parquet.Group{}
	for _, f := range schema.Fields {
		n, err := parquetNode(f)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		group[f.Name] = n
	}
	return parquet.NewSchema("table", group), nil
}

func (parquetEncoding) newFileWriter(out io.Writer, schema *iceberg.Schema, props map[string]string) (fileWriter, error) {
	codec, err := parquetCodec(props[iceberg.PropParquetCompression])
	if err != nil {
		return nil, err
	}
	pageSize, err := intProp(props, iceberg.PropParquetPageSizeBytes, 0)
	if err != nil {
		return nil, err
	}
	rowGroupLimit, err := intProp(props, iceberg.PropParquetRowGroupLimit, 0)
	if err != nil {
		return nil, err
	}

	ps, err := parquetSchema(schema)
	if err != nil {
		return nil, err
	}
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}

	opts := []parquet.WriterOption{
		ps,
		parquet.Compression(codec),
		parquet.KeyValueMetadata(parquetSchemaKey, string(schemaJSON)),
	}
	if pageSize > 0 {
		opts = append(opts, parquet.PageBufferSize(int(pageSize)))
	}
	if rowGroupLimit > 0 {
		opts = append(opts, parquet.MaxRowsPerRowGroup(rowGroupLimit))
	}

	// Group nodes order leaves by name; resolve column indexes from the
	// built schema instead of the iceberg field order.
	columns := make(map[string]int)
	for i, path := range ps.Columns() {
		columns[strings.Join(path, "\x00")] = i
	}
	return &parquetFileWriter{
		w:       parquet.NewWriter(out, opts...),
		fields:  schema.Fields,
		columns: columns,
	}, nil
}

type parquetFileWriter struct {
	w       *parquet.Writer
	fields  []iceberg.NestedField
	columns map[string]int
	buf     []parquet.Row
}

func (pw *parquetFileWriter) write(rec []any) error {
	r, err := pw.appendValues(make(parquet.Row, 0, len(pw.columns)), pw.fields, rec, 0, "")
	if err != nil {
		return err
	}
	sort.SliceStable(r, func(i, j int) bool { return r[i].Column() < r[j].Column() })
	pw.buf = append(pw.buf[:0], r)
	if _, err := pw.w.WriteRows(pw.buf); err != nil {
		return fmt.Errorf("write parquet row: %w", err)
	}
	return nil
}

// appendValues flattens rec into leaf values. def counts the present
// optional ancestors.
func (pw *parquetFileWriter) appendValues(dst parquet.Row, fields []iceberg.NestedField, rec []any, def int, prefix string) (parquet.Row, error) {
	for i, f := range fields {
		var v any
		if rec != nil {
			v = rec[i]
		}
		path := prefix + f.Name

		if st, ok := f.Type.(*iceberg.StructType); ok {
			var child []any
			childDef := def
			if v != nil {
				c, ok := v.([]any)
				if !ok {
					return nil, fmt.Errorf("column %s: struct value %T", path, v)
				}
				child = c
				if !f.Required {
					childDef++
				}
			}
			var err error
			dst, err = pw.appendValues(dst, st.Fields, child, childDef, path+"\x00")
			if err != nil {
				return nil, err
			}
			continue
		}

		col, ok := pw.columns[path]
		if !ok {
			return nil, fmt.Errorf("column %s: not in parquet schema", strings.ReplaceAll(path, "\x00", "."))
		}
		if v == nil {
			dst = append(dst, parquet.NullValue().Level(0, def, col))
			continue
		}
		pv, err := parquetValue(f.Type, v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		level := def
		if !f.Required {
			level++
		}
		dst = append(dst, pv.Level(0, level, col))
	}
	return dst, nil
}

func parquetValue(t iceberg.Type, v any) (parquet.Value, error) {
	switch x := v.(type) {
	case bool:
		return parquet.BooleanValue(x), nil
	case int32:
		return parquet.Int32Value(x), nil
	case int64:
		return parquet.Int64Value(x), nil
	case float32:
		return parquet.FloatValue(x), nil
	case float64:
		return parquet.DoubleValue(x), nil
	case string:
		return parquet.ByteArrayValue([]byte(x)), nil
	case []byte:
		if t.ID() == iceberg.TypeFixed || t.ID() == iceberg.TypeUUID {
			return parquet.FixedLenByteArrayValue(x), nil
		}
		return parquet.ByteArrayValue(x), nil
	case *big.Int:
		dt, ok := t.(iceberg.DecimalType)
		if !ok {
			break
		}
		b, err := iceberg.FixedDecimalBytes(x, iceberg.DecimalRequiredBytes(dt.Precision))
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.FixedLenByteArrayValue(b), nil
	}
	return parquet.Value{}, fmt.Errorf("value %T does not match type %s", v, t)
}

func (pw *parquetFileWriter) close() error {
	if err := pw.w.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
