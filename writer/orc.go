package writer

import (
	"compress/flate"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/scritchley/orc"

	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
)

type orcEncoding struct{}

func orcCodec(name string) (orc.CompressionCodec, error) {
	switch strings.ToLower(name) {
	case "", "zlib":
		return orc.CompressionZlib{Level: flate.DefaultCompression}, nil
	case "snappy":
		return nil, &icebergerr.ConfigurationError{Field: iceberg.PropORCCompression, Reason: "snappy is not supported by the orc encoder, use zlib or none"}
	case "none":
		return orc.CompressionNone{}, nil
	}
	return nil, fmt.Errorf("%s: unsupported codec %q", iceberg.PropORCCompression, name)
}

// orcTypeName renders the ORC type string. Field ids are positional; time
// columns are stored as microsecond longs. The encoder has no decimal or
// binary column writers.
func orcTypeName(t iceberg.Type) (string, error) {
	switch x := t.(type) {
	case *iceberg.StructType:
		parts := make([]string, len(x.Fields))
		for i, f := range x.Fields {
			ft, err := orcTypeName(f.Type)
			if err != nil {
				return "", fmt.Errorf("column %s: %w", f.Name, err)
			}
			parts[i] = f.Name + ":" + ft
		}
		return "struct<" + strings.Join(parts, ",") + ">", nil
	case iceberg.DecimalType:
		return "", &icebergerr.UnsupportedTypeError{Type: t.String() + " in ORC", Direction: "to_physical"}
	}
	switch t.ID() {
	case iceberg.TypeBoolean:
		return "boolean", nil
	case iceberg.TypeInteger:
		return "int", nil
	case iceberg.TypeLong, iceberg.TypeTime:
		return "bigint", nil
	case iceberg.TypeFloat:
		return "float", nil
	case iceberg.TypeDouble:
		return "double", nil
	case iceberg.TypeDate:
		return "date", nil
	case iceberg.TypeTimestamp:
		return "timestamp", nil
	case iceberg.TypeString:
		return "string", nil
	case iceberg.TypeBinary, iceberg.TypeFixed, iceberg.TypeUUID:
		return "", &icebergerr.UnsupportedTypeError{Type: t.String() + " in ORC", Direction: "to_physical"}
	}
	return "", fmt.Errorf("orc: unsupported column type %s", t)
}

func (orcEncoding) newFileWriter(out io.Writer, schema *iceberg.Schema, props map[string]string) (fileWriter, error) {
	codec, err := orcCodec(props[iceberg.PropORCCompression])
	if err != nil {
		return nil, err
	}
	stripeSize, err := intProp(props, iceberg.PropORCStripeSizeBytes, 0)
	if err != nil {
		return nil, err
	}

	typeName, err := orcTypeName(schema.AsStruct())
	if err != nil {
		return nil, err
	}
	td, err := orc.ParseSchema(typeName)
	if err != nil {
		return nil, fmt.Errorf("parse orc schema %s: %w", typeName, err)
	}

	opts := []orc.WriterConfigFunc{orc.SetSchema(td), orc.SetCompression(codec)}
	if stripeSize > 0 {
		opts = append(opts, orc.SetStripeTargetSize(stripeSize))
	}
	w, err := orc.NewWriter(out, opts...)
	if err != nil {
		return nil, fmt.Errorf("create orc writer: %w", err)
	}
	return &orcFileWriter{w: w, fields: schema.Fields}, nil
}

type orcFileWriter struct {
	w      *orc.Writer
	fields []iceberg.NestedField
}

func (ow *orcFileWriter) write(rec []any) error {
	values := orcValues(ow.fields, rec)
	if err := ow.w.Write(values...); err != nil {
		return fmt.Errorf("write orc row: %w", err)
	}
	return nil
}

func orcValues(fields []iceberg.NestedField, rec []any) []interface{} {
	out := make([]interface{}, len(fields))
	for i, f := range fields {
		out[i] = orcValue(f.Type, rec[i])
	}
	return out
}

func orcValue(t iceberg.Type, v any) interface{} {
	if v == nil {
		if st, ok := t.(*iceberg.StructType); ok {
			return orcNullStruct(st)
		}
		return nil
	}
	switch x := v.(type) {
	case []any:
		st, ok := t.(*iceberg.StructType)
		if !ok {
			return nil
		}
		return orcValues(st.Fields, x)
	case int32:
		if t.ID() == iceberg.TypeDate {
			return time.Unix(int64(x)*86400, 0).UTC()
		}
		return int64(x)
	case int64:
		if t.ID() == iceberg.TypeTimestamp {
			return time.UnixMicro(x).UTC()
		}
		return x
	}
	return v
}

// orcNullStruct stands in for a null struct: the struct writer cannot take
// nil, so the struct is written present with every leaf null.
func orcNullStruct(st *iceberg.StructType) []interface{} {
	out := make([]interface{}, len(st.Fields))
	for i, f := range st.Fields {
		if child, ok := f.Type.(*iceberg.StructType); ok {
			out[i] = orcNullStruct(child)
		}
	}
	return out
}

func (ow *orcFileWriter) close() error {
	if err := ow.w.Close(); err != nil {
		return fmt.Errorf("close orc writer: %w", err)
	}
	return nil
}
