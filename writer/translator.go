package writer

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/row"
)

// Physical record values, by iceberg type:
//
//	boolean              bool
//	int, date            int32 (date: days since epoch)
//	long, time, ts       int64 (time, timestamp: microseconds)
//	float, double        float32, float64
//	string               string
//	binary, fixed, uuid  []byte
//	decimal              *big.Int unscaled
//	struct               []any aligned with the struct fields
//
// A record is a []any aligned with the physical schema fields.

// rowTranslator maps logical rows onto physical records by column name.
type rowTranslator struct {
	arity  int
	fields []fieldTranslator
}

type fieldTranslator struct {
	pos     int // logical position; -1 when the row has no such column
	logical row.Type
	field   iceberg.NestedField
}

func newRowTranslator(rowType row.Schema, schema *iceberg.Schema) (*rowTranslator, error) {
	t := &rowTranslator{arity: rowType.Len(), fields: make([]fieldTranslator, len(schema.Fields))}
	for i, f := range schema.Fields {
		pos := rowType.IndexOf(f.Name)
		if pos < 0 && f.Required {
			return nil, &icebergerr.ConfigurationError{Field: f.Name, Reason: "required column is missing from the row type " + rowType.String()}
		}
		ft := fieldTranslator{pos: pos, field: f}
		if pos >= 0 {
			ft.logical = rowType.Field(pos).Type
		}
		if !f.Type.ID().IsPrimitive() {
			return nil, &icebergerr.UnsupportedTypeError{Type: f.Type.String(), Direction: "to_physical"}
		}
		t.fields[i] = ft
	}
	return t, nil
}

func (t *rowTranslator) translate(r row.Row) ([]any, error) {
	if r.Arity() != t.arity {
		return nil, fmt.Errorf("row has %d fields, row type has %d", r.Arity(), t.arity)
	}
	out := make([]any, len(t.fields))
	for i, ft := range t.fields {
		var v any
		if ft.pos >= 0 {
			v = r.Fields[ft.pos]
		}
		pv, err := physicalValue(ft.field, ft.logical, v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", ft.field.Name, err)
		}
		out[i] = pv
	}
	return out, nil
}

func physicalValue(f iceberg.NestedField, logical row.Type, v any) (any, error) {
	if v != nil && logical.SQLType != row.TypeNull {
		cv, err := row.Coerce(logical, v)
		if err != nil {
			return nil, err
		}
		v = cv
	}
	if v == nil {
		if f.Required {
			return nil, fmt.Errorf("null value for required column")
		}
		return nil, nil
	}

	switch t := f.Type.(type) {
	case iceberg.DecimalType:
		return decimalValue(t, v)
	case iceberg.TimestampType:
		ts, ok := v.(time.Time)
		if !ok {
			if n, ok := asInt64(v); ok {
				return n, nil
			}
			break
		}
		if !t.WithZone {
			// Without zone: keep the wall clock.
			ts = time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC)
		}
		return ts.UnixMicro(), nil
	}

	switch f.Type.ID() {
	case iceberg.TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case iceberg.TypeInteger:
		if n, ok := asInt64(v); ok {
			if n < math.MinInt32 || n > math.MaxInt32 {
				return nil, fmt.Errorf("value %d overflows int", n)
			}
			return int32(n), nil
		}
	case iceberg.TypeLong:
		if n, ok := asInt64(v); ok {
			return n, nil
		}
	case iceberg.TypeFloat:
		switch x := v.(type) {
		case float32:
			return x, nil
		case float64:
			return float32(x), nil
		}
		if n, ok := asInt64(v); ok {
			return float32(n), nil
		}
	case iceberg.TypeDouble:
		switch x := v.(type) {
		case float32:
			return float64(x), nil
		case float64:
			return x, nil
		}
		if n, ok := asInt64(v); ok {
			return float64(n), nil
		}
	case iceberg.TypeDate:
		switch x := v.(type) {
		case time.Time:
			return int32(floorDiv(x.Unix(), 86400)), nil
		case int32:
			return x, nil
		}
	case iceberg.TypeTime:
		switch x := v.(type) {
		case time.Duration:
			return x.Microseconds(), nil
		case int64:
			return x, nil
		}
	case iceberg.TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case iceberg.TypeBinary, iceberg.TypeUUID, iceberg.TypeFixed:
		var b []byte
		switch x := v.(type) {
		case []byte:
			b = x
		case string:
			b = []byte(x)
		default:
			return nil, fmt.Errorf("value %T does not match type %s", v, f.Type)
		}
		if ft, ok := f.Type.(iceberg.FixedType); ok && len(b) != ft.Length {
			return nil, fmt.Errorf("value has %d bytes, %s needs %d", len(b), f.Type, ft.Length)
		}
		if f.Type.ID() == iceberg.TypeUUID && len(b) != 16 {
			return nil, fmt.Errorf("uuid value has %d bytes", len(b))
		}
		return b, nil
	}
	return nil, fmt.Errorf("value %T does not match type %s", v, f.Type)
}

func decimalValue(t iceberg.DecimalType, v any) (*big.Int, error) {
	var d row.Decimal
	switch x := v.(type) {
	case row.Decimal:
		d = x
	case *big.Int:
		return x, nil
	default:
		n, ok := asInt64(v)
		if !ok {
			return nil, fmt.Errorf("value %T does not match type %s", v, t)
		}
		d = row.Decimal{Unscaled: big.NewInt(n)}
	}
	unscaled, err := d.Rescale(t.Scale)
	if err != nil {
		return nil, err
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.Precision)), nil)
	if new(big.Int).Abs(unscaled).Cmp(limit) >= 0 {
		return nil, fmt.Errorf("value %s exceeds %s", d, t)
	}
	return unscaled, nil
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case int:
		return int64(x), true
	}
	return 0, false
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// PositionDelete marks row Pos of the data file at Path as deleted. Row
// optionally carries the deleted values in the position-delete row type.
type PositionDelete struct {
	Path string
	Pos  int64
	Row  *row.Row
}

type positionDeleteTranslator struct {
	rows *rowTranslator // nil when the layout has no row column
}

func newPositionDeleteTranslator(rowType row.Schema, layout *iceberg.Schema) (*positionDeleteTranslator, error) {
	f, ok := layout.FindField(iceberg.DeleteFileRowID)
	if !ok {
		return &positionDeleteTranslator{}, nil
	}
	st, ok := f.Type.(*iceberg.StructType)
	if !ok {
		return nil, fmt.Errorf("position delete row column has type %s", f.Type)
	}
	rt, err := newRowTranslator(rowType, &iceberg.Schema{Fields: st.Fields})
	if err != nil {
		return nil, err
	}
	return &positionDeleteTranslator{rows: rt}, nil
}

func (t *positionDeleteTranslator) translate(d PositionDelete) ([]any, error) {
	if d.Path == "" {
		return nil, fmt.Errorf("position delete without a file path")
	}
	if d.Pos < 0 {
		return nil, fmt.Errorf("position delete with negative position %d", d.Pos)
	}
	if t.rows == nil {
		return []any{d.Path, d.Pos}, nil
	}
	var rec any
	if d.Row != nil {
		r, err := t.rows.translate(*d.Row)
		if err != nil {
			return nil, fmt.Errorf("position delete row: %w", err)
		}
		rec = r
	}
	return []any{d.Path, d.Pos, rec}, nil
}
