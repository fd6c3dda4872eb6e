package row

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"
)

// Go representations of field values, by SQL type:
//
//	BOOLEAN   bool
//	TINYINT   int8
//	SMALLINT  int16
//	INT       int32
//	BIGINT    int64
//	FLOAT     float32
//	DOUBLE    float64
//	DECIMAL   Decimal
//	STRING    string
//	BYTES     []byte
//	DATE      time.Time (UTC midnight)
//	TIME      time.Duration since midnight
//	TIMESTAMP time.Time
//
// Coerce converts looser inputs (JSON numbers, strings, other integer widths)
// into these.

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05.999999"
)

// Coerce converts v to the canonical Go value for t. nil stays nil.
func Coerce(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t.SQLType {
	case TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			return strconv.ParseBool(x)
		}
	case TypeTinyInt:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt8 || n > math.MaxInt8 {
			return nil, fmt.Errorf("value %d overflows TINYINT", n)
		}
		return int8(n), nil
	case TypeSmallInt:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, fmt.Errorf("value %d overflows SMALLINT", n)
		}
		return int16(n), nil
	case TypeInt:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("value %d overflows INT", n)
		}
		return int32(n), nil
	case TypeBigInt:
		return toInt64(v)
	case TypeFloat:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case TypeDouble:
		return toFloat64(v)
	case TypeDecimal:
		return toDecimal(v)
	case TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		case fmt.Stringer:
			return x.String(), nil
		}
	case TypeBytes:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			b, err := base64.StdEncoding.DecodeString(x)
			if err != nil {
				return []byte(x), nil
			}
			return b, nil
		}
	case TypeDate:
		switch x := v.(type) {
		case time.Time:
			y, m, d := x.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		case string:
			return time.ParseInLocation(dateLayout, x, time.UTC)
		}
	case TypeTime:
		switch x := v.(type) {
		case time.Duration:
			return x, nil
		case string:
			tm, err := time.ParseInLocation(timeLayout, x, time.UTC)
			if err != nil {
				return nil, err
			}
			return tm.Sub(time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC)), nil
		}
	case TypeTimestamp:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999"} {
				if tm, err := time.ParseInLocation(layout, x, time.UTC); err == nil {
					return tm, nil
				}
			}
			return nil, fmt.Errorf("invalid timestamp %q", x)
		}
	default:
		return nil, fmt.Errorf("cannot coerce value for type %s", t)
	}
	return nil, fmt.Errorf("cannot coerce %T to %s", v, t)
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("value %v is not an integer", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return 0, fmt.Errorf("cannot coerce %T to integer", v)
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(x, 64)
	}
	return 0, fmt.Errorf("cannot coerce %T to floating point", v)
}

func toDecimal(v any) (Decimal, error) {
	switch x := v.(type) {
	case Decimal:
		return x, nil
	case *big.Int:
		return Decimal{Unscaled: x}, nil
	case json.Number:
		return ParseDecimal(x.String())
	case string:
		return ParseDecimal(x)
	case float64:
		return ParseDecimal(strconv.FormatFloat(x, 'f', -1, 64))
	case int64:
		return Decimal{Unscaled: big.NewInt(x)}, nil
	case int:
		return Decimal{Unscaled: big.NewInt(int64(x))}, nil
	}
	return Decimal{}, fmt.Errorf("cannot coerce %T to decimal", v)
}
