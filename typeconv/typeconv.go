// Package typeconv maps between engine logical types and Iceberg physical
// types.
package typeconv

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/row"
)

// Identity names this convertor in the engine's type-convertor registry.
const Identity = "Iceberg"

// Property keys carrying decimal parameters for ToPhysical.
const (
	PropPrecision = "precision"
	PropScale     = "scale"
)

// Decimal parameters used when mapping a physical decimal by type id alone.
const (
	DefaultDecimalPrecision = 38
	DefaultDecimalScale     = 18
)

// MaxDecimalPrecision is the largest precision a table decimal can have.
const MaxDecimalPrecision = 38

// ToLogical maps a physical type id to a logical type. DECIMAL loses its
// parameters and maps to DECIMAL(38, 18).
func ToLogical(id iceberg.TypeID) (row.Type, error) {
	switch id {
	case iceberg.TypeBoolean:
		return row.Boolean, nil
	case iceberg.TypeInteger:
		return row.Int, nil
	case iceberg.TypeLong:
		return row.BigInt, nil
	case iceberg.TypeFloat:
		return row.Float, nil
	case iceberg.TypeDouble:
		return row.Double, nil
	case iceberg.TypeDate:
		return row.Date, nil
	case iceberg.TypeTime:
		return row.Time, nil
	case iceberg.TypeTimestamp:
		return row.Timestamp, nil
	case iceberg.TypeString:
		return row.String, nil
	case iceberg.TypeFixed, iceberg.TypeBinary:
		return row.Bytes, nil
	case iceberg.TypeDecimal:
		return row.DecimalOf(DefaultDecimalPrecision, DefaultDecimalScale), nil
	}
	return row.Type{}, &icebergerr.UnsupportedTypeError{Type: id.String(), Direction: "to_logical"}
}

// ToLogicalName resolves a type id name in any casing, e.g. "long".
func ToLogicalName(name string) (row.Type, error) {
	id, ok := iceberg.ParseTypeID(strings.ToUpper(strings.TrimSpace(name)))
	if !ok {
		return row.Type{}, &icebergerr.UnsupportedTypeError{Type: name, Direction: "to_logical"}
	}
	return ToLogical(id)
}

// ToPhysical maps a logical type to a physical type. DECIMAL requires the
// precision and scale properties.
func ToPhysical(t row.Type, props map[string]any) (iceberg.Type, error) {
	switch t.SQLType {
	case row.TypeString:
		return iceberg.String, nil
	case row.TypeBoolean:
		return iceberg.Boolean, nil
	case row.TypeTinyInt, row.TypeSmallInt, row.TypeInt:
		return iceberg.Int, nil
	case row.TypeBigInt:
		return iceberg.Long, nil
	case row.TypeFloat:
		return iceberg.Float, nil
	case row.TypeDouble:
		return iceberg.Double, nil
	case row.TypeDecimal:
		p, err := intProp(props, PropPrecision)
		if err != nil {
			return nil, err
		}
		s, err := intProp(props, PropScale)
		if err != nil {
			return nil, err
		}
		if p < 1 || p > MaxDecimalPrecision {
			return nil, &icebergerr.ConfigurationError{Field: PropPrecision, Reason: fmt.Sprintf("decimal precision must be 1 to %d, got %d", MaxDecimalPrecision, p)}
		}
		if s < 0 || s > p {
			return nil, &icebergerr.ConfigurationError{Field: PropScale, Reason: fmt.Sprintf("decimal scale must be 0 to precision %d, got %d", p, s)}
		}
		return iceberg.DecimalType{Precision: p, Scale: s}, nil
	case row.TypeBytes:
		return iceberg.Binary, nil
	case row.TypeDate:
		return iceberg.Date, nil
	case row.TypeTime:
		return iceberg.Time, nil
	case row.TypeTimestamp:
		return iceberg.Timestamp, nil
	}
	return nil, &icebergerr.UnsupportedTypeError{Type: t.SQLType.String(), Direction: "to_physical"}
}

// ToPhysicalName returns the type id name of the mapped physical type.
func ToPhysicalName(t row.Type, props map[string]any) (string, error) {
	pt, err := ToPhysical(t, props)
	if err != nil {
		return "", err
	}
	return pt.ID().String(), nil
}

func intProp(props map[string]any, key string) (int, error) {
	v, ok := props[key]
	if !ok || v == nil {
		return 0, &icebergerr.ConfigurationError{Field: key, Reason: "required for DECIMAL"}
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, &icebergerr.ConfigurationError{Field: key, Reason: fmt.Sprintf("not an integer: %q", n)}
		}
		return i, nil
	}
	return 0, &icebergerr.ConfigurationError{Field: key, Reason: fmt.Sprintf("unexpected %T", v)}
}
