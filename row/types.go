// Package row holds the engine-side view of data: logical column types, ordered
// row schemas, and the generic row record handed to writers.
package row

import (
	"fmt"
	"strings"
)

// SQLType is the logical kind of a column as produced by the upstream engine.
type SQLType int

const (
	TypeNull SQLType = iota
	TypeBoolean
	TypeTinyInt
	TypeSmallInt
	TypeInt
	TypeBigInt
	TypeFloat
	TypeDouble
	TypeDecimal
	TypeString
	TypeBytes
	TypeDate
	TypeTime
	TypeTimestamp
	TypeArray
	TypeMap
	TypeRow
)

var sqlTypeNames = map[SQLType]string{
	TypeNull:      "NULL",
	TypeBoolean:   "BOOLEAN",
	TypeTinyInt:   "TINYINT",
	TypeSmallInt:  "SMALLINT",
	TypeInt:       "INT",
	TypeBigInt:    "BIGINT",
	TypeFloat:     "FLOAT",
	TypeDouble:    "DOUBLE",
	TypeDecimal:   "DECIMAL",
	TypeString:    "STRING",
	TypeBytes:     "BYTES",
	TypeDate:      "DATE",
	TypeTime:      "TIME",
	TypeTimestamp: "TIMESTAMP",
	TypeArray:     "ARRAY",
	TypeMap:       "MAP",
	TypeRow:       "ROW",
}

func (t SQLType) String() string {
	if s, ok := sqlTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("SQLType(%d)", int(t))
}

// Type is a logical column type. Precision and Scale are only meaningful for
// TypeDecimal.
type Type struct {
	SQLType   SQLType
	Precision int
	Scale     int
}

// Shared instances for the scalar kinds.
var (
	Boolean   = Type{SQLType: TypeBoolean}
	TinyInt   = Type{SQLType: TypeTinyInt}
	SmallInt  = Type{SQLType: TypeSmallInt}
	Int       = Type{SQLType: TypeInt}
	BigInt    = Type{SQLType: TypeBigInt}
	Float     = Type{SQLType: TypeFloat}
	Double    = Type{SQLType: TypeDouble}
	String    = Type{SQLType: TypeString}
	Bytes     = Type{SQLType: TypeBytes}
	Date      = Type{SQLType: TypeDate}
	Time      = Type{SQLType: TypeTime}
	Timestamp = Type{SQLType: TypeTimestamp}
)

// DecimalOf returns a decimal type with the given precision and scale.
func DecimalOf(precision, scale int) Type {
	return Type{SQLType: TypeDecimal, Precision: precision, Scale: scale}
}

func (t Type) String() string {
	if t.SQLType == TypeDecimal {
		return fmt.Sprintf("DECIMAL(%d, %d)", t.Precision, t.Scale)
	}
	return t.SQLType.String()
}

// ParseType parses names such as "int", "BIGINT" or "decimal(10,2)".
func ParseType(s string) (Type, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if strings.HasPrefix(name, "DECIMAL") {
		rest := strings.TrimSpace(strings.TrimPrefix(name, "DECIMAL"))
		if rest == "" {
			return Type{SQLType: TypeDecimal}, nil
		}
		var p, sc int
		if _, err := fmt.Sscanf(strings.ReplaceAll(rest, " ", ""), "(%d,%d)", &p, &sc); err != nil {
			return Type{}, fmt.Errorf("parse decimal type %q: %w", s, err)
		}
		return DecimalOf(p, sc), nil
	}
	switch name {
	case "INTEGER":
		return Int, nil
	case "LONG":
		return BigInt, nil
	}
	for k, v := range sqlTypeNames {
		if v == name {
			return Type{SQLType: k}, nil
		}
	}
	return Type{}, fmt.Errorf("unknown type %q", s)
}
