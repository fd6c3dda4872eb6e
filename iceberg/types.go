package iceberg

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Iceberg table format v2 type definitions.
// See: https://iceberg.apache.org/spec/#schemas-and-data-types

// TypeID identifies the family of a physical type.
type TypeID int

const (
	TypeBoolean TypeID = iota
	TypeInteger
	TypeLong
	TypeFloat
	TypeDouble
	TypeDate
	TypeTime
	TypeTimestamp
	TypeString
	TypeUUID
	TypeFixed
	TypeBinary
	TypeDecimal
	TypeStruct
	TypeList
	TypeMap
)

var typeIDNames = [...]string{
	TypeBoolean:   "BOOLEAN",
	TypeInteger:   "INTEGER",
	TypeLong:      "LONG",
	TypeFloat:     "FLOAT",
	TypeDouble:    "DOUBLE",
	TypeDate:      "DATE",
	TypeTime:      "TIME",
	TypeTimestamp: "TIMESTAMP",
	TypeString:    "STRING",
	TypeUUID:      "UUID",
	TypeFixed:     "FIXED",
	TypeBinary:    "BINARY",
	TypeDecimal:   "DECIMAL",
	TypeStruct:    "STRUCT",
	TypeList:      "LIST",
	TypeMap:       "MAP",
}

func (id TypeID) String() string {
	if int(id) >= 0 && int(id) < len(typeIDNames) {
		return typeIDNames[id]
	}
	return fmt.Sprintf("TypeID(%d)", int(id))
}

// ParseTypeID resolves an upper-case type id name such as "LONG".
func ParseTypeID(name string) (TypeID, bool) {
	for i, n := range typeIDNames {
		if n == name {
			return TypeID(i), true
		}
	}
	return 0, false
}

// IsPrimitive reports whether the id is not a nested type.
func (id TypeID) IsPrimitive() bool {
	return id != TypeStruct && id != TypeList && id != TypeMap
}

// Type is a physical column type.
type Type interface {
	ID() TypeID
	String() string
}

// PrimitiveType covers every primitive without parameters.
type PrimitiveType struct {
	id TypeID
}

func (p PrimitiveType) ID() TypeID { return p.id }

func (p PrimitiveType) String() string {
	switch p.id {
	case TypeInteger:
		return "int"
	default:
		return strings.ToLower(p.id.String())
	}
}

// TimestampType is a microsecond timestamp; WithZone marks timestamptz.
type TimestampType struct {
	WithZone bool
}

func (TimestampType) ID() TypeID { return TypeTimestamp }

func (t TimestampType) String() string {
	if t.WithZone {
		return "timestamptz"
	}
	return "timestamp"
}

// DecimalType is a fixed-point decimal.
type DecimalType struct {
	Precision int
	Scale     int
}

func (DecimalType) ID() TypeID { return TypeDecimal }

func (d DecimalType) String() string { return fmt.Sprintf("decimal(%d, %d)", d.Precision, d.Scale) }

// FixedType is a fixed-length byte array.
type FixedType struct {
	Length int
}

func (FixedType) ID() TypeID { return TypeFixed }

func (f FixedType) String() string { return fmt.Sprintf("fixed[%d]", f.Length) }

// Primitive singletons.
var (
	Boolean     Type = PrimitiveType{TypeBoolean}
	Int         Type = PrimitiveType{TypeInteger}
	Long        Type = PrimitiveType{TypeLong}
	Float       Type = PrimitiveType{TypeFloat}
	Double      Type = PrimitiveType{TypeDouble}
	Date        Type = PrimitiveType{TypeDate}
	Time        Type = PrimitiveType{TypeTime}
	Timestamp   Type = TimestampType{}
	TimestampTz Type = TimestampType{WithZone: true}
	String      Type = PrimitiveType{TypeString}
	UUID        Type = PrimitiveType{TypeUUID}
	Binary      Type = PrimitiveType{TypeBinary}
)

// NestedField is a column or nested struct member with a stable id.
type NestedField struct {
	ID       int
	Name     string
	Type     Type
	Required bool
	Doc      string
}

func (f NestedField) String() string {
	req := "optional"
	if f.Required {
		req = "required"
	}
	return fmt.Sprintf("%d: %s: %s %s", f.ID, f.Name, req, f.Type)
}

// StructType is an ordered group of fields.
type StructType struct {
	Fields []NestedField
}

func (*StructType) ID() TypeID { return TypeStruct }

func (s *StructType) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.String()
	}
	return "struct<" + strings.Join(parts, ", ") + ">"
}

// ListType is a repeated element.
type ListType struct {
	ElementID       int
	Element         Type
	ElementRequired bool
}

func (*ListType) ID() TypeID { return TypeList }

func (l *ListType) String() string { return "list<" + l.Element.String() + ">" }

// MapType is a key/value collection.
type MapType struct {
	KeyID         int
	Key           Type
	ValueID       int
	Value         Type
	ValueRequired bool
}

func (*MapType) ID() TypeID { return TypeMap }

func (m *MapType) String() string { return "map<" + m.Key.String() + ", " + m.Value.String() + ">" }

type nestedFieldJSON struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Required bool            `json:"required"`
	Type     json.RawMessage `json:"type"`
	Doc      string          `json:"doc,omitempty"`
}

func (f NestedField) MarshalJSON() ([]byte, error) {
	t, err := marshalType(f.Type)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}
	return json.Marshal(nestedFieldJSON{ID: f.ID, Name: f.Name, Required: f.Required, Type: t, Doc: f.Doc})
}

func (f *NestedField) UnmarshalJSON(data []byte) error {
	var raw nestedFieldJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := unmarshalType(raw.Type)
	if err != nil {
		return fmt.Errorf("field %s: %w", raw.Name, err)
	}
	*f = NestedField{ID: raw.ID, Name: raw.Name, Type: t, Required: raw.Required, Doc: raw.Doc}
	return nil
}

type structJSON struct {
	Type   string        `json:"type"`
	Fields []NestedField `json:"fields"`
}

type listJSON struct {
	Type            string          `json:"type"`
	ElementID       int             `json:"element-id"`
	Element         json.RawMessage `json:"element"`
	ElementRequired bool            `json:"element-required"`
}

type mapJSON struct {
	Type          string          `json:"type"`
	KeyID         int             `json:"key-id"`
	Key           json.RawMessage `json:"key"`
	ValueID       int             `json:"value-id"`
	Value         json.RawMessage `json:"value"`
	ValueRequired bool            `json:"value-required"`
}

func marshalType(t Type) (json.RawMessage, error) {
	switch v := t.(type) {
	case nil:
		return nil, fmt.Errorf("missing type")
	case *StructType:
		return json.Marshal(structJSON{Type: "struct", Fields: v.Fields})
	case *ListType:
		el, err := marshalType(v.Element)
		if err != nil {
			return nil, err
		}
		return json.Marshal(listJSON{Type: "list", ElementID: v.ElementID, Element: el, ElementRequired: v.ElementRequired})
	case *MapType:
		k, err := marshalType(v.Key)
		if err != nil {
			return nil, err
		}
		val, err := marshalType(v.Value)
		if err != nil {
			return nil, err
		}
		return json.Marshal(mapJSON{Type: "map", KeyID: v.KeyID, Key: k, ValueID: v.ValueID, Value: val, ValueRequired: v.ValueRequired})
	case DecimalType:
		return json.Marshal(fmt.Sprintf("decimal(%d, %d)", v.Precision, v.Scale))
	default:
		return json.Marshal(t.String())
	}
}

func unmarshalType(data json.RawMessage) (Type, error) {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		return ParseType(name)
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse type: %w", err)
	}
	switch head.Type {
	case "struct":
		var s structJSON
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return &StructType{Fields: s.Fields}, nil
	case "list":
		var l listJSON
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, err
		}
		el, err := unmarshalType(l.Element)
		if err != nil {
			return nil, err
		}
		return &ListType{ElementID: l.ElementID, Element: el, ElementRequired: l.ElementRequired}, nil
	case "map":
		var m mapJSON
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		k, err := unmarshalType(m.Key)
		if err != nil {
			return nil, err
		}
		v, err := unmarshalType(m.Value)
		if err != nil {
			return nil, err
		}
		return &MapType{KeyID: m.KeyID, Key: k, ValueID: m.ValueID, Value: v, ValueRequired: m.ValueRequired}, nil
	}
	return nil, fmt.Errorf("unknown nested type %q", head.Type)
}

// ParseType parses a primitive type string as written in table metadata.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "boolean":
		return Boolean, nil
	case "int", "integer":
		return Int, nil
	case "long":
		return Long, nil
	case "float":
		return Float, nil
	case "double":
		return Double, nil
	case "date":
		return Date, nil
	case "time":
		return Time, nil
	case "timestamp":
		return Timestamp, nil
	case "timestamptz":
		return TimestampTz, nil
	case "string":
		return String, nil
	case "uuid":
		return UUID, nil
	case "binary":
		return Binary, nil
	}
	if strings.HasPrefix(s, "fixed[") {
		var n int
		if _, err := fmt.Sscanf(s, "fixed[%d]", &n); err != nil {
			return nil, fmt.Errorf("parse %q: %w", s, err)
		}
		return FixedType{Length: n}, nil
	}
	if strings.HasPrefix(s, "decimal(") {
		var p, sc int
		if _, err := fmt.Sscanf(strings.ReplaceAll(s, " ", ""), "decimal(%d,%d)", &p, &sc); err != nil {
			return nil, fmt.Errorf("parse %q: %w", s, err)
		}
		return DecimalType{Precision: p, Scale: sc}, nil
	}
	return nil, fmt.Errorf("unknown type %q", s)
}
