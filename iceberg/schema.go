package iceberg

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Schema defines the columns of an Iceberg table.
type Schema struct {
	SchemaID           int
	Fields             []NestedField
	IdentifierFieldIDs []int
}

// NewSchema builds a schema; identifier ids are optional.
func NewSchema(id int, fields []NestedField, identifierIDs ...int) *Schema {
	return &Schema{SchemaID: id, Fields: fields, IdentifierFieldIDs: identifierIDs}
}

// FindFieldByName looks up a top-level field. The match is case-sensitive.
func (s *Schema) FindFieldByName(name string) (NestedField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return NestedField{}, false
}

// FindField looks up a top-level field by id.
func (s *Schema) FindField(id int) (NestedField, bool) {
	for _, f := range s.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return NestedField{}, false
}

// Select returns a schema with the given top-level field ids, in schema order.
func (s *Schema) Select(ids ...int) (*Schema, error) {
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.FindField(id); !ok {
			return nil, fmt.Errorf("select: field id %d not in schema", id)
		}
		want[id] = true
	}
	out := &Schema{SchemaID: s.SchemaID}
	for _, f := range s.Fields {
		if want[f.ID] {
			out.Fields = append(out.Fields, f)
		}
	}
	return out, nil
}

// SelectNames is Select by column name.
func (s *Schema) SelectNames(names ...string) (*Schema, error) {
	ids := make([]int, 0, len(names))
	for _, n := range names {
		f, ok := s.FindFieldByName(n)
		if !ok {
			return nil, fmt.Errorf("select: column %q not in schema", n)
		}
		ids = append(ids, f.ID)
	}
	return s.Select(ids...)
}

// IdentifierFieldNames resolves identifier ids to names.
func (s *Schema) IdentifierFieldNames() []string {
	out := make([]string, 0, len(s.IdentifierFieldIDs))
	for _, id := range s.IdentifierFieldIDs {
		if f, ok := s.FindField(id); ok {
			out = append(out, f.Name)
		}
	}
	return out
}

// HighestFieldID returns the largest id in the schema, nested ids included.
func (s *Schema) HighestFieldID() int {
	return maxFieldID(s.Fields)
}

func maxFieldID(fields []NestedField) int {
	max := 0
	for _, f := range fields {
		if f.ID > max {
			max = f.ID
		}
		var nested int
		switch t := f.Type.(type) {
		case *StructType:
			nested = maxFieldID(t.Fields)
		case *ListType:
			nested = t.ElementID
		case *MapType:
			nested = t.ValueID
			if t.KeyID > nested {
				nested = t.KeyID
			}
		}
		if nested > max {
			max = nested
		}
	}
	return max
}

// AsStruct returns the fields as a struct type.
func (s *Schema) AsStruct() *StructType { return &StructType{Fields: s.Fields} }

func (s *Schema) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.String()
	}
	return "table {" + strings.Join(parts, ", ") + "}"
}

type schemaJSON struct {
	Type               string        `json:"type"`
	SchemaID           int           `json:"schema-id"`
	IdentifierFieldIDs []int         `json:"identifier-field-ids,omitempty"`
	Fields             []NestedField `json:"fields"`
}

func (s Schema) MarshalJSON() ([]byte, error) {
	fields := s.Fields
	if fields == nil {
		fields = []NestedField{}
	}
	return json.Marshal(schemaJSON{Type: "struct", SchemaID: s.SchemaID, IdentifierFieldIDs: s.IdentifierFieldIDs, Fields: fields})
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw schemaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Schema{SchemaID: raw.SchemaID, Fields: raw.Fields, IdentifierFieldIDs: raw.IdentifierFieldIDs}
	return nil
}
