package iceberg

import "encoding/json"

// MappedField maps column names found in data files to a field id. Readers
// use it for files written without embedded field ids.
type MappedField struct {
	FieldID int           `json:"field-id"`
	Names   []string      `json:"names"`
	Fields  []MappedField `json:"fields,omitempty"`
}

// NameMapping returns the default mapping of s: every field, nested ones
// included, is known by its current name.
func NameMapping(s *Schema) []MappedField {
	return mapFields(s.Fields)
}

// NameMappingJSON renders NameMapping(s) as stored in the
// schema.name-mapping.default table property.
func NameMappingJSON(s *Schema) (string, error) {
	b, err := json.Marshal(NameMapping(s))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func mapFields(fields []NestedField) []MappedField {
	out := make([]MappedField, 0, len(fields))
	for _, f := range fields {
		out = append(out, MappedField{FieldID: f.ID, Names: []string{f.Name}, Fields: mapType(f.Type)})
	}
	return out
}

func mapType(t Type) []MappedField {
	switch x := t.(type) {
	case *StructType:
		return mapFields(x.Fields)
	case *ListType:
		return []MappedField{{FieldID: x.ElementID, Names: []string{"element"}, Fields: mapType(x.Element)}}
	case *MapType:
		return []MappedField{
			{FieldID: x.KeyID, Names: []string{"key"}, Fields: mapType(x.Key)},
			{FieldID: x.ValueID, Names: []string{"value"}, Fields: mapType(x.Value)},
		}
	}
	return nil
}
