package row

import (
	"fmt"
	"strings"
)

// Field is one named, typed column of a Schema.
type Field struct {
	Name string
	Type Type
}

// Schema is the ordered column layout of rows produced by the engine.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema from ordered fields. Duplicate names are rejected.
func NewSchema(fields ...Field) (Schema, error) {
	s := Schema{fields: make([]Field, len(fields)), index: make(map[string]int, len(fields))}
	for i, f := range fields {
		if _, dup := s.index[f.Name]; dup {
			return Schema{}, fmt.Errorf("duplicate column %q", f.Name)
		}
		s.fields[i] = f
		s.index[f.Name] = i
	}
	return s, nil
}

// MustSchema is NewSchema for static layouts; it panics on duplicates.
func MustSchema(fields ...Field) Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.fields) }

// Fields returns a copy of the ordered columns.
func (s Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field returns the i-th column.
func (s Schema) Field(i int) Field { return s.fields[i] }

// Names returns the ordered column names.
func (s Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// IndexOf returns the position of the named column, or -1.
func (s Schema) IndexOf(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// LowerCase returns a copy with every column name lower-cased. Table field
// identity is case-sensitive while engine column names may not be.
func (s Schema) LowerCase() (Schema, error) {
	fields := make([]Field, len(s.fields))
	for i, f := range s.fields {
		fields[i] = Field{Name: strings.ToLower(f.Name), Type: f.Type}
	}
	return NewSchema(fields...)
}

func (s Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.Name + ": " + f.Type.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Equal reports whether both schemas have the same columns in the same order.
func (s Schema) Equal(o Schema) bool {
	if len(s.fields) != len(o.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}
