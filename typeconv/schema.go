package typeconv

import (
	"fmt"

	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/row"
)

// SchemaToLogical derives the engine row schema of a table. Decimal
// parameters are taken from the full physical type.
func SchemaToLogical(s *iceberg.Schema) (row.Schema, error) {
	fields := make([]row.Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		var t row.Type
		if d, ok := f.Type.(iceberg.DecimalType); ok {
			t = row.DecimalOf(d.Precision, d.Scale)
		} else {
			var err error
			if t, err = ToLogical(f.Type.ID()); err != nil {
				return row.Schema{}, fmt.Errorf("column %s: %w", f.Name, err)
			}
		}
		fields = append(fields, row.Field{Name: f.Name, Type: t})
	}
	return row.NewSchema(fields...)
}

// SchemaToPhysical builds a table schema with ids assigned from 1 in column
// order. Identifier columns become required.
func SchemaToPhysical(rs row.Schema, identifierColumns []string) (*iceberg.Schema, error) {
	ident := make(map[string]bool, len(identifierColumns))
	for _, c := range identifierColumns {
		if rs.IndexOf(c) < 0 {
			return nil, &icebergerr.ConfigurationError{Field: "primary_keys", Reason: fmt.Sprintf("column %s not in row type", c)}
		}
		ident[c] = true
	}

	fields := make([]iceberg.NestedField, 0, rs.Len())
	var identIDs []int
	for i, f := range rs.Fields() {
		var props map[string]any
		if f.Type.SQLType == row.TypeDecimal {
			props = map[string]any{PropPrecision: f.Type.Precision, PropScale: f.Type.Scale}
		}
		pt, err := ToPhysical(f.Type, props)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		id := i + 1
		fields = append(fields, iceberg.NestedField{ID: id, Name: f.Name, Type: pt, Required: ident[f.Name]})
		if ident[f.Name] {
			identIDs = append(identIDs, id)
		}
	}
	return iceberg.NewSchema(0, fields, identIDs...), nil
}
