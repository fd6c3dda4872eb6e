package sink

import (
	"strings"

	"github.com/zegnqin/seatunnel/row"
)

// PrimaryKey names the key columns of an engine table.
type PrimaryKey struct {
	Name    string
	Columns []string
}

// ConstraintColumn is one column of a constraint key.
type ConstraintColumn struct {
	Name     string
	SortType string // "ASC" or "DESC"
}

// ConstraintKey is a unique or index key of an engine table.
type ConstraintKey struct {
	Type    string // "UNIQUE_KEY", "INDEX_KEY"
	Name    string
	Columns []ConstraintColumn
}

// CatalogTable describes the engine-side table the sink consumes.
type CatalogTable struct {
	Namespace   string
	Name        string
	Schema      row.Schema
	PrimaryKey  *PrimaryKey
	Constraints []ConstraintKey
	Options     map[string]string
	Comment     string
}

// LowerCase returns a copy with column names lower-cased in the schema, the
// primary key and every constraint key.
func (t CatalogTable) LowerCase() (CatalogTable, error) {
	schema, err := t.Schema.LowerCase()
	if err != nil {
		return CatalogTable{}, err
	}
	out := t
	out.Schema = schema
	if t.PrimaryKey != nil {
		out.PrimaryKey = &PrimaryKey{Name: t.PrimaryKey.Name, Columns: lowerAll(t.PrimaryKey.Columns)}
	}
	if t.Constraints != nil {
		out.Constraints = make([]ConstraintKey, len(t.Constraints))
		for i, ck := range t.Constraints {
			nk := ConstraintKey{Type: ck.Type, Name: ck.Name}
			if ck.Columns != nil {
				nk.Columns = make([]ConstraintColumn, len(ck.Columns))
				for j, c := range ck.Columns {
					nk.Columns[j] = ConstraintColumn{Name: strings.ToLower(c.Name), SortType: c.SortType}
				}
			}
			out.Constraints[i] = nk
		}
	}
	return out, nil
}

func lowerAll(names []string) []string {
	if names == nil {
		return nil
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToLower(n)
	}
	return out
}
