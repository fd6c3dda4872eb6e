package row

import "fmt"

// Kind is the change type carried by a row.
type Kind int

const (
	Insert Kind = iota
	UpdateBefore
	UpdateAfter
	Delete
)

// String returns the short changelog notation.
func (k Kind) String() string {
	switch k {
	case Insert:
		return "+I"
	case UpdateBefore:
		return "-U"
	case UpdateAfter:
		return "+U"
	case Delete:
		return "-D"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps changelog notation or operation names to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "+I", "INSERT", "insert", "":
		return Insert, nil
	case "-U", "UPDATE_BEFORE", "update_before":
		return UpdateBefore, nil
	case "+U", "UPDATE_AFTER", "update_after", "UPDATE", "update":
		return UpdateAfter, nil
	case "-D", "DELETE", "delete":
		return Delete, nil
	default:
		return 0, fmt.Errorf("unknown row kind %q", s)
	}
}

// IsAddition reports whether the row adds data (insert or update-after).
func (k Kind) IsAddition() bool { return k == Insert || k == UpdateAfter }

// Row is one record in engine column order. Field values use the Go types
// that Coerce produces.
type Row struct {
	Kind   Kind
	Fields []any
}

// New returns an insert row.
func New(fields ...any) Row {
	return Row{Kind: Insert, Fields: fields}
}

// Arity returns the number of fields.
func (r Row) Arity() int { return len(r.Fields) }

// Field returns the i-th value; nil means SQL NULL.
func (r Row) Field(i int) any { return r.Fields[i] }

// Project returns a row holding the fields at the given positions.
func (r Row) Project(positions []int) Row {
	out := Row{Kind: r.Kind, Fields: make([]any, len(positions))}
	for i, p := range positions {
		out.Fields[i] = r.Fields[p]
	}
	return out
}

func (r Row) String() string {
	return fmt.Sprintf("%s%v", r.Kind, r.Fields)
}
