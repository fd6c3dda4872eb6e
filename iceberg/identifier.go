package iceberg

import (
	"fmt"
	"strings"
)

// Identifier names a table inside a catalog.
type Identifier struct {
	Namespace []string `json:"namespace"`
	Name      string   `json:"name"`
}

// NewIdentifier splits a dot-separated namespace.
func NewIdentifier(namespace, name string) Identifier {
	var ns []string
	if namespace != "" {
		ns = strings.Split(namespace, ".")
	}
	return Identifier{Namespace: ns, Name: name}
}

// ParseIdentifier parses "ns1.ns2.table".
func ParseIdentifier(s string) (Identifier, error) {
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if p == "" {
			return Identifier{}, fmt.Errorf("invalid table identifier %q", s)
		}
	}
	return Identifier{Namespace: parts[:len(parts)-1], Name: parts[len(parts)-1]}, nil
}

// Parts returns namespace levels followed by the table name.
func (id Identifier) Parts() []string {
	out := make([]string, 0, len(id.Namespace)+1)
	out = append(out, id.Namespace...)
	return append(out, id.Name)
}

func (id Identifier) String() string {
	return strings.Join(id.Parts(), ".")
}
