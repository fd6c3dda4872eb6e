package iceberg

import (
	"fmt"
	"strconv"
	"strings"
)

// MetricsModeKind selects which column statistics are collected.
type MetricsModeKind int

const (
	MetricsNone MetricsModeKind = iota
	MetricsCounts
	MetricsTruncate
	MetricsFull
)

// MetricsMode is a collection mode; Length applies to MetricsTruncate.
type MetricsMode struct {
	Kind   MetricsModeKind
	Length int
}

// DefaultMetricsMode is truncate(16).
var DefaultMetricsMode = MetricsMode{Kind: MetricsTruncate, Length: 16}

const defaultMaxInferredColumns = 100

func (m MetricsMode) String() string {
	switch m.Kind {
	case MetricsNone:
		return "none"
	case MetricsCounts:
		return "counts"
	case MetricsFull:
		return "full"
	default:
		return fmt.Sprintf("truncate(%d)", m.Length)
	}
}

// ParseMetricsMode parses none, counts, full or truncate(N).
func ParseMetricsMode(s string) (MetricsMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "none":
		return MetricsMode{Kind: MetricsNone}, nil
	case "counts":
		return MetricsMode{Kind: MetricsCounts}, nil
	case "full":
		return MetricsMode{Kind: MetricsFull}, nil
	}
	if strings.HasPrefix(s, "truncate(") && strings.HasSuffix(s, ")") {
		n, err := strconv.Atoi(s[len("truncate(") : len(s)-1])
		if err != nil || n <= 0 {
			return MetricsMode{}, fmt.Errorf("invalid truncate length in metrics mode %q", s)
		}
		return MetricsMode{Kind: MetricsTruncate, Length: n}, nil
	}
	return MetricsMode{}, fmt.Errorf("invalid metrics mode %q", s)
}

// MetricsConfig resolves the collection mode per column.
type MetricsConfig struct {
	defaultMode MetricsMode
	columnModes map[string]MetricsMode
}

// ColumnMode returns the mode for a column name (dotted for nested fields).
func (c MetricsConfig) ColumnMode(name string) MetricsMode {
	if m, ok := c.columnModes[name]; ok {
		return m
	}
	return c.defaultMode
}

// MetricsConfigForTable builds the data-file metrics config from the table
// schema and properties. It is evaluated on each call.
func MetricsConfigForTable(t *Table) (MetricsConfig, error) {
	return metricsConfigFrom(t.Schema(), t.Properties())
}

func metricsConfigFrom(schema *Schema, props map[string]string) (MetricsConfig, error) {
	cfg := MetricsConfig{defaultMode: DefaultMetricsMode, columnModes: map[string]MetricsMode{}}

	if v, ok := props[PropMetricsDefault]; ok {
		m, err := ParseMetricsMode(v)
		if err != nil {
			return MetricsConfig{}, fmt.Errorf("%s: %w", PropMetricsDefault, err)
		}
		cfg.defaultMode = m
	} else if schema != nil {
		maxInferred := defaultMaxInferredColumns
		if v, ok := props[PropMetricsMaxInferredCols]; ok {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return MetricsConfig{}, fmt.Errorf("%s: invalid value %q", PropMetricsMaxInferredCols, v)
			}
			maxInferred = n
		}
		if len(schema.Fields) > maxInferred {
			// Only the leading columns keep the default; the rest collect nothing.
			cfg.defaultMode = MetricsMode{Kind: MetricsNone}
			for _, f := range schema.Fields[:maxInferred] {
				cfg.columnModes[f.Name] = DefaultMetricsMode
			}
		}
	}

	for k, v := range props {
		col, ok := strings.CutPrefix(k, PropMetricsColumnPrefix)
		if !ok {
			continue
		}
		m, err := ParseMetricsMode(v)
		if err != nil {
			return MetricsConfig{}, fmt.Errorf("%s: %w", k, err)
		}
		cfg.columnModes[col] = m
	}
	return cfg, nil
}

// MetricsConfigForPositionDelete builds the config for position-delete files:
// file_path and pos always collect full metrics.
func MetricsConfigForPositionDelete(t *Table) (MetricsConfig, error) {
	cfg := MetricsConfig{defaultMode: DefaultMetricsMode, columnModes: map[string]MetricsMode{}}
	if v, ok := t.Properties()[PropMetricsDefault]; ok {
		m, err := ParseMetricsMode(v)
		if err != nil {
			return MetricsConfig{}, fmt.Errorf("%s: %w", PropMetricsDefault, err)
		}
		cfg.defaultMode = m
	}
	cfg.columnModes[DeleteFilePathName] = MetricsMode{Kind: MetricsFull}
	cfg.columnModes[DeleteFilePosName] = MetricsMode{Kind: MetricsFull}
	return cfg, nil
}
