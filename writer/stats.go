package writer

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/zegnqin/seatunnel/iceberg"
)

// columnStats accumulates statistics for one leaf column.
type columnStats struct {
	id    int
	name  string
	typ   iceberg.Type
	mode  iceberg.MetricsMode
	path  []int
	size  int64
	count int64
	nulls int64
	nans  int64
	lower any
	upper any
}

// statsCollector tracks per-column statistics of the records written to one
// file. Column sizes are estimates of the uncompressed value size.
type statsCollector struct {
	cols []*columnStats
}

func newStatsCollector(schema *iceberg.Schema, mc iceberg.MetricsConfig) *statsCollector {
	c := &statsCollector{}
	c.addFields(schema.Fields, "", nil, mc)
	return c
}

func (c *statsCollector) addFields(fields []iceberg.NestedField, prefix string, path []int, mc iceberg.MetricsConfig) {
	for i, f := range fields {
		p := append(append([]int(nil), path...), i)
		name := prefix + f.Name
		if st, ok := f.Type.(*iceberg.StructType); ok {
			c.addFields(st.Fields, name+".", p, mc)
			continue
		}
		if !f.Type.ID().IsPrimitive() {
			continue
		}
		c.cols = append(c.cols, &columnStats{id: f.ID, name: name, typ: f.Type, mode: mc.ColumnMode(name), path: p})
	}
}

func valueAt(rec []any, path []int) any {
	var v any = rec
	for _, i := range path {
		r, ok := v.([]any)
		if !ok || r == nil {
			return nil
		}
		v = r[i]
	}
	return v
}

func (c *statsCollector) update(rec []any) {
	for _, col := range c.cols {
		v := valueAt(rec, col.path)
		col.count++
		if v == nil {
			col.nulls++
			continue
		}
		col.size += estimatedSize(v)
		if isNaN(v) {
			col.nans++
			continue
		}
		if col.lower == nil || iceberg.CompareValues(v, col.lower) < 0 {
			col.lower = v
		}
		if col.upper == nil || iceberg.CompareValues(v, col.upper) > 0 {
			col.upper = v
		}
	}
}

// estimatedBytes is the running sum of value sizes over all columns.
func (c *statsCollector) estimatedBytes() int64 {
	var n int64
	for _, col := range c.cols {
		n += col.size
	}
	return n
}

func isNaN(v any) bool {
	switch x := v.(type) {
	case float32:
		return math.IsNaN(float64(x))
	case float64:
		return math.IsNaN(x)
	}
	return false
}

func estimatedSize(v any) int64 {
	switch x := v.(type) {
	case bool:
		return 1
	case int32, float32:
		return 4
	case int64, float64:
		return 8
	case string:
		return int64(len(x))
	case []byte:
		return int64(len(x))
	case interface{ BitLen() int }:
		return int64(x.BitLen()/8 + 1)
	}
	return 0
}

// fileMetrics is the statistics part of a DataFile.
type fileMetrics struct {
	columnSizes     map[int]int64
	valueCounts     map[int]int64
	nullValueCounts map[int]int64
	nanValueCounts  map[int]int64
	lowerBounds     map[int][]byte
	upperBounds     map[int][]byte
}

func (c *statsCollector) metrics() (fileMetrics, error) {
	m := fileMetrics{
		columnSizes:     make(map[int]int64),
		valueCounts:     make(map[int]int64),
		nullValueCounts: make(map[int]int64),
		nanValueCounts:  make(map[int]int64),
		lowerBounds:     make(map[int][]byte),
		upperBounds:     make(map[int][]byte),
	}
	for _, col := range c.cols {
		if col.mode.Kind == iceberg.MetricsNone {
			continue
		}
		m.columnSizes[col.id] = col.size
		m.valueCounts[col.id] = col.count
		m.nullValueCounts[col.id] = col.nulls
		if col.typ.ID() == iceberg.TypeFloat || col.typ.ID() == iceberg.TypeDouble {
			m.nanValueCounts[col.id] = col.nans
		}
		if col.mode.Kind == iceberg.MetricsCounts || col.lower == nil {
			continue
		}

		lower, upper := col.lower, col.upper
		if col.mode.Kind == iceberg.MetricsTruncate {
			lower = truncateLower(lower, col.mode.Length)
			upper = truncateUpper(upper, col.mode.Length)
		}
		lb, err := iceberg.SingleValueBytes(col.typ, lower)
		if err != nil {
			return fileMetrics{}, fmt.Errorf("lower bound of %s: %w", col.name, err)
		}
		m.lowerBounds[col.id] = lb
		if upper == nil {
			continue
		}
		ub, err := iceberg.SingleValueBytes(col.typ, upper)
		if err != nil {
			return fileMetrics{}, fmt.Errorf("upper bound of %s: %w", col.name, err)
		}
		m.upperBounds[col.id] = ub
	}
	return m, nil
}

func truncateLower(v any, n int) any {
	switch x := v.(type) {
	case string:
		if utf8.RuneCountInString(x) <= n {
			return x
		}
		return string([]rune(x)[:n])
	case []byte:
		if len(x) <= n {
			return x
		}
		return x[:n]
	}
	return v
}

// truncateUpper returns the smallest truncated value that is still an upper
// bound, or nil when none exists.
func truncateUpper(v any, n int) any {
	switch x := v.(type) {
	case string:
		runes := []rune(x)
		if len(runes) <= n {
			return x
		}
		runes = runes[:n]
		for i := len(runes) - 1; i >= 0; i-- {
			next := runes[i] + 1
			if next >= 0xD800 && next <= 0xDFFF {
				next = 0xE000
			}
			if next <= utf8.MaxRune {
				runes[i] = next
				return string(runes[:i+1])
			}
		}
		return nil
	case []byte:
		if len(x) <= n {
			return x
		}
		b := append([]byte(nil), x[:n]...)
		for i := len(b) - 1; i >= 0; i-- {
			if b[i] < 0xff {
				b[i]++
				return b[:i+1]
			}
		}
		return nil
	}
	return v
}
