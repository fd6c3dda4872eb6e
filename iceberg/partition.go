package iceberg

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/twmb/murmur3"
)

// PartitionSpec defines how data is partitioned.
type PartitionSpec struct {
	SpecID int              `json:"spec-id"`
	Fields []PartitionField `json:"fields"`
}

// PartitionField maps a source column to a partition transform.
type PartitionField struct {
	SourceID  int    `json:"source-id"`
	FieldID   int    `json:"field-id"`
	Name      string `json:"name"`
	Transform string `json:"transform"` // "identity", "void", "year", "month", "day", "hour", "truncate[W]", "bucket[N]"
}

// UnpartitionedSpec is spec 0 with no fields.
func UnpartitionedSpec() *PartitionSpec {
	return &PartitionSpec{SpecID: 0, Fields: []PartitionField{}}
}

// IsUnpartitioned reports whether the spec has no non-void fields.
func (s *PartitionSpec) IsUnpartitioned() bool {
	if s == nil {
		return true
	}
	for _, f := range s.Fields {
		if f.Transform != "void" {
			return false
		}
	}
	return true
}

// LastFieldID returns the highest partition field id. Iceberg reserves 1000+
// for partition fields.
func (s *PartitionSpec) LastFieldID() int {
	max := 999
	for _, f := range s.Fields {
		if f.FieldID > max {
			max = f.FieldID
		}
	}
	return max
}

// Transform maps a source value to its partition value.
type Transform interface {
	Apply(v any) (any, error)
	ResultType(source Type) Type
	HumanString(v any) string
	String() string
}

// ParseTransform parses a transform name.
func ParseTransform(s string) (Transform, error) {
	switch s {
	case "identity":
		return identityTransform{}, nil
	case "void":
		return voidTransform{}, nil
	case "year", "month", "day", "hour":
		return timeTransform{unit: s}, nil
	}
	var n int
	if strings.HasPrefix(s, "truncate[") {
		if _, err := fmt.Sscanf(s, "truncate[%d]", &n); err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid transform %q", s)
		}
		return truncateTransform{width: n}, nil
	}
	if strings.HasPrefix(s, "bucket[") {
		if _, err := fmt.Sscanf(s, "bucket[%d]", &n); err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid transform %q", s)
		}
		return bucketTransform{numBuckets: n}, nil
	}
	return nil, fmt.Errorf("unknown transform %q", s)
}

type identityTransform struct{}

func (identityTransform) Apply(v any) (any, error) { return v, nil }
func (identityTransform) ResultType(source Type) Type { return source }
func (identityTransform) String() string { return "identity" }

func (identityTransform) HumanString(v any) string { return humanValue(v) }

type voidTransform struct{}

func (voidTransform) Apply(any) (any, error) { return nil, nil }
func (voidTransform) ResultType(source Type) Type { return source }
func (voidTransform) String() string { return "void" }
func (voidTransform) HumanString(any) string { return "null" }

const (
	microsPerHour = int64(time.Hour / time.Microsecond)
	microsPerDay  = 24 * microsPerHour
)

type timeTransform struct {
	unit string
}

func (t timeTransform) String() string { return t.unit }
func (timeTransform) ResultType(Type) Type { return Int }

// Apply accepts days since epoch (int32, date) or micros since epoch
// (int64, timestamp).
func (t timeTransform) Apply(v any) (any, error) {
	var ts time.Time
	var micros int64
	switch x := v.(type) {
	case nil:
		return nil, nil
	case int32:
		if t.unit == "hour" {
			return nil, fmt.Errorf("hour transform does not apply to dates")
		}
		micros = int64(x) * microsPerDay
	case int64:
		micros = x
	default:
		return nil, fmt.Errorf("%s transform does not apply to %T", t.unit, v)
	}
	ts = time.UnixMicro(micros).UTC()
	switch t.unit {
	case "year":
		return int32(ts.Year() - 1970), nil
	case "month":
		return int32((ts.Year()-1970)*12 + int(ts.Month()) - 1), nil
	case "day":
		return int32(floorDiv(micros, microsPerDay)), nil
	default:
		return int32(floorDiv(micros, microsPerHour)), nil
	}
}

func (t timeTransform) HumanString(v any) string {
	n, ok := v.(int32)
	if !ok {
		return "null"
	}
	switch t.unit {
	case "year":
		return strconv.Itoa(1970 + int(n))
	case "month":
		y, m := 1970+floorDivInt(int(n), 12), int(n)-floorDivInt(int(n), 12)*12+1
		return fmt.Sprintf("%04d-%02d", y, m)
	case "day":
		return time.UnixMicro(int64(n) * microsPerDay).UTC().Format("2006-01-02")
	default:
		return time.UnixMicro(int64(n) * microsPerHour).UTC().Format("2006-01-02-15")
	}
}

type truncateTransform struct {
	width int
}

func (t truncateTransform) String() string { return fmt.Sprintf("truncate[%d]", t.width) }
func (truncateTransform) ResultType(source Type) Type { return source }
func (truncateTransform) HumanString(v any) string { return humanValue(v) }

func (t truncateTransform) Apply(v any) (any, error) {
	w := t.width
	switch x := v.(type) {
	case nil:
		return nil, nil
	case int32:
		return x - int32(floorMod(int64(x), int64(w))), nil
	case int64:
		return x - floorMod(x, int64(w)), nil
	case string:
		if utf8.RuneCountInString(x) <= w {
			return x, nil
		}
		i, n := 0, 0
		for i = range x {
			if n == w {
				break
			}
			n++
		}
		return x[:i], nil
	case []byte:
		if len(x) <= w {
			return x, nil
		}
		return x[:w], nil
	case *big.Int:
		m := new(big.Int).Mod(x, big.NewInt(int64(w)))
		return new(big.Int).Sub(x, m), nil
	}
	return nil, fmt.Errorf("truncate transform does not apply to %T", v)
}

type bucketTransform struct {
	numBuckets int
}

func (t bucketTransform) String() string { return fmt.Sprintf("bucket[%d]", t.numBuckets) }
func (bucketTransform) ResultType(Type) Type { return Int }
func (bucketTransform) HumanString(v any) string { return humanValue(v) }

func (t bucketTransform) Apply(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	h, err := BucketHash(v)
	if err != nil {
		return nil, err
	}
	return (h & math.MaxInt32) % int32(t.numBuckets), nil
}

// BucketHash is the 32-bit murmur3 hash the bucket transform is built on.
// Ints, longs, dates, times and timestamps hash as 8-byte little-endian
// longs, strings as UTF-8, decimals as their minimal two's-complement
// unscaled bytes.
func BucketHash(v any) (int32, error) {
	var b []byte
	switch x := v.(type) {
	case int32:
		b = binary.LittleEndian.AppendUint64(nil, uint64(int64(x)))
	case int64:
		b = binary.LittleEndian.AppendUint64(nil, uint64(x))
	case string:
		b = []byte(x)
	case []byte:
		b = x
	case *big.Int:
		b = DecimalBytes(x)
	default:
		return 0, fmt.Errorf("bucket transform does not apply to %T", v)
	}
	return int32(murmur3.Sum32(b)), nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorDivInt(a, b int) int { return int(floorDiv(int64(a), int64(b))) }

func floorMod(a, b int64) int64 { return a - floorDiv(a, b)*b }

func humanValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case []byte:
		return hex.EncodeToString(x)
	case *big.Int:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// PartitionKey is the ordered tuple of partition values for a spec.
type PartitionKey struct {
	spec   *PartitionSpec
	Values []any
}

// Spec returns the spec the key was computed for.
func (k PartitionKey) Spec() *PartitionSpec { return k.spec }

// NewPartitionKey pairs values with spec fields. Values must align with
// spec.Fields.
func NewPartitionKey(spec *PartitionSpec, values []any) (PartitionKey, error) {
	if spec == nil {
		spec = UnpartitionedSpec()
	}
	if len(values) != len(spec.Fields) {
		return PartitionKey{}, fmt.Errorf("partition key has %d values, spec %d has %d fields", len(values), spec.SpecID, len(spec.Fields))
	}
	return PartitionKey{spec: spec, Values: values}, nil
}

// Partition computes the key from source values looked up by field id.
func (s *PartitionSpec) Partition(source func(sourceID int) any) (PartitionKey, error) {
	values := make([]any, len(s.Fields))
	for i, f := range s.Fields {
		tr, err := ParseTransform(f.Transform)
		if err != nil {
			return PartitionKey{}, fmt.Errorf("partition field %s: %w", f.Name, err)
		}
		v, err := tr.Apply(source(f.SourceID))
		if err != nil {
			return PartitionKey{}, fmt.Errorf("partition field %s: %w", f.Name, err)
		}
		values[i] = v
	}
	return PartitionKey{spec: s, Values: values}, nil
}

// Path renders the Hive-style directory, e.g. "day=2024-03-01/region=eu".
func (k PartitionKey) Path() string {
	if k.spec == nil || len(k.spec.Fields) == 0 {
		return ""
	}
	parts := make([]string, len(k.spec.Fields))
	for i, f := range k.spec.Fields {
		tr, err := ParseTransform(f.Transform)
		human := humanValue(k.Values[i])
		if err == nil {
			human = tr.HumanString(k.Values[i])
		}
		parts[i] = url.QueryEscape(f.Name) + "=" + url.QueryEscape(human)
	}
	return strings.Join(parts, "/")
}

// Data returns partition values keyed by partition field name.
func (k PartitionKey) Data() map[string]any {
	out := make(map[string]any)
	if k.spec == nil {
		return out
	}
	for i, f := range k.spec.Fields {
		out[f.Name] = k.Values[i]
	}
	return out
}

// String is a stable map key for grouping writers by partition.
func (k PartitionKey) String() string {
	if k.spec == nil {
		return ""
	}
	return strconv.Itoa(k.spec.SpecID) + ":" + k.Path()
}
