package iceberg

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
)

// SingleValueBytes serializes a value as used for column lower and upper
// bounds. Values are in their canonical form: bool, int32 (int, date),
// int64 (long, time, timestamp), float32, float64, string, []byte
// (binary, fixed, uuid) and *big.Int (decimal unscaled value).
func SingleValueBytes(t Type, v any) ([]byte, error) {
	switch t.ID() {
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			break
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case TypeInteger, TypeDate:
		n, ok := v.(int32)
		if !ok {
			break
		}
		return binary.LittleEndian.AppendUint32(nil, uint32(n)), nil
	case TypeLong, TypeTime, TypeTimestamp:
		n, ok := v.(int64)
		if !ok {
			break
		}
		return binary.LittleEndian.AppendUint64(nil, uint64(n)), nil
	case TypeFloat:
		f, ok := v.(float32)
		if !ok {
			break
		}
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(f)), nil
	case TypeDouble:
		f, ok := v.(float64)
		if !ok {
			break
		}
		return binary.LittleEndian.AppendUint64(nil, math.Float64bits(f)), nil
	case TypeString:
		s, ok := v.(string)
		if !ok {
			break
		}
		return []byte(s), nil
	case TypeBinary, TypeFixed, TypeUUID:
		b, ok := v.([]byte)
		if !ok {
			break
		}
		return bytes.Clone(b), nil
	case TypeDecimal:
		n, ok := v.(*big.Int)
		if !ok {
			break
		}
		return DecimalBytes(n), nil
	default:
		return nil, fmt.Errorf("no single-value encoding for %s", t)
	}
	return nil, fmt.Errorf("value %T does not match type %s", v, t)
}

// DecimalBytes returns the minimal big-endian two's-complement encoding.
func DecimalBytes(n *big.Int) []byte {
	if n.Sign() == 0 {
		return []byte{0}
	}
	if n.Sign() > 0 {
		b := n.Bytes()
		if b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		return b
	}
	// Negative: two's complement over the smallest width that keeps the sign bit.
	size := (n.BitLen() + 8) / 8
	mod := new(big.Int).Lsh(big.NewInt(1), uint(size*8))
	b := new(big.Int).Add(mod, n).Bytes()
	for len(b) < size {
		b = append([]byte{0xff}, b...)
	}
	if size > 1 && b[0] == 0xff && b[1]&0x80 != 0 {
		b = b[1:]
	}
	return b
}

// FixedDecimalBytes sign-extends the two's-complement encoding to size bytes.
func FixedDecimalBytes(n *big.Int, size int) ([]byte, error) {
	b := DecimalBytes(n)
	if len(b) > size {
		return nil, fmt.Errorf("decimal %s does not fit in %d bytes", n, size)
	}
	pad := byte(0)
	if n.Sign() < 0 {
		pad = 0xff
	}
	out := make([]byte, size)
	for i := 0; i < size-len(b); i++ {
		out[i] = pad
	}
	copy(out[size-len(b):], b)
	return out, nil
}

// DecimalRequiredBytes is the fixed width needed for a decimal precision.
func DecimalRequiredBytes(precision int) int {
	for n := 1; n < 24; n++ {
		if math.Floor(math.Log10(math.Pow(2, float64(8*n-1))-1)) >= float64(precision) {
			return n
		}
	}
	return 16
}

// CompareValues orders two canonical values of the same type. Strings and
// bytes compare lexicographically by byte.
func CompareValues(a, b any) int {
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case int32:
		return cmp.Compare(x, b.(int32))
	case int64:
		return cmp.Compare(x, b.(int64))
	case float32:
		return cmp.Compare(x, b.(float32))
	case float64:
		return cmp.Compare(x, b.(float64))
	case string:
		return cmp.Compare(x, b.(string))
	case []byte:
		return bytes.Compare(x, b.([]byte))
	case *big.Int:
		return x.Cmp(b.(*big.Int))
	}
	return 0
}
