package row

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimal is an exact fixed-point value: Unscaled * 10^-Scale.
type Decimal struct {
	Unscaled *big.Int
	Scale    int
}

// ParseDecimal parses a plain decimal literal such as "-12.340".
func ParseDecimal(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	scale := 0
	digits := s
	if i := strings.IndexByte(s, '.'); i >= 0 {
		scale = len(s) - i - 1
		digits = s[:i] + s[i+1:]
	}
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Decimal{}, fmt.Errorf("invalid decimal %q", s)
	}
	return Decimal{Unscaled: v, Scale: scale}, nil
}

// Rescale returns the unscaled value at the target scale. Reducing scale
// fails when it would drop non-zero digits.
func (d Decimal) Rescale(scale int) (*big.Int, error) {
	v := new(big.Int).Set(d.Unscaled)
	switch {
	case scale == d.Scale:
		return v, nil
	case scale > d.Scale:
		return v.Mul(v, pow10(scale-d.Scale)), nil
	default:
		q, r := new(big.Int).QuoRem(v, pow10(d.Scale-scale), new(big.Int))
		if r.Sign() != 0 {
			return nil, fmt.Errorf("decimal %s cannot be represented with scale %d", d, scale)
		}
		return q, nil
	}
}

func (d Decimal) String() string {
	if d.Unscaled == nil {
		return "0"
	}
	s := new(big.Int).Abs(d.Unscaled).String()
	if d.Scale > 0 {
		if len(s) <= d.Scale {
			s = strings.Repeat("0", d.Scale-len(s)+1) + s
		}
		s = s[:len(s)-d.Scale] + "." + s[len(s)-d.Scale:]
	}
	if d.Unscaled.Sign() < 0 {
		s = "-" + s
	}
	return s
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
