package types

import "math"

// CanonicalNumber maps any Go numeric value onto a single representation so
// equal numbers compare and hash equal regardless of their type. Values a
// float64 holds exactly become float64; larger integers keep their integer
// type so neighbouring values stay distinct. ok is false for non-numbers.
func CanonicalNumber(v any) (any, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case int:
		return canonicalInt(int64(n)), true
	case int64:
		return canonicalInt(n), true
	case uint:
		return canonicalUint(uint64(n)), true
	case uint64:
		return canonicalUint(n), true
	default:
		return nil, false
	}
}

func canonicalInt(n int64) any {
	f := float64(n)
	if f < math.MaxInt64 && int64(f) == n {
		return f
	}
	return n
}

func canonicalUint(n uint64) any {
	if n <= math.MaxInt64 {
		return canonicalInt(int64(n))
	}
	f := float64(n)
	if f < math.MaxUint64 && uint64(f) == n {
		return f
	}
	return n
}
