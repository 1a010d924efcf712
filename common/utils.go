package common

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// GetExponentOfTwo returns the smallest power of two that is greater than or equal to value,
// bounded by max. Values <= 1 return 1.
//
// Parameters:
//   - value: the requested dimension in pixels
//   - max: the upper bound (typically the backend's maximum texture size); ignored when <= 0
//
// Returns:
//   - int: the rounded dimension
func GetExponentOfTwo(value, max int) int {
	pot := 1
	for pot < value {
		pot <<= 1
	}
	if max > 0 && pot > max {
		pot = max
	}
	return pot
}

// IsPowerOfTwo reports whether value is a positive power of two.
func IsPowerOfTwo(value int) bool {
	return value > 0 && value&(value-1) == 0
}
