package align

import "golang.org/x/exp/constraints"

// RoundUp rounds v up to the next multiple of boundary. boundary must be
// greater than zero.
func RoundUp[T constraints.Integer](v, boundary T) T {
	return (v + boundary - 1) / boundary * boundary
}

// RoundDown rounds v down to the previous multiple of boundary.
func RoundDown[T constraints.Integer](v, boundary T) T {
	return v / boundary * boundary
}

// CDiv divides v by d, rounding up.
func CDiv[T constraints.Integer](v, d T) T {
	return (v + d - 1) / d
}
