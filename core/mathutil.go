package core

import "golang.org/x/exp/constraints"

// clamp limits v to [lo, hi]
func clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
