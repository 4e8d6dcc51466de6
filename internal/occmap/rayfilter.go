package occmap

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// RayFilterFlag carries per-ray annotations set by ray filters and
// consumed by the mapper.
type RayFilterFlag uint32

const (
	// RffClippedStart marks a ray whose origin was moved by a filter.
	RffClippedStart RayFilterFlag = 1 << iota
	// RffClippedEnd marks a ray whose sample point was moved by a
	// filter. A clipped sample no longer lands on a surface, so the
	// mapper integrates it as free space rather than a hit.
	RffClippedEnd
)

// RayFilterFunc inspects and optionally rewrites one ray before
// integration. Returning false rejects the ray outright.
type RayFilterFunc func(start, end *r3.Vec, flags *RayFilterFlag) bool

func vecFinite(v r3.Vec) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// GoodRayFilter rejects rays with non-finite endpoints and, when maxRange
// is positive, rays longer than maxRange.
func GoodRayFilter(maxRange float64) RayFilterFunc {
	return func(start, end *r3.Vec, _ *RayFilterFlag) bool {
		if !vecFinite(*start) || !vecFinite(*end) {
			return false
		}
		if maxRange > 0 && r3.Norm(r3.Sub(*end, *start)) > maxRange {
			return false
		}
		return true
	}
}

// ClipRangeFilter shortens rays longer than maxRange to maxRange, keeping
// the direction and setting RffClippedEnd so the clipped endpoint is
// treated as free space.
func ClipRangeFilter(maxRange float64) RayFilterFunc {
	return func(start, end *r3.Vec, flags *RayFilterFlag) bool {
		seg := r3.Sub(*end, *start)
		length := r3.Norm(seg)
		if length <= maxRange || length == 0 {
			return true
		}
		*end = r3.Add(*start, r3.Scale(maxRange/length, seg))
		*flags |= RffClippedEnd
		return true
	}
}
