package occmap

import "math"

// unobservedValue marks a voxel no ray has ever touched. +Inf compares
// greater than every finite occupancy value, so occupied/free tests must
// check for it explicitly.
var unobservedValue = float32(math.Inf(1))

// UnobservedValue returns the sentinel stored in voxels that have never
// been observed.
func UnobservedValue() float32 { return unobservedValue }

// IsUnobserved reports whether value is the unobserved sentinel.
func IsUnobserved(value float32) bool {
	return math.IsInf(float64(value), 1)
}

// ProbabilityToValue converts an occupancy probability in (0, 1) to its
// log-odds value.
func ProbabilityToValue(p float64) float32 {
	return float32(math.Log(p / (1.0 - p)))
}

// ValueToProbability converts a log-odds occupancy value back to a
// probability.
func ValueToProbability(value float32) float64 {
	return 1.0 - 1.0/(1.0+math.Exp(float64(value)))
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// occupancyAdjustMiss applies one free-space observation to current.
// Saturated voxels are latched; the unobserved sentinel transitions
// straight to the miss value. clearOnly restricts misses to voxels already
// at or above the occupancy threshold.
func occupancyAdjustMiss(current, missValue, voxelMin, voxelMax, satMin, satMax, threshold float32, clearOnly bool) float32 {
	if IsUnobserved(current) {
		if clearOnly {
			return current
		}
		return clamp32(missValue, voxelMin, voxelMax)
	}
	if clearOnly && current < threshold {
		return current
	}
	if current <= satMin || current >= satMax {
		return current
	}
	return clamp32(current+missValue, voxelMin, voxelMax)
}

// occupancyAdjustHit applies one occupancy observation to current.
func occupancyAdjustHit(current, hitValue, voxelMin, voxelMax, satMin, satMax float32) float32 {
	if IsUnobserved(current) {
		return clamp32(hitValue, voxelMin, voxelMax)
	}
	if current <= satMin || current >= satMax {
		return current
	}
	return clamp32(current+hitValue, voxelMin, voxelMax)
}
