package occmap

import (
	"math"
	"testing"
)

func TestProbabilityValueRoundTrip(t *testing.T) {
	for _, p := range []float64{0.1192, 0.4, 0.5, 0.7, 0.971} {
		v := ProbabilityToValue(p)
		if got := ValueToProbability(v); math.Abs(got-p) > 1e-6 {
			t.Errorf("round trip %v -> %v -> %v", p, v, got)
		}
	}
	if v := ProbabilityToValue(0.5); v != 0 {
		t.Errorf("ProbabilityToValue(0.5) = %v, want 0", v)
	}
}

func TestUnobservedSentinel(t *testing.T) {
	if !IsUnobserved(UnobservedValue()) {
		t.Fatal("sentinel not recognised as unobserved")
	}
	if IsUnobserved(0) || IsUnobserved(float32(math.Inf(-1))) {
		t.Fatal("finite or -Inf value misclassified as unobserved")
	}
}

func TestOccupancyAdjust(t *testing.T) {
	hit := ProbabilityToValue(0.7)
	miss := ProbabilityToValue(0.4)
	min := ProbabilityToValue(0.1)
	max := ProbabilityToValue(0.9)
	threshold := float32(0)
	noSatMin := float32(math.Inf(-1))
	noSatMax := float32(math.Inf(1))

	t.Run("first hit sets hit value", func(t *testing.T) {
		got := occupancyAdjustHit(unobservedValue, hit, min, max, noSatMin, noSatMax)
		if got != hit {
			t.Errorf("got %v, want %v", got, hit)
		}
	})

	t.Run("first miss sets miss value", func(t *testing.T) {
		got := occupancyAdjustMiss(unobservedValue, miss, min, max, noSatMin, noSatMax, threshold, false)
		if got != miss {
			t.Errorf("got %v, want %v", got, miss)
		}
	})

	t.Run("hits accumulate and clamp", func(t *testing.T) {
		v := occupancyAdjustHit(unobservedValue, hit, min, max, noSatMin, noSatMax)
		for i := 0; i < 10; i++ {
			v = occupancyAdjustHit(v, hit, min, max, noSatMin, noSatMax)
		}
		if v != max {
			t.Errorf("value %v did not clamp to %v", v, max)
		}
		// Clamped but unsaturated voxels still accept misses.
		if got := occupancyAdjustMiss(v, miss, min, max, noSatMin, noSatMax, threshold, false); got != v+miss {
			t.Errorf("miss after clamp = %v, want %v", got, v+miss)
		}
	})

	t.Run("saturation latches", func(t *testing.T) {
		v := max
		if got := occupancyAdjustMiss(v, miss, min, max, noSatMin, max, threshold, false); got != v {
			t.Errorf("saturated max accepted miss: %v", got)
		}
		v = min
		if got := occupancyAdjustHit(v, hit, min, max, min, noSatMax); got != v {
			t.Errorf("saturated min accepted hit: %v", got)
		}
	})

	t.Run("clear only skips free and unobserved", func(t *testing.T) {
		if got := occupancyAdjustMiss(unobservedValue, miss, min, max, noSatMin, noSatMax, threshold, true); !IsUnobserved(got) {
			t.Errorf("clear-only disturbed unobserved voxel: %v", got)
		}
		free := miss
		if got := occupancyAdjustMiss(free, miss, min, max, noSatMin, noSatMax, threshold, true); got != free {
			t.Errorf("clear-only disturbed free voxel: %v", got)
		}
		occupied := hit
		if got := occupancyAdjustMiss(occupied, miss, min, max, noSatMin, noSatMax, threshold, true); got != occupied+miss {
			t.Errorf("clear-only miss on occupied = %v, want %v", got, occupied+miss)
		}
	})
}
