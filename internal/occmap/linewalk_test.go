package occmap

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func collectKeys(t *testing.T, start, end r3.Vec, includeEnd bool, res float64, dims [3]int32) []Key {
	t.Helper()
	var keys KeyList
	n := calculateSegmentKeys(&keys, start, end, includeEnd, res, dims)
	if n != keys.Len() {
		t.Fatalf("reported %d keys, collected %d", n, keys.Len())
	}
	return keys.Keys()
}

func TestWalkSegmentAxisAligned(t *testing.T) {
	dims := [3]int32{32, 32, 32}
	res := 0.25
	start := r3.Vec{X: 0.125, Y: 0.125, Z: 0.125}
	end := r3.Vec{X: 1.125, Y: 0.125, Z: 0.125}

	keys := collectKeys(t, start, end, false, res, dims)
	if len(keys) != 4 {
		t.Fatalf("got %d keys, want 4", len(keys))
	}
	for i, k := range keys {
		want := Key{Local: [3]uint8{uint8(i), 0, 0}}
		if k != want {
			t.Errorf("key %d = %v, want %v", i, k, want)
		}
	}

	withEnd := collectKeys(t, start, end, true, res, dims)
	if len(withEnd) != 5 {
		t.Fatalf("got %d keys with end, want 5", len(withEnd))
	}
	if last := withEnd[4]; last != (Key{Local: [3]uint8{4, 0, 0}}) {
		t.Errorf("end key = %v", last)
	}
}

func TestWalkSegmentReverseDirection(t *testing.T) {
	dims := [3]int32{32, 32, 32}
	res := 0.25
	start := r3.Vec{X: 1.125, Y: 0.125, Z: 0.125}
	end := r3.Vec{X: 0.125, Y: 0.125, Z: 0.125}

	keys := collectKeys(t, start, end, true, res, dims)
	if len(keys) != 5 {
		t.Fatalf("got %d keys, want 5", len(keys))
	}
	for i, k := range keys {
		want := Key{Local: [3]uint8{uint8(4 - i), 0, 0}}
		if k != want {
			t.Errorf("key %d = %v, want %v", i, k, want)
		}
	}
}

func TestWalkSegmentDiagonalTieBreak(t *testing.T) {
	dims := [3]int32{32, 32, 32}
	res := 0.25
	// The segment leaves each voxel exactly through a corner; ties must
	// resolve x before y.
	start := r3.Vec{}
	end := r3.Vec{X: 0.5, Y: 0.5}

	keys := collectKeys(t, start, end, true, res, dims)
	want := []Key{
		{Local: [3]uint8{0, 0, 0}},
		{Local: [3]uint8{1, 0, 0}},
		{Local: [3]uint8{1, 1, 0}},
		{Local: [3]uint8{2, 1, 0}},
		{Local: [3]uint8{2, 2, 0}},
	}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys %v, want %d", len(keys), keys, len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d = %v, want %v", i, keys[i], want[i])
		}
	}
}

func TestWalkSegmentDegenerate(t *testing.T) {
	dims := [3]int32{32, 32, 32}
	res := 0.25
	p := r3.Vec{X: 0.1, Y: 0.1, Z: 0.1}

	if keys := collectKeys(t, p, p, false, res, dims); len(keys) != 0 {
		t.Errorf("degenerate segment without end produced %v", keys)
	}
	keys := collectKeys(t, p, p, true, res, dims)
	if len(keys) != 1 || keys[0] != voxelKeyLocal(p, res, dims) {
		t.Errorf("degenerate segment with end produced %v", keys)
	}
}

func TestWalkSegmentCrossesRegions(t *testing.T) {
	dims := [3]int32{8, 8, 8}
	res := 0.25
	start := r3.Vec{X: 1.9, Y: 0.1, Z: 0.1}
	end := r3.Vec{X: 2.1, Y: 0.1, Z: 0.1}

	keys := collectKeys(t, start, end, true, res, dims)
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2: %v", len(keys), keys)
	}
	if keys[0].Region != (RegionKey{0, 0, 0}) || keys[1].Region != (RegionKey{1, 0, 0}) {
		t.Errorf("regions = %v, %v", keys[0].Region, keys[1].Region)
	}
	if keys[0].Local != [3]uint8{7, 0, 0} || keys[1].Local != [3]uint8{0, 0, 0} {
		t.Errorf("locals = %v, %v", keys[0].Local, keys[1].Local)
	}
}

func TestWalkSegmentAdjacency(t *testing.T) {
	dims := [3]int32{16, 16, 16}
	res := 0.2
	start := r3.Vec{X: -0.73, Y: 0.41, Z: -1.2}
	end := r3.Vec{X: 2.17, Y: -1.9, Z: 0.66}

	keys := collectKeys(t, start, end, true, res, dims)
	if len(keys) < 2 {
		t.Fatalf("too few keys: %d", len(keys))
	}
	if keys[0] != voxelKeyLocal(start, res, dims) {
		t.Errorf("first key %v, want %v", keys[0], voxelKeyLocal(start, res, dims))
	}
	if keys[len(keys)-1] != voxelKeyLocal(end, res, dims) {
		t.Errorf("last key %v, want %v", keys[len(keys)-1], voxelKeyLocal(end, res, dims))
	}
	for i := 1; i < len(keys); i++ {
		diff := 0
		for axis := 0; axis < 3; axis++ {
			d := globalVoxelCoord(keys[i], axis, dims) - globalVoxelCoord(keys[i-1], axis, dims)
			if d < 0 {
				d = -d
			}
			diff += int(d)
		}
		if diff != 1 {
			t.Errorf("keys %d and %d are not face neighbours: %v -> %v", i-1, i, keys[i-1], keys[i])
		}
	}
}
