package occmap

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// KeyList is a reusable collection of voxel keys. Callers Reset and refill
// it to avoid per-ray allocation.
type KeyList struct {
	keys []Key
}

// Reset empties the list, keeping capacity.
func (l *KeyList) Reset() { l.keys = l.keys[:0] }

// Add appends a key.
func (l *KeyList) Add(k Key) { l.keys = append(l.keys, k) }

// Len returns the number of keys held.
func (l *KeyList) Len() int { return len(l.keys) }

// At returns the key at index i.
func (l *KeyList) At(i int) Key { return l.keys[i] }

// Keys returns the backing slice, valid until the next Reset or Add.
func (l *KeyList) Keys() []Key { return l.keys }

// walkSegmentKeys traverses the voxels intersected by the segment
// start..end (map-local metres) in order, invoking visit for each key.
// Traversal stops early when visit returns false.
//
// The walk is an Amanatides-Woo DDA over the half-open voxel grid. When
// the segment leaves a voxel exactly through an edge or corner, the step
// resolves in axis order x, then y, then z. The end voxel is visited only
// when includeEnd is set; a segment contained in a single voxel therefore
// visits one key when includeEnd is set and none otherwise.
func walkSegmentKeys(visit func(Key) bool, start, end r3.Vec, includeEnd bool, resolution float64, dims [3]int32) int {
	startKey := voxelKeyLocal(start, resolution, dims)
	endKey := voxelKeyLocal(end, resolution, dims)

	if startKey == endKey {
		if includeEnd {
			visit(endKey)
			return 1
		}
		return 0
	}

	dir := [3]float64{end.X - start.X, end.Y - start.Y, end.Z - start.Z}
	origin := [3]float64{start.X, start.Y, start.Z}

	var step [3]int
	var timeMax, timeDelta [3]float64
	limit := 1
	for axis := 0; axis < 3; axis++ {
		diff := globalVoxelCoord(endKey, axis, dims) - globalVoxelCoord(startKey, axis, dims)
		if diff < 0 {
			diff = -diff
		}
		limit += int(diff)

		if dir[axis] > 0 {
			step[axis] = 1
		} else if dir[axis] < 0 {
			step[axis] = -1
		}
		if step[axis] == 0 {
			timeMax[axis] = math.Inf(1)
			timeDelta[axis] = math.Inf(1)
			continue
		}
		// Distance from the start point to the next voxel boundary
		// along this axis, as a fraction of the segment.
		boundary := float64(globalVoxelCoord(startKey, axis, dims)) * resolution
		if step[axis] > 0 {
			boundary += resolution
		}
		timeMax[axis] = (boundary - origin[axis]) / dir[axis]
		timeDelta[axis] = resolution / math.Abs(dir[axis])
	}

	visited := 0
	current := startKey
	for steps := 0; steps < limit && current != endKey; steps++ {
		if !visit(current) {
			return visited + 1
		}
		visited++
		axis := 0
		if timeMax[1] < timeMax[axis] {
			axis = 1
		}
		if timeMax[2] < timeMax[axis] {
			axis = 2
		}
		timeMax[axis] += timeDelta[axis]
		current = stepKey(current, axis, step[axis], dims)
	}
	if includeEnd {
		visit(endKey)
		visited++
	}
	return visited
}

// calculateSegmentKeys collects the keys of the segment into keys,
// appending in traversal order, and returns the number added.
func calculateSegmentKeys(keys *KeyList, start, end r3.Vec, includeEnd bool, resolution float64, dims [3]int32) int {
	return walkSegmentKeys(func(k Key) bool {
		keys.Add(k)
		return true
	}, start, end, includeEnd, resolution, dims)
}
