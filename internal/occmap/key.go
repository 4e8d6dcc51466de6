package occmap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// RegionKey addresses one region in the sparse grid. Regions tile space
// with no gaps or overlaps; coordinates are signed so the grid extends in
// every direction from the map origin.
type RegionKey [3]int16

// Key uniquely identifies a voxel anywhere in the grid as a region
// coordinate plus a local voxel index within that region. Local indices
// satisfy 0 <= Local[i] < regionVoxelDims[i].
type Key struct {
	Region RegionKey
	Local  [3]uint8
}

// String formats the key for logs and test failures.
func (k Key) String() string {
	return fmt.Sprintf("[%d %d %d : %d %d %d]",
		k.Region[0], k.Region[1], k.Region[2], k.Local[0], k.Local[1], k.Local[2])
}

// VoxelIndex returns the linear index of the key's voxel within its region
// buffer: z-major, then y, then x.
func VoxelIndex(k Key, dims [3]int32) uint32 {
	return uint32(k.Local[2])*uint32(dims[0])*uint32(dims[1]) +
		uint32(k.Local[1])*uint32(dims[0]) +
		uint32(k.Local[0])
}

// floorDiv divides rounding towards negative infinity. Region assignment
// must be stable across the origin, so truncating division is not enough.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// voxelKeyLocal partitions a point in map-local metres into a voxel key.
// Cells are half-open [min, min+resolution) on every axis; a point on a
// boundary resolves to the voxel whose minimum corner coincides with it.
func voxelKeyLocal(p r3.Vec, resolution float64, dims [3]int32) Key {
	var k Key
	coords := [3]float64{p.X, p.Y, p.Z}
	for axis := 0; axis < 3; axis++ {
		cell := int64(math.Floor(coords[axis] / resolution))
		region := floorDiv(cell, int64(dims[axis]))
		k.Region[axis] = int16(region)
		k.Local[axis] = uint8(cell - region*int64(dims[axis]))
	}
	return k
}

// globalVoxelCoord returns the unbounded integer voxel coordinate of the
// key on one axis: region*dims + local.
func globalVoxelCoord(k Key, axis int, dims [3]int32) int64 {
	return int64(k.Region[axis])*int64(dims[axis]) + int64(k.Local[axis])
}

// voxelCentreLocal returns the centre of the keyed voxel in map-local
// metres.
func voxelCentreLocal(k Key, resolution float64, dims [3]int32) r3.Vec {
	return r3.Vec{
		X: (float64(globalVoxelCoord(k, 0, dims)) + 0.5) * resolution,
		Y: (float64(globalVoxelCoord(k, 1, dims)) + 0.5) * resolution,
		Z: (float64(globalVoxelCoord(k, 2, dims)) + 0.5) * resolution,
	}
}

// stepKey advances the key one voxel along the given axis (dir is +1 or
// -1), rolling the local index over into the neighbouring region at the
// region boundary.
func stepKey(k Key, axis, dir int, dims [3]int32) Key {
	local := int32(k.Local[axis]) + int32(dir)
	region := int32(k.Region[axis])
	if local < 0 {
		local = dims[axis] - 1
		region--
	} else if local >= dims[axis] {
		local = 0
		region++
	}
	k.Local[axis] = uint8(local)
	k.Region[axis] = int16(region)
	return k
}
