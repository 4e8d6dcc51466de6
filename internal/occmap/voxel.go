package occmap

import (
	"encoding/binary"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Voxel is a handle onto one voxel of the map. A handle with no backing
// chunk reads as unobserved; writes through such a handle are no-ops.
type Voxel struct {
	m     *Map
	chunk *Chunk
	key   Key
	index uint32
}

// Valid reports whether the handle is backed by an allocated chunk.
func (v Voxel) Valid() bool { return v.chunk != nil }

// Key returns the voxel key the handle refers to.
func (v Voxel) Key() Key { return v.key }

// Value returns the voxel's occupancy value, or the unobserved sentinel
// when the chunk is not allocated.
func (v Voxel) Value() float32 {
	if v.chunk == nil {
		return unobservedValue
	}
	return readOccupancy(v.chunk, v.m.occupancyLayer, v.index)
}

// SetValue writes the occupancy value directly, bypassing hit/miss
// arithmetic, and bumps the change stamps.
func (v Voxel) SetValue(value float32) {
	if v.chunk == nil {
		return
	}
	writeOccupancy(v.chunk, v.m.occupancyLayer, v.index, value)
	v.chunk.updateFirstValid(v.index)
	v.chunk.touchLayer(v.m.occupancyLayer, v.m.Touch())
}

// Probability returns the voxel's occupancy probability. Unobserved
// voxels report 0.5.
func (v Voxel) Probability() float64 {
	value := v.Value()
	if IsUnobserved(value) {
		return 0.5
	}
	return ValueToProbability(value)
}

// IsUnobserved reports whether the voxel has never been observed.
func (v Voxel) IsUnobserved() bool { return IsUnobserved(v.Value()) }

// IsOccupied reports whether the voxel's value meets the occupancy
// threshold.
func (v Voxel) IsOccupied() bool {
	value := v.Value()
	return !IsUnobserved(value) && value >= v.m.occupancyThresholdValue
}

// IsFree reports whether the voxel has been observed and sits below the
// occupancy threshold.
func (v Voxel) IsFree() bool {
	value := v.Value()
	return !IsUnobserved(value) && value < v.m.occupancyThresholdValue
}

// CentreGlobal returns the centre of the voxel in the global frame.
func (v Voxel) CentreGlobal() r3.Vec { return v.m.VoxelCentreGlobal(v.key) }

// Position returns the voxel's reported position in the global frame: the
// tracked sub-voxel mean when the mean layer is present and has samples,
// the voxel centre otherwise.
func (v Voxel) Position() r3.Vec {
	centre := v.CentreGlobal()
	if v.chunk == nil || v.m.meanLayer < 0 {
		return centre
	}
	mean := decodeVoxelMean(v.chunk.VoxelBytes(v.m.meanLayer, v.index, voxelMeanByteSize), v.m.cfg.Resolution)
	if mean.count == 0 {
		return centre
	}
	return r3.Add(centre, mean.offset)
}

// SetPosition overwrites the voxel's sub-voxel mean with the given global
// position, clamping to the voxel bounds. The sample count becomes one
// when no samples have been recorded. A no-op when the mean layer is
// absent.
func (v Voxel) SetPosition(p r3.Vec) {
	if v.chunk == nil || v.m.meanLayer < 0 {
		return
	}
	b := v.chunk.VoxelBytes(v.m.meanLayer, v.index, voxelMeanByteSize)
	mean := decodeVoxelMean(b, v.m.cfg.Resolution)
	mean.offset = r3.Sub(p, v.CentreGlobal())
	if mean.count == 0 {
		mean.count = 1
	}
	encodeVoxelMean(b, mean, v.m.cfg.Resolution)
	v.chunk.touchLayer(v.m.meanLayer, v.m.Touch())
}

// MeanCount returns the number of samples folded into the voxel's mean, or
// zero when the mean layer is absent.
func (v Voxel) MeanCount() uint32 {
	if v.chunk == nil || v.m.meanLayer < 0 {
		return 0
	}
	return decodeVoxelMean(v.chunk.VoxelBytes(v.m.meanLayer, v.index, voxelMeanByteSize), v.m.cfg.Resolution).count
}

func readOccupancy(c *Chunk, layerIndex int, voxelIndex uint32) float32 {
	b := c.VoxelBytes(layerIndex, voxelIndex, 4)
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func writeOccupancy(c *Chunk, layerIndex int, voxelIndex uint32, value float32) {
	b := c.VoxelBytes(layerIndex, voxelIndex, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(value))
}
