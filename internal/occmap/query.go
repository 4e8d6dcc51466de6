package occmap

import "gonum.org/v1/gonum/spatial/r3"

// OccupancyType classifies a voxel's occupancy state.
type OccupancyType int

const (
	// Unobserved voxels have never been touched by a ray.
	Unobserved OccupancyType = iota
	// Free voxels have been observed below the occupancy threshold.
	Free
	// Occupied voxels meet the occupancy threshold.
	Occupied
)

// String returns the classification name.
func (t OccupancyType) String() string {
	switch t {
	case Free:
		return "free"
	case Occupied:
		return "occupied"
	}
	return "unobserved"
}

// OccupancyType classifies a raw occupancy value against the map's
// threshold.
func (m *Map) OccupancyType(value float32) OccupancyType {
	if IsUnobserved(value) {
		return Unobserved
	}
	if value >= m.occupancyThresholdValue {
		return Occupied
	}
	return Free
}

// keyFromVoxelIndex inverts VoxelIndex for a region.
func keyFromVoxelIndex(region RegionKey, vi uint32, dims [3]int32) Key {
	plane := uint32(dims[0]) * uint32(dims[1])
	z := vi / plane
	rem := vi - z*plane
	y := rem / uint32(dims[0])
	x := rem - y*uint32(dims[0])
	return Key{Region: region, Local: [3]uint8{uint8(x), uint8(y), uint8(z)}}
}

// ForEachOccupied visits every occupied voxel, in chunk allocation order
// and voxel index order within each chunk. Returning false stops the
// visit.
func (m *Map) ForEachOccupied(fn func(Voxel) bool) {
	dims := m.layout.RegionVoxelDims()
	voxels := uint32(m.layout.RegionVoxelCount())
	m.chunks.forEach(func(c *Chunk) bool {
		first := c.FirstValidIndex()
		if first == invalidFirstValid {
			return true
		}
		for vi := first; vi < voxels; vi++ {
			value := readOccupancy(c, m.occupancyLayer, vi)
			if IsUnobserved(value) || value < m.occupancyThresholdValue {
				continue
			}
			v := Voxel{m: m, chunk: c, key: keyFromVoxelIndex(c.Region(), vi, dims), index: vi}
			if !fn(v) {
				return false
			}
		}
		return true
	})
}

// ExtractCloud appends the position of every occupied voxel to dst and
// returns the extended slice. Positions are voxel mean positions when the
// mean layer is present, voxel centres otherwise.
func (m *Map) ExtractCloud(dst []r3.Vec) []r3.Vec {
	m.ForEachOccupied(func(v Voxel) bool {
		dst = append(dst, v.Position())
		return true
	})
	return dst
}

// OccupiedCount returns the number of occupied voxels.
func (m *Map) OccupiedCount() int {
	n := 0
	m.ForEachOccupied(func(Voxel) bool {
		n++
		return true
	})
	return n
}
