package occmap

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// RayFlag selects per-batch integration behaviour. Flags apply uniformly
// to every ray in a batch; callers wanting mixed behaviour split their
// batches.
type RayFlag uint32

const (
	// RfDefault integrates the full ray as free space and the sample as
	// a hit.
	RfDefault RayFlag = 0
	// RfEndPointAsFree integrates the sample voxel as free space
	// instead of a hit.
	RfEndPointAsFree RayFlag = 1 << 0
	// RfStopOnFirstOccupied abandons a ray at the first voxel already
	// occupied before the update, leaving that voxel and everything
	// beyond it untouched.
	RfStopOnFirstOccupied RayFlag = 1 << 1
	// RfClearOnly degrades only voxels currently at or above the
	// occupancy threshold; free and unobserved voxels are left alone.
	// Implies the sample is not integrated as a hit.
	RfClearOnly RayFlag = 1 << 2
	// RfExcludeRay skips the free-space segment, integrating only the
	// sample.
	RfExcludeRay RayFlag = 1 << 3
	// RfExcludeSample skips the sample voxel, integrating only the
	// free-space segment.
	RfExcludeSample RayFlag = 1 << 4
)

// RayMapper integrates batches of sensor rays into a map. Implementations
// select an update strategy at the batch boundary only; per-ray behaviour
// inside a batch is fixed by the flags.
type RayMapper interface {
	// IntegrateRays consumes rays as (origin, sample) pairs in the
	// global frame. It returns the number of rays fully applied. On
	// chunk budget exhaustion the triggering ray is skipped whole and
	// integration stops with ErrChunkBudget.
	IntegrateRays(rays []r3.Vec, flags RayFlag) (int, error)
}

// OccupancyMapper integrates rays into occupancy log-odds values with
// optional sub-voxel mean tracking. Not safe for concurrent use; writers
// must be externally serialised.
type OccupancyMapper struct {
	m    *Map
	keys KeyList
}

// NewOccupancyMapper returns a mapper bound to m.
func NewOccupancyMapper(m *Map) *OccupancyMapper {
	return &OccupancyMapper{m: m}
}

// IntegrateRays implements RayMapper.
func (om *OccupancyMapper) IntegrateRays(rays []r3.Vec, flags RayFlag) (int, error) {
	if len(rays)%2 != 0 {
		return 0, fmt.Errorf("occmap: ray batch length %d is not a multiple of 2", len(rays))
	}
	m := om.m
	stamp := m.Touch()
	processed := 0
	for i := 0; i+1 < len(rays); i += 2 {
		start, end := rays[i], rays[i+1]
		var filterFlags RayFilterFlag
		if m.rayFilter != nil && !m.rayFilter(&start, &end, &filterFlags) {
			continue
		}
		if err := om.integrateRay(start, end, flags, filterFlags, stamp); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// integrateRay applies one ray. Keys are collected and chunks resolved
// before any voxel is written, so a ray that trips the chunk budget
// leaves the map unchanged.
func (om *OccupancyMapper) integrateRay(start, end r3.Vec, flags RayFlag, filterFlags RayFilterFlag, stamp uint64) error {
	m := om.m
	startLocal := r3.Sub(start, m.origin)
	endLocal := r3.Sub(end, m.origin)

	clippedEnd := filterFlags&RffClippedEnd != 0
	sampleAsFree := clippedEnd || flags&RfEndPointAsFree != 0 || flags&RfClearOnly != 0
	integrateSample := !sampleAsFree && flags&RfExcludeSample == 0

	om.keys.Reset()
	if flags&RfExcludeRay == 0 {
		calculateSegmentKeys(&om.keys, startLocal, endLocal, sampleAsFree, m.cfg.Resolution, m.layout.RegionVoxelDims())
	}
	sampleKey := voxelKeyLocal(endLocal, m.cfg.Resolution, m.layout.RegionVoxelDims())

	chunks := make([]*Chunk, om.keys.Len())
	var lastChunk *Chunk
	for i, k := range om.keys.Keys() {
		c, err := om.regionCached(k.Region, &lastChunk)
		if err != nil {
			return err
		}
		chunks[i] = c
	}
	var sampleChunk *Chunk
	if integrateSample {
		c, err := om.regionCached(sampleKey.Region, &lastChunk)
		if err != nil {
			return err
		}
		sampleChunk = c
	}

	clearOnly := flags&RfClearOnly != 0
	stopOnOccupied := flags&RfStopOnFirstOccupied != 0
	for i, k := range om.keys.Keys() {
		c := chunks[i]
		vi := VoxelIndex(k, m.layout.RegionVoxelDims())
		current := readOccupancy(c, m.occupancyLayer, vi)
		occupied := !IsUnobserved(current) && current >= m.occupancyThresholdValue
		if stopOnOccupied && occupied {
			return nil
		}
		next := occupancyAdjustMiss(current, m.missValue, m.minValue, m.maxValue,
			m.satMin, m.satMax, m.occupancyThresholdValue, clearOnly)
		writeOccupancy(c, m.occupancyLayer, vi, next)
		if !IsUnobserved(next) {
			c.updateFirstValid(vi)
		}
		c.touchLayer(m.occupancyLayer, stamp)
	}

	if !integrateSample {
		return nil
	}
	vi := VoxelIndex(sampleKey, m.layout.RegionVoxelDims())
	current := readOccupancy(sampleChunk, m.occupancyLayer, vi)
	next := occupancyAdjustHit(current, m.hitValue, m.minValue, m.maxValue, m.satMin, m.satMax)
	writeOccupancy(sampleChunk, m.occupancyLayer, vi, next)
	sampleChunk.updateFirstValid(vi)
	sampleChunk.touchLayer(m.occupancyLayer, stamp)

	if m.meanLayer >= 0 {
		b := sampleChunk.VoxelBytes(m.meanLayer, vi, voxelMeanByteSize)
		mean := decodeVoxelMean(b, m.cfg.Resolution)
		centre := voxelCentreLocal(sampleKey, m.cfg.Resolution, m.layout.RegionVoxelDims())
		mean = updateVoxelMean(mean, r3.Sub(endLocal, centre))
		encodeVoxelMean(b, mean, m.cfg.Resolution)
		sampleChunk.touchLayer(m.meanLayer, stamp)
	}
	return nil
}

// regionCached resolves a chunk, short-circuiting the common case of
// consecutive keys landing in the same region.
func (om *OccupancyMapper) regionCached(coord RegionKey, last **Chunk) (*Chunk, error) {
	if *last != nil && (*last).Region() == coord {
		return *last, nil
	}
	c, err := om.m.chunks.region(coord, true, om.m.layout)
	if err != nil {
		return nil, err
	}
	*last = c
	return c, nil
}
