package occmap

import (
	"fmt"
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"
)

// MapFlag selects optional map behaviours fixed at construction, except
// where an administrative operation says otherwise.
type MapFlag uint32

const (
	// MapNone enables no optional behaviour.
	MapNone MapFlag = 0
	// MapVoxelMean tracks a sub-voxel mean sample position per voxel.
	MapVoxelMean MapFlag = 1 << 0
	// MapCompressed stores chunk buffers compressed when the map is
	// serialised.
	MapCompressed MapFlag = 1 << 1
	// MapDefault is the flag set used by DefaultMapConfig.
	MapDefault = MapCompressed
)

// MapConfig carries every tunable of a map. Probabilities are validated at
// construction; the zero value is not usable, start from
// DefaultMapConfig.
type MapConfig struct {
	// Resolution is the voxel edge length in metres.
	Resolution float64 `json:"resolution"`
	// RegionVoxelDims is the voxel extent of each chunk per axis.
	RegionVoxelDims [3]uint8 `json:"region_voxel_dims"`
	Flags           MapFlag  `json:"flags"`

	HitProbability                float64 `json:"hit_probability"`
	MissProbability               float64 `json:"miss_probability"`
	OccupancyThresholdProbability float64 `json:"occupancy_threshold_probability"`
	MinNodeProbability            float64 `json:"min_node_probability"`
	MaxNodeProbability            float64 `json:"max_node_probability"`
	SaturateAtMin                 bool    `json:"saturate_at_min"`
	SaturateAtMax                 bool    `json:"saturate_at_max"`

	// MaxChunks bounds the number of allocated chunks; zero means
	// unbounded. Exceeding the bound fails the triggering operation
	// with ErrChunkBudget.
	MaxChunks int `json:"max_chunks,omitempty"`
}

// DefaultMapConfig returns the tuning used by the population tools:
// 0.25 m voxels in 32^3 regions with the usual hit/miss increments.
func DefaultMapConfig() MapConfig {
	return MapConfig{
		Resolution:                    0.25,
		RegionVoxelDims:               [3]uint8{32, 32, 32},
		Flags:                         MapDefault,
		HitProbability:                0.7,
		MissProbability:               0.4,
		OccupancyThresholdProbability: 0.5,
		MinNodeProbability:            0.1192,
		MaxNodeProbability:            0.971,
	}
}

// Validate reports the first configuration error found.
func (c MapConfig) Validate() error {
	if !(c.Resolution > 0) {
		return fmt.Errorf("occmap: resolution %v must be positive", c.Resolution)
	}
	for axis, d := range c.RegionVoxelDims {
		if d == 0 {
			return fmt.Errorf("occmap: region voxel dims axis %d is zero", axis)
		}
	}
	probs := []struct {
		name string
		p    float64
	}{
		{"hit_probability", c.HitProbability},
		{"miss_probability", c.MissProbability},
		{"occupancy_threshold_probability", c.OccupancyThresholdProbability},
		{"min_node_probability", c.MinNodeProbability},
		{"max_node_probability", c.MaxNodeProbability},
	}
	for _, pr := range probs {
		if !(pr.p > 0 && pr.p < 1) {
			return fmt.Errorf("occmap: %s %v outside (0, 1)", pr.name, pr.p)
		}
	}
	if c.HitProbability <= 0.5 {
		return fmt.Errorf("occmap: hit_probability %v must exceed 0.5", c.HitProbability)
	}
	if c.MissProbability >= 0.5 {
		return fmt.Errorf("occmap: miss_probability %v must be below 0.5", c.MissProbability)
	}
	if c.MinNodeProbability >= c.MaxNodeProbability {
		return fmt.Errorf("occmap: min_node_probability %v not below max_node_probability %v",
			c.MinNodeProbability, c.MaxNodeProbability)
	}
	if c.MaxChunks < 0 {
		return fmt.Errorf("occmap: max_chunks %d is negative", c.MaxChunks)
	}
	return nil
}

// Map is a sparse probabilistic occupancy grid. Reads are safe alongside a
// single writer; concurrent writers must be serialised by the caller.
type Map struct {
	cfg    MapConfig
	layout *Layout
	chunks *chunkStore
	origin r3.Vec
	stamp  atomic.Uint64

	rayFilter RayFilterFunc
	mapper    *OccupancyMapper

	occupancyLayer int
	meanLayer      int

	hitValue                float32
	missValue               float32
	occupancyThresholdValue float32
	minValue                float32
	maxValue                float32
	satMin                  float32
	satMax                  float32
}

// NewMap builds a map from cfg. The occupancy layer is always present;
// MapVoxelMean adds the mean layer.
func NewMap(cfg MapConfig) (*Map, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	layout := NewLayout(cfg.RegionVoxelDims)
	if cfg.Flags&MapVoxelMean != 0 {
		layout.AddMeanLayer()
	}
	m := &Map{
		cfg:    cfg,
		layout: layout,
		chunks: newChunkStore(cfg.MaxChunks),
	}
	m.mapper = NewOccupancyMapper(m)
	m.applyLayout(layout)
	m.applyProbabilities()
	return m, nil
}

func (m *Map) applyLayout(layout *Layout) {
	m.layout = layout
	m.occupancyLayer = layout.LayerIndex(LayerOccupancy)
	m.meanLayer = layout.LayerIndex(LayerMean)
}

func (m *Map) applyProbabilities() {
	c := m.cfg
	m.hitValue = ProbabilityToValue(c.HitProbability)
	m.missValue = ProbabilityToValue(c.MissProbability)
	m.occupancyThresholdValue = ProbabilityToValue(c.OccupancyThresholdProbability)
	m.minValue = ProbabilityToValue(c.MinNodeProbability)
	m.maxValue = ProbabilityToValue(c.MaxNodeProbability)
	m.satMin = float32(math.Inf(-1))
	m.satMax = float32(math.Inf(1))
	if c.SaturateAtMin {
		m.satMin = m.minValue
	}
	if c.SaturateAtMax {
		m.satMax = m.maxValue
	}
}

// Config returns the map's configuration.
func (m *Map) Config() MapConfig { return m.cfg }

// Resolution returns the voxel edge length in metres.
func (m *Map) Resolution() float64 { return m.cfg.Resolution }

// Layout returns the current layer layout.
func (m *Map) Layout() *Layout { return m.layout }

// Origin returns the map origin in the global frame.
func (m *Map) Origin() r3.Vec { return m.origin }

// SetOrigin moves the map origin. Existing voxel contents keep their keys,
// so moving the origin re-interprets them in the global frame.
func (m *Map) SetOrigin(origin r3.Vec) { m.origin = origin }

// Stamp returns the current map stamp without advancing it.
func (m *Map) Stamp() uint64 { return m.stamp.Load() }

// Touch advances the map stamp and returns the new value.
func (m *Map) Touch() uint64 { return m.stamp.Add(1) }

// SetStamp restores a persisted stamp value.
func (m *Map) SetStamp(stamp uint64) { m.stamp.Store(stamp) }

// HitValue returns the log-odds increment applied per hit.
func (m *Map) HitValue() float32 { return m.hitValue }

// MissValue returns the log-odds increment applied per miss.
func (m *Map) MissValue() float32 { return m.missValue }

// OccupancyThresholdValue returns the log-odds occupancy threshold.
func (m *Map) OccupancyThresholdValue() float32 { return m.occupancyThresholdValue }

// SetRayFilter installs a filter applied to every ray before integration.
// A nil filter accepts everything.
func (m *Map) SetRayFilter(f RayFilterFunc) { m.rayFilter = f }

// RayFilter returns the installed ray filter, or nil.
func (m *Map) RayFilter() RayFilterFunc { return m.rayFilter }

// VoxelKey partitions a global point into its voxel key.
func (m *Map) VoxelKey(p r3.Vec) Key {
	return voxelKeyLocal(r3.Sub(p, m.origin), m.cfg.Resolution, m.layout.RegionVoxelDims())
}

// VoxelCentreGlobal returns the centre of the keyed voxel in the global
// frame.
func (m *Map) VoxelCentreGlobal(k Key) r3.Vec {
	return r3.Add(m.origin, voxelCentreLocal(k, m.cfg.Resolution, m.layout.RegionVoxelDims()))
}

// Voxel returns a handle onto the keyed voxel. With create set the backing
// chunk is allocated on demand; without it an absent chunk yields an
// invalid handle reading as unobserved. Allocation can fail with
// ErrChunkBudget.
func (m *Map) Voxel(k Key, create bool) (Voxel, error) {
	c, err := m.chunks.region(k.Region, create, m.layout)
	if err != nil {
		return Voxel{}, err
	}
	return Voxel{m: m, chunk: c, key: k, index: VoxelIndex(k, m.layout.RegionVoxelDims())}, nil
}

// Region returns the chunk at coord, allocating it when create is set. A
// nil chunk means absent.
func (m *Map) Region(coord RegionKey, create bool) (*Chunk, error) {
	return m.chunks.region(coord, create, m.layout)
}

// ChunkCount returns the number of allocated chunks.
func (m *Map) ChunkCount() int { return m.chunks.len() }

// ForEachChunk visits allocated chunks in allocation order. Returning
// false stops the iteration.
func (m *Map) ForEachChunk(fn func(*Chunk) bool) { m.chunks.forEach(fn) }

// Clear discards every chunk, keeping configuration and layout, and
// advances the map stamp.
func (m *Map) Clear() {
	m.chunks.clear()
	m.Touch()
}

// IntegrateRays integrates (origin, sample) pairs through the map's
// default occupancy mapper.
func (m *Map) IntegrateRays(rays []r3.Vec, flags RayFlag) (int, error) {
	return m.mapper.IntegrateRays(rays, flags)
}

// CalculateSegmentKeys appends the keys of voxels intersected by the
// global segment start..end to keys in traversal order and returns the
// number added.
func (m *Map) CalculateSegmentKeys(keys *KeyList, start, end r3.Vec, includeEnd bool) int {
	return calculateSegmentKeys(keys,
		r3.Sub(start, m.origin), r3.Sub(end, m.origin),
		includeEnd, m.cfg.Resolution, m.layout.RegionVoxelDims())
}

// AddVoxelMeanLayer enables sub-voxel mean tracking, re-shaping every
// allocated chunk to carry the mean layer. Existing occupancy values are
// preserved; new mean records start empty. A no-op when already enabled.
func (m *Map) AddVoxelMeanLayer() {
	if m.meanLayer >= 0 {
		return
	}
	next := m.layout.clone()
	next.AddMeanLayer()
	m.reshape(next)
	m.cfg.Flags |= MapVoxelMean
}

// RemoveVoxelMeanLayer drops the mean layer and its storage from every
// chunk. A no-op when not enabled.
func (m *Map) RemoveVoxelMeanLayer() {
	if m.meanLayer < 0 {
		return
	}
	next := m.layout.withoutLayer(LayerMean)
	m.reshape(next)
	m.cfg.Flags &^= MapVoxelMean
}

func (m *Map) reshape(next *Layout) {
	old := m.layout
	m.chunks.forEach(func(c *Chunk) bool {
		c.reshapeLayers(old, next)
		return true
	})
	m.applyLayout(next)
	m.Touch()
}
