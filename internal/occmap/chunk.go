package occmap

import (
	"bytes"
	"errors"
	"sync/atomic"
)

// ErrChunkBudget is returned when allocating a new chunk would exceed the
// map's configured MaxChunks limit.
var ErrChunkBudget = errors.New("occmap: chunk budget exhausted")

// invalidFirstValid marks a chunk with no known valid voxel. Writers lower
// the hint towards the first non-clear voxel; readers treat the sentinel as
// "scan from zero or skip".
const invalidFirstValid = ^uint32(0)

// Chunk is one fixed-size region of voxels. It owns a contiguous byte
// buffer per layout layer and carries change stamps so readers can detect
// writes without locking. Buffer writes must be externally serialised.
type Chunk struct {
	region  RegionKey
	buffers [][]byte

	dirtyStamp atomic.Uint64
	touched    []atomic.Uint64

	firstValid atomic.Uint32
	pins       atomic.Int32
}

func newChunk(region RegionKey, layout *Layout) *Chunk {
	c := &Chunk{
		region:  region,
		buffers: make([][]byte, layout.NumLayers()),
		touched: make([]atomic.Uint64, layout.NumLayers()),
	}
	for i := 0; i < layout.NumLayers(); i++ {
		c.buffers[i] = newLayerBuffer(layout, i)
	}
	c.firstValid.Store(invalidFirstValid)
	return c
}

// newLayerBuffer allocates a layer buffer filled with the layer's clear
// pattern.
func newLayerBuffer(layout *Layout, layerIndex int) []byte {
	layer := layout.Layer(layerIndex)
	buf := make([]byte, layout.BytesPerLayer(layerIndex))
	pattern := layer.ClearPattern()
	if !isZeroPattern(pattern) {
		for off := 0; off < len(buf); off += len(pattern) {
			copy(buf[off:], pattern)
		}
	}
	return buf
}

func isZeroPattern(p []byte) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}

// Region returns the chunk's region coordinate.
func (c *Chunk) Region() RegionKey { return c.region }

// Layer returns the raw byte buffer for layer i. The buffer layout follows
// VoxelIndex ordering with the layer's per-voxel byte size.
func (c *Chunk) Layer(i int) []byte { return c.buffers[i] }

// VoxelBytes returns the byte slice for one voxel in layer layerIndex.
func (c *Chunk) VoxelBytes(layerIndex int, voxelIndex uint32, voxelByteSize int) []byte {
	off := int(voxelIndex) * voxelByteSize
	return c.buffers[layerIndex][off : off+voxelByteSize]
}

// DirtyStamp returns the map stamp of the most recent write to any layer.
func (c *Chunk) DirtyStamp() uint64 { return c.dirtyStamp.Load() }

// TouchedStamp returns the map stamp of the most recent write to layer i.
func (c *Chunk) TouchedStamp(i int) uint64 { return c.touched[i].Load() }

// touchLayer records a write to layer i at the given map stamp. Stamps only
// move forward under serialised writers, so a plain store suffices.
func (c *Chunk) touchLayer(i int, stamp uint64) {
	c.dirtyStamp.Store(stamp)
	c.touched[i].Store(stamp)
}

// SetTouchedStamp restores a persisted layer stamp, raising the dirty
// stamp to match when needed.
func (c *Chunk) SetTouchedStamp(i int, stamp uint64) {
	c.touched[i].Store(stamp)
	if stamp > c.dirtyStamp.Load() {
		c.dirtyStamp.Store(stamp)
	}
}

// RefreshFirstValid rescans layer layerIndex for the first voxel differing
// from the layer's clear pattern and resets the hint accordingly. Used
// after bulk-loading a chunk's buffers.
func (c *Chunk) RefreshFirstValid(layout *Layout, layerIndex int) {
	layer := layout.Layer(layerIndex)
	pattern := layer.ClearPattern()
	buf := c.buffers[layerIndex]
	size := layer.VoxelByteSize()
	for vi := 0; vi*size < len(buf); vi++ {
		if !bytes.Equal(buf[vi*size:(vi+1)*size], pattern) {
			c.firstValid.Store(uint32(vi))
			return
		}
	}
	c.firstValid.Store(invalidFirstValid)
}

// FirstValidIndex returns the lowest voxel index known to hold a non-clear
// occupancy value, or invalidFirstValid when none is known.
func (c *Chunk) FirstValidIndex() uint32 { return c.firstValid.Load() }

// updateFirstValid lowers the first-valid hint. The hint only ever moves
// down; stale higher values are harmless to readers.
func (c *Chunk) updateFirstValid(voxelIndex uint32) {
	if voxelIndex < c.firstValid.Load() {
		c.firstValid.Store(voxelIndex)
	}
}

// Pin marks the chunk as having an in-flight reader by raising its pin
// count. Layer re-shaping and Map.Clear do not consult the pin count.
func (c *Chunk) Pin() { c.pins.Add(1) }

// Unpin releases a Pin.
func (c *Chunk) Unpin() { c.pins.Add(-1) }

// reshapeLayers rebuilds the chunk's buffers for a new layout, preserving
// the contents of layers present in both the old and new layouts.
func (c *Chunk) reshapeLayers(old, next *Layout) {
	buffers := make([][]byte, next.NumLayers())
	touched := make([]atomic.Uint64, next.NumLayers())
	for i := 0; i < next.NumLayers(); i++ {
		name := next.Layer(i).Name()
		if j := old.LayerIndex(name); j >= 0 {
			buffers[i] = c.buffers[j]
			touched[i].Store(c.touched[j].Load())
			continue
		}
		buffers[i] = newLayerBuffer(next, i)
	}
	c.buffers = buffers
	c.touched = touched
}

// chunkStore holds the sparse region grid. Chunks iterate in insertion
// order so traversals and serialisation are deterministic.
type chunkStore struct {
	chunks    map[RegionKey]*Chunk
	order     []*Chunk
	maxChunks int
}

func newChunkStore(maxChunks int) *chunkStore {
	return &chunkStore{
		chunks:    make(map[RegionKey]*Chunk),
		maxChunks: maxChunks,
	}
}

// region returns the chunk at coord, allocating it when create is set. A
// nil chunk with nil error means the chunk does not exist and create was
// false. Allocation beyond the budget returns ErrChunkBudget.
func (s *chunkStore) region(coord RegionKey, create bool, layout *Layout) (*Chunk, error) {
	if c, ok := s.chunks[coord]; ok {
		return c, nil
	}
	if !create {
		return nil, nil
	}
	if s.maxChunks > 0 && len(s.order) >= s.maxChunks {
		return nil, ErrChunkBudget
	}
	c := newChunk(coord, layout)
	s.chunks[coord] = c
	s.order = append(s.order, c)
	return c, nil
}

func (s *chunkStore) len() int { return len(s.order) }

// forEach visits chunks in insertion order. Returning false stops the
// iteration.
func (s *chunkStore) forEach(fn func(*Chunk) bool) {
	for _, c := range s.order {
		if !fn(c) {
			return
		}
	}
}

func (s *chunkStore) clear() {
	s.chunks = make(map[RegionKey]*Chunk)
	s.order = s.order[:0]
}
