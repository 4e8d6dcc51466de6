package occmap

import (
	"encoding/binary"
	"math"
)

// Layer names recognised by the engine.
const (
	LayerOccupancy = "occupancy"
	LayerMean      = "mean"
)

// Layer describes the per-voxel byte layout of one named chunk layer.
type Layer struct {
	name          string
	voxelByteSize int
	clearPattern  []byte
}

// Name returns the layer name.
func (l Layer) Name() string { return l.name }

// VoxelByteSize returns the number of bytes each voxel occupies in this
// layer.
func (l Layer) VoxelByteSize() int { return l.voxelByteSize }

// ClearPattern returns the initial byte pattern for a single voxel. The
// returned slice must not be modified.
func (l Layer) ClearPattern() []byte { return l.clearPattern }

// Layout holds the region voxel dimensions and the ordered list of layers
// present in every chunk. The layer set is fixed for the lifetime of a
// layout; layer changes on a live map swap in a new layout and re-shape
// every chunk (see Map.AddVoxelMeanLayer).
type Layout struct {
	dims   [3]int32
	layers []Layer
	byName map[string]int
}

// occupancyClearPattern returns the little-endian encoding of the
// unobserved sentinel, used to initialise occupancy buffers.
func occupancyClearPattern() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(UnobservedValue()))
	return b
}

// NewLayout creates a layout with the mandatory occupancy layer. Callers
// add further layers before attaching the layout to a map.
func NewLayout(regionVoxelDims [3]uint8) *Layout {
	l := &Layout{
		dims:   [3]int32{int32(regionVoxelDims[0]), int32(regionVoxelDims[1]), int32(regionVoxelDims[2])},
		byName: make(map[string]int),
	}
	l.addLayer(LayerOccupancy, 4, occupancyClearPattern())
	return l
}

func (l *Layout) addLayer(name string, voxelByteSize int, clearPattern []byte) {
	l.byName[name] = len(l.layers)
	l.layers = append(l.layers, Layer{name: name, voxelByteSize: voxelByteSize, clearPattern: clearPattern})
}

// AddMeanLayer appends the voxel mean layer if not already present.
func (l *Layout) AddMeanLayer() {
	if _, ok := l.byName[LayerMean]; ok {
		return
	}
	l.addLayer(LayerMean, voxelMeanByteSize, make([]byte, voxelMeanByteSize))
}

// RegionVoxelDims returns the per-region voxel dimensions.
func (l *Layout) RegionVoxelDims() [3]int32 { return l.dims }

// RegionVoxelCount returns the number of voxels in one region.
func (l *Layout) RegionVoxelCount() int {
	return int(l.dims[0]) * int(l.dims[1]) * int(l.dims[2])
}

// LayerIndex returns the index of the named layer, or -1 when absent.
func (l *Layout) LayerIndex(name string) int {
	if i, ok := l.byName[name]; ok {
		return i
	}
	return -1
}

// NumLayers returns the number of layers in the layout.
func (l *Layout) NumLayers() int { return len(l.layers) }

// Layer returns the descriptor at index i.
func (l *Layout) Layer(i int) Layer { return l.layers[i] }

// BytesPerLayer returns the chunk buffer size for layer i.
func (l *Layout) BytesPerLayer(i int) int {
	return l.RegionVoxelCount() * l.layers[i].voxelByteSize
}

// clone returns a copy sharing no mutable state with the receiver.
func (l *Layout) clone() *Layout {
	c := &Layout{dims: l.dims, byName: make(map[string]int, len(l.byName))}
	c.layers = append(c.layers, l.layers...)
	for k, v := range l.byName {
		c.byName[k] = v
	}
	return c
}

// withoutLayer returns a copy of the layout with the named layer removed.
// Removing the occupancy layer is not permitted and returns the receiver's
// clone unchanged.
func (l *Layout) withoutLayer(name string) *Layout {
	if name == LayerOccupancy {
		return l.clone()
	}
	c := &Layout{dims: l.dims, byName: make(map[string]int)}
	for _, layer := range l.layers {
		if layer.name == name {
			continue
		}
		c.byName[layer.name] = len(c.layers)
		c.layers = append(c.layers, layer)
	}
	return c
}
