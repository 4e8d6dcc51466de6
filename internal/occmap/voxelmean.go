package occmap

import (
	"encoding/binary"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// voxelMeanByteSize is the packed per-voxel record size of the mean layer:
// three int16 quantised offsets, a uint16 pad and a uint32 sample count.
const voxelMeanByteSize = 12

// meanQuantisationScale maps the offset range [-res/2, +res/2] onto the
// signed 16-bit codes [-32767, 32767].
const meanQuantisationScale = 32767.0

// voxelMean is the decoded form of one mean-layer record. Offsets are in
// metres relative to the voxel centre.
type voxelMean struct {
	offset r3.Vec
	count  uint32
}

func decodeVoxelMean(b []byte, resolution float64) voxelMean {
	return voxelMean{
		offset: r3.Vec{
			X: dequantiseMeanOffset(int16(binary.LittleEndian.Uint16(b[0:2])), resolution),
			Y: dequantiseMeanOffset(int16(binary.LittleEndian.Uint16(b[2:4])), resolution),
			Z: dequantiseMeanOffset(int16(binary.LittleEndian.Uint16(b[4:6])), resolution),
		},
		count: binary.LittleEndian.Uint32(b[8:12]),
	}
}

func encodeVoxelMean(b []byte, m voxelMean, resolution float64) {
	binary.LittleEndian.PutUint16(b[0:2], uint16(quantiseMeanOffset(m.offset.X, resolution)))
	binary.LittleEndian.PutUint16(b[2:4], uint16(quantiseMeanOffset(m.offset.Y, resolution)))
	binary.LittleEndian.PutUint16(b[4:6], uint16(quantiseMeanOffset(m.offset.Z, resolution)))
	binary.LittleEndian.PutUint16(b[6:8], 0)
	binary.LittleEndian.PutUint32(b[8:12], m.count)
}

// quantiseMeanOffset maps a metre offset in [-res/2, +res/2] to a signed
// 16-bit code. Out-of-range inputs clamp to the half-voxel bound before
// quantisation.
func quantiseMeanOffset(offset, resolution float64) int16 {
	half := resolution / 2
	if offset > half {
		offset = half
	} else if offset < -half {
		offset = -half
	}
	return int16(math.Round(offset / half * meanQuantisationScale))
}

func dequantiseMeanOffset(code int16, resolution float64) float64 {
	return float64(code) / meanQuantisationScale * (resolution / 2)
}

// updateVoxelMean folds the sample position (metres, relative to the voxel
// centre) into the running mean using an n+1 denominator, then saturates
// the count.
func updateVoxelMean(m voxelMean, sampleOffset r3.Vec) voxelMean {
	n := float64(m.count)
	w := 1.0 / (n + 1)
	m.offset = r3.Vec{
		X: m.offset.X + (sampleOffset.X-m.offset.X)*w,
		Y: m.offset.Y + (sampleOffset.Y-m.offset.Y)*w,
		Z: m.offset.Z + (sampleOffset.Z-m.offset.Z)*w,
	}
	if m.count != math.MaxUint32 {
		m.count++
	}
	return m
}
