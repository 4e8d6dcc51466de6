// Package occmap implements a probabilistic 3-D occupancy map over a
// sparse, chunked voxel grid. Range sensor rays (origin, sample pairs in a
// global Cartesian frame) are integrated into per-voxel log-odds occupancy
// values using an Amanatides-Woo grid traversal, with optional sub-voxel
// mean position tracking for each occupied voxel.
//
// The map allocates fixed-size regions (chunks) of voxels on demand. Each
// chunk owns one contiguous byte buffer per named layer (occupancy, mean).
// Writers must be externally serialised; concurrent readers observe the
// per-chunk touch stamps to detect changes.
package occmap
