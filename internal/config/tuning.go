// Package config loads optional map tuning overrides from JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig carries optional overrides for map construction and ray
// integration. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
type TuningConfig struct {
	// Map geometry
	Resolution      *float64 `json:"resolution,omitempty"`
	RegionVoxelDims *[3]int  `json:"region_voxel_dims,omitempty"`

	// Occupancy model
	HitProbability       *float64 `json:"hit_probability,omitempty"`
	MissProbability      *float64 `json:"miss_probability,omitempty"`
	OccupancyThreshold   *float64 `json:"occupancy_threshold_probability,omitempty"`
	MinNodeProbability   *float64 `json:"min_node_probability,omitempty"`
	MaxNodeProbability   *float64 `json:"max_node_probability,omitempty"`
	SaturateAtMinValue   *bool    `json:"saturate_at_min,omitempty"`
	SaturateAtMaxValue   *bool    `json:"saturate_at_max,omitempty"`

	// Layers and limits
	VoxelMean *bool `json:"voxel_mean,omitempty"`
	MaxChunks *int  `json:"max_chunks,omitempty"`

	// Ingestion params
	MaxRange  *float64 `json:"max_range,omitempty"`
	BatchSize *int     `json:"batch_size,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. The Get* methods provide fallback defaults for any fields
// not specified in the JSON.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.Resolution != nil && *c.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive, got %f", *c.Resolution)
	}
	if c.RegionVoxelDims != nil {
		for i, d := range *c.RegionVoxelDims {
			if d < 1 || d > 255 {
				return fmt.Errorf("region_voxel_dims[%d] must be in [1, 255], got %d", i, d)
			}
		}
	}
	probs := map[string]*float64{
		"hit_probability":                 c.HitProbability,
		"miss_probability":                c.MissProbability,
		"occupancy_threshold_probability": c.OccupancyThreshold,
		"min_node_probability":            c.MinNodeProbability,
		"max_node_probability":            c.MaxNodeProbability,
	}
	for name, p := range probs {
		if p != nil && (*p <= 0 || *p >= 1) {
			return fmt.Errorf("%s must be between 0 and 1 exclusive, got %f", name, *p)
		}
	}
	if c.HitProbability != nil && *c.HitProbability <= 0.5 {
		return fmt.Errorf("hit_probability must exceed 0.5, got %f", *c.HitProbability)
	}
	if c.MissProbability != nil && *c.MissProbability >= 0.5 {
		return fmt.Errorf("miss_probability must be below 0.5, got %f", *c.MissProbability)
	}
	if c.MaxChunks != nil && *c.MaxChunks < 0 {
		return fmt.Errorf("max_chunks must be non-negative, got %d", *c.MaxChunks)
	}
	if c.MaxRange != nil && *c.MaxRange < 0 {
		return fmt.Errorf("max_range must be non-negative, got %f", *c.MaxRange)
	}
	if c.BatchSize != nil && *c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive, got %d", *c.BatchSize)
	}
	return nil
}

// GetResolution returns the resolution value or the default.
func (c *TuningConfig) GetResolution() float64 {
	if c.Resolution == nil {
		return 0.25
	}
	return *c.Resolution
}

// GetRegionVoxelDims returns the region voxel dimensions or the default.
func (c *TuningConfig) GetRegionVoxelDims() [3]uint8 {
	if c.RegionVoxelDims == nil {
		return [3]uint8{32, 32, 32}
	}
	d := *c.RegionVoxelDims
	return [3]uint8{uint8(d[0]), uint8(d[1]), uint8(d[2])}
}

// GetHitProbability returns the hit_probability value or the default.
func (c *TuningConfig) GetHitProbability() float64 {
	if c.HitProbability == nil {
		return 0.7
	}
	return *c.HitProbability
}

// GetMissProbability returns the miss_probability value or the default.
func (c *TuningConfig) GetMissProbability() float64 {
	if c.MissProbability == nil {
		return 0.4
	}
	return *c.MissProbability
}

// GetOccupancyThreshold returns the occupancy threshold or the default.
func (c *TuningConfig) GetOccupancyThreshold() float64 {
	if c.OccupancyThreshold == nil {
		return 0.5
	}
	return *c.OccupancyThreshold
}

// GetMinNodeProbability returns the min_node_probability value or the default.
func (c *TuningConfig) GetMinNodeProbability() float64 {
	if c.MinNodeProbability == nil {
		return 0.1192
	}
	return *c.MinNodeProbability
}

// GetMaxNodeProbability returns the max_node_probability value or the default.
func (c *TuningConfig) GetMaxNodeProbability() float64 {
	if c.MaxNodeProbability == nil {
		return 0.971
	}
	return *c.MaxNodeProbability
}

// GetSaturateAtMin returns the saturate_at_min value or the default.
func (c *TuningConfig) GetSaturateAtMin() bool {
	if c.SaturateAtMinValue == nil {
		return false
	}
	return *c.SaturateAtMinValue
}

// GetSaturateAtMax returns the saturate_at_max value or the default.
func (c *TuningConfig) GetSaturateAtMax() bool {
	if c.SaturateAtMaxValue == nil {
		return false
	}
	return *c.SaturateAtMaxValue
}

// GetVoxelMean returns the voxel_mean value or the default.
func (c *TuningConfig) GetVoxelMean() bool {
	if c.VoxelMean == nil {
		return false
	}
	return *c.VoxelMean
}

// GetMaxChunks returns the max_chunks value or the default.
func (c *TuningConfig) GetMaxChunks() int {
	if c.MaxChunks == nil {
		return 0 // unbounded
	}
	return *c.MaxChunks
}

// GetMaxRange returns the max_range value or the default.
func (c *TuningConfig) GetMaxRange() float64 {
	if c.MaxRange == nil {
		return 0 // clipping disabled
	}
	return *c.MaxRange
}

// GetBatchSize returns the batch_size value or the default.
func (c *TuningConfig) GetBatchSize() int {
	if c.BatchSize == nil {
		return 4096
	}
	return *c.BatchSize
}
