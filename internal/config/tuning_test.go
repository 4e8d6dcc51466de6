package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetResolution() != 0.25 {
		t.Errorf("GetResolution() = %f, want 0.25", cfg.GetResolution())
	}
	if cfg.GetRegionVoxelDims() != [3]uint8{32, 32, 32} {
		t.Errorf("GetRegionVoxelDims() = %v, want 32x32x32", cfg.GetRegionVoxelDims())
	}
	if cfg.GetHitProbability() != 0.7 {
		t.Errorf("GetHitProbability() = %f, want 0.7", cfg.GetHitProbability())
	}
	if cfg.GetMissProbability() != 0.4 {
		t.Errorf("GetMissProbability() = %f, want 0.4", cfg.GetMissProbability())
	}
	if cfg.GetOccupancyThreshold() != 0.5 {
		t.Errorf("GetOccupancyThreshold() = %f, want 0.5", cfg.GetOccupancyThreshold())
	}
	if cfg.GetVoxelMean() {
		t.Error("GetVoxelMean() = true, want false")
	}
	if cfg.GetMaxChunks() != 0 {
		t.Errorf("GetMaxChunks() = %d, want 0", cfg.GetMaxChunks())
	}
	if cfg.GetMaxRange() != 0 {
		t.Errorf("GetMaxRange() = %f, want 0", cfg.GetMaxRange())
	}
	if cfg.GetBatchSize() != 4096 {
		t.Errorf("GetBatchSize() = %d, want 4096", cfg.GetBatchSize())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "tuning.json")
	testJSON := `{
  "resolution": 0.1,
  "region_voxel_dims": [16, 16, 8],
  "hit_probability": 0.8,
  "miss_probability": 0.45,
  "voxel_mean": true,
  "max_chunks": 512,
  "max_range": 30.0,
  "batch_size": 1024
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetResolution() != 0.1 {
		t.Errorf("GetResolution() = %f, want 0.1", cfg.GetResolution())
	}
	if cfg.GetRegionVoxelDims() != [3]uint8{16, 16, 8} {
		t.Errorf("GetRegionVoxelDims() = %v, want 16x16x8", cfg.GetRegionVoxelDims())
	}
	if cfg.GetHitProbability() != 0.8 {
		t.Errorf("GetHitProbability() = %f, want 0.8", cfg.GetHitProbability())
	}
	if cfg.GetMissProbability() != 0.45 {
		t.Errorf("GetMissProbability() = %f, want 0.45", cfg.GetMissProbability())
	}
	if !cfg.GetVoxelMean() {
		t.Error("GetVoxelMean() = false, want true")
	}
	if cfg.GetMaxChunks() != 512 {
		t.Errorf("GetMaxChunks() = %d, want 512", cfg.GetMaxChunks())
	}
	if cfg.GetMaxRange() != 30.0 {
		t.Errorf("GetMaxRange() = %f, want 30", cfg.GetMaxRange())
	}
	if cfg.GetBatchSize() != 1024 {
		t.Errorf("GetBatchSize() = %d, want 1024", cfg.GetBatchSize())
	}

	// Omitted fields fall back to defaults.
	if cfg.GetOccupancyThreshold() != 0.5 {
		t.Errorf("GetOccupancyThreshold() = %f, want default 0.5", cfg.GetOccupancyThreshold())
	}
	if cfg.GetSaturateAtMax() {
		t.Error("GetSaturateAtMax() = true, want default false")
	}
}

func TestLoadTuningConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tuning.yaml")
		if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := LoadTuningConfig(path)
		if err == nil || !strings.Contains(err.Error(), ".json extension") {
			t.Errorf("err = %v, want extension error", err)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTuningConfig(path); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestTuningConfigValidate(t *testing.T) {
	ptrF := func(v float64) *float64 { return &v }
	ptrI := func(v int) *int { return &v }

	tests := []struct {
		name    string
		cfg     TuningConfig
		wantErr bool
	}{
		{"empty is valid", TuningConfig{}, false},
		{"negative resolution", TuningConfig{Resolution: ptrF(-0.1)}, true},
		{"zero resolution", TuningConfig{Resolution: ptrF(0)}, true},
		{"hit below half", TuningConfig{HitProbability: ptrF(0.4)}, true},
		{"miss above half", TuningConfig{MissProbability: ptrF(0.6)}, true},
		{"probability out of range", TuningConfig{MaxNodeProbability: ptrF(1.5)}, true},
		{"negative max chunks", TuningConfig{MaxChunks: ptrI(-1)}, true},
		{"zero batch size", TuningConfig{BatchSize: ptrI(0)}, true},
		{"dims out of range", TuningConfig{RegionVoxelDims: &[3]int{0, 8, 8}}, true},
		{"valid overrides", TuningConfig{
			Resolution:     ptrF(0.5),
			HitProbability: ptrF(0.9),
			MaxChunks:      ptrI(100),
		}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
