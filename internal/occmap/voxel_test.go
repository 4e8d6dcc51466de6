package occmap

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestVoxelMeanTracking(t *testing.T) {
	m := newTestMap(t, func(c *MapConfig) {
		c.Resolution = 0.5
		c.Flags |= MapVoxelMean
	})

	rng := rand.New(rand.NewSource(7))
	centre := m.VoxelCentreGlobal(m.VoxelKey(r3.Vec{X: 1.1, Y: 1.1, Z: 1.1}))
	var sum r3.Vec
	const samples = 50
	rays := make([]r3.Vec, 0, 2*samples)
	for i := 0; i < samples; i++ {
		p := r3.Add(centre, r3.Vec{
			X: (rng.Float64() - 0.5) * m.Resolution(),
			Y: (rng.Float64() - 0.5) * m.Resolution(),
			Z: (rng.Float64() - 0.5) * m.Resolution(),
		})
		sum = r3.Add(sum, p)
		rays = append(rays, r3.Vec{}, p)
	}
	if _, err := m.IntegrateRays(rays, RfExcludeRay); err != nil {
		t.Fatalf("IntegrateRays: %v", err)
	}

	v := voxelAt(t, m, centre)
	if v.MeanCount() != samples {
		t.Fatalf("mean count %d, want %d", v.MeanCount(), samples)
	}
	want := r3.Scale(1.0/samples, sum)
	if d := r3.Norm(r3.Sub(v.Position(), want)); d > m.Resolution()/1e2 {
		t.Errorf("position %v, want %v (error %v)", v.Position(), want, d)
	}
}

func TestVoxelSetPosition(t *testing.T) {
	m := newTestMap(t, func(c *MapConfig) {
		c.Resolution = 0.5
		c.Flags |= MapVoxelMean
	})
	target := r3.Vec{X: 1.201, Y: 1.09, Z: 1.25}
	v, err := m.Voxel(m.VoxelKey(target), true)
	if err != nil {
		t.Fatalf("Voxel: %v", err)
	}
	v.SetPosition(target)
	if v.MeanCount() != 1 {
		t.Errorf("mean count %d, want 1", v.MeanCount())
	}
	if d := r3.Norm(r3.Sub(v.Position(), target)); d > m.Resolution()/1e3 {
		t.Errorf("position %v, want %v (error %v)", v.Position(), target, d)
	}
}

func TestVoxelPositionWithoutMeanLayer(t *testing.T) {
	m := newTestMap(t, nil)
	p := r3.Vec{X: 0.6, Y: 0.6, Z: 0.6}
	v, err := m.Voxel(m.VoxelKey(p), true)
	if err != nil {
		t.Fatalf("Voxel: %v", err)
	}
	v.SetValue(1.0)
	if got, want := v.Position(), v.CentreGlobal(); got != want {
		t.Errorf("position %v, want centre %v", got, want)
	}
	v.SetPosition(p) // no-op without the layer
	if got := v.Position(); got != v.CentreGlobal() {
		t.Errorf("position %v after SetPosition without layer", got)
	}
}

func TestInvalidVoxelReadsUnobserved(t *testing.T) {
	m := newTestMap(t, nil)
	v, err := m.Voxel(m.VoxelKey(r3.Vec{X: 5}), false)
	if err != nil {
		t.Fatalf("Voxel: %v", err)
	}
	if v.Valid() {
		t.Fatal("voxel unexpectedly backed by a chunk")
	}
	if !v.IsUnobserved() {
		t.Errorf("value %v, want unobserved", v.Value())
	}
	if p := v.Probability(); p != 0.5 {
		t.Errorf("probability %v, want 0.5", p)
	}
	v.SetValue(1.0) // no-op
	if m.ChunkCount() != 0 {
		t.Error("write through invalid handle allocated a chunk")
	}
}

func TestAddRemoveVoxelMeanLayer(t *testing.T) {
	m := newTestMap(t, func(c *MapConfig) { c.Resolution = 0.5 })
	sample := r3.Vec{X: 1.15, Y: 1.15, Z: 1.15}
	rays := []r3.Vec{{X: 0.1, Y: 0.1, Z: 0.1}, sample}
	if _, err := m.IntegrateRays(rays, RfDefault); err != nil {
		t.Fatalf("IntegrateRays: %v", err)
	}
	valueBefore := voxelAt(t, m, sample).Value()

	m.AddVoxelMeanLayer()
	if m.Layout().LayerIndex(LayerMean) < 0 {
		t.Fatal("mean layer missing after add")
	}
	v := voxelAt(t, m, sample)
	if v.Value() != valueBefore {
		t.Errorf("occupancy value changed across reshape: %v -> %v", valueBefore, v.Value())
	}
	if v.MeanCount() != 0 {
		t.Errorf("fresh mean layer has count %d", v.MeanCount())
	}
	if v.Position() != v.CentreGlobal() {
		t.Errorf("empty mean reports %v, want centre", v.Position())
	}

	// New samples populate the mean.
	if _, err := m.IntegrateRays(rays, RfExcludeRay); err != nil {
		t.Fatalf("IntegrateRays: %v", err)
	}
	v = voxelAt(t, m, sample)
	if v.MeanCount() != 1 {
		t.Fatalf("mean count %d, want 1", v.MeanCount())
	}
	if d := r3.Norm(r3.Sub(v.Position(), sample)); d > m.Resolution()/1e2 {
		t.Errorf("position %v, want near %v", v.Position(), sample)
	}

	stampBefore := m.Stamp()
	m.RemoveVoxelMeanLayer()
	if m.Layout().LayerIndex(LayerMean) >= 0 {
		t.Fatal("mean layer still present after remove")
	}
	v = voxelAt(t, m, sample)
	if IsUnobserved(v.Value()) {
		t.Error("occupancy lost across layer removal")
	}
	if v.Position() != v.CentreGlobal() {
		t.Errorf("position %v after removal, want centre", v.Position())
	}
	if m.Stamp() <= stampBefore {
		t.Error("layer removal did not stamp the map")
	}

	// Idempotent either way.
	m.RemoveVoxelMeanLayer()
	m.AddVoxelMeanLayer()
	m.AddVoxelMeanLayer()
	if m.Layout().NumLayers() != 2 {
		t.Errorf("layout has %d layers, want 2", m.Layout().NumLayers())
	}
}

func TestOccupancyTypeAndExtractCloud(t *testing.T) {
	m := newTestMap(t, func(c *MapConfig) {
		c.Flags |= MapVoxelMean
	})
	rays := []r3.Vec{
		{X: 0.125, Y: 0.125, Z: 0.125},
		{X: 1.1, Y: 0.125, Z: 0.125},
	}
	if _, err := m.IntegrateRays(rays, RfDefault); err != nil {
		t.Fatalf("IntegrateRays: %v", err)
	}

	if got := m.OccupancyType(UnobservedValue()); got != Unobserved {
		t.Errorf("sentinel classified as %v", got)
	}
	if got := m.OccupancyType(m.MissValue()); got != Free {
		t.Errorf("miss value classified as %v", got)
	}
	if got := m.OccupancyType(m.HitValue()); got != Occupied {
		t.Errorf("hit value classified as %v", got)
	}

	if n := m.OccupiedCount(); n != 1 {
		t.Fatalf("occupied count %d, want 1", n)
	}
	points := m.ExtractCloud(nil)
	if len(points) != 1 {
		t.Fatalf("extracted %d points, want 1", len(points))
	}
	if d := r3.Norm(r3.Sub(points[0], rays[1])); d > m.Resolution()/1e2 {
		t.Errorf("extracted point %v, want near sample %v", points[0], rays[1])
	}
}

func TestConicalRayPattern(t *testing.T) {
	axis := r3.Vec{Z: 1}
	coneAngle := 15 * math.Pi / 180
	rayLength := 5.0
	p := NewConicalPattern(axis, coneAngle, rayLength, 5*math.Pi/180)

	if p.RayCount() < 4 {
		t.Fatalf("pattern has only %d rays", p.RayCount())
	}
	rays := p.Rays()
	for i := 0; i+1 < len(rays); i += 2 {
		start, end := rays[i], rays[i+1]
		if start != (r3.Vec{}) {
			t.Errorf("ray %d starts at %v, want origin", i/2, start)
		}
		if d := math.Abs(r3.Norm(end) - rayLength); d > 1e-9 {
			t.Errorf("ray %d length error %v", i/2, d)
		}
		cos := r3.Dot(r3.Unit(end), axis)
		if angle := math.Acos(math.Min(1, cos)); angle > coneAngle+1e-9 {
			t.Errorf("ray %d deflected %v rad, beyond cone angle %v", i/2, angle, coneAngle)
		}
	}

	// Replayed against a pose, rays integrate like any batch.
	m := newTestMap(t, nil)
	pose := r3.Vec{X: 3, Y: 2, Z: 1}
	batch := p.TransformedRays(nil, pose, r3.NewRotation(0, r3.Vec{Z: 1}))
	n, err := m.IntegrateRays(batch, RfDefault)
	if err != nil {
		t.Fatalf("IntegrateRays: %v", err)
	}
	if n != p.RayCount() {
		t.Errorf("integrated %d rays, want %d", n, p.RayCount())
	}
	if m.OccupiedCount() == 0 {
		t.Error("no voxels occupied by pattern")
	}
}
