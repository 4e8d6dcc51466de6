package occmap

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// RayPattern is a fixed set of rays in the sensor frame, replayed against
// a moving sensor pose. Rays are stored as (start, end) pairs relative to
// the sensor origin.
type RayPattern struct {
	rays []r3.Vec
}

// AddRay appends one ray in the sensor frame.
func (p *RayPattern) AddRay(start, end r3.Vec) {
	p.rays = append(p.rays, start, end)
}

// RayCount returns the number of rays in the pattern.
func (p *RayPattern) RayCount() int { return len(p.rays) / 2 }

// Rays returns the pattern's (start, end) pairs in the sensor frame.
func (p *RayPattern) Rays() []r3.Vec { return p.rays }

// TransformedRays appends the pattern's rays, rotated then translated into
// the global frame, to dst and returns the extended slice. The result
// feeds RayMapper.IntegrateRays directly.
func (p *RayPattern) TransformedRays(dst []r3.Vec, translation r3.Vec, rotation r3.Rotation) []r3.Vec {
	for _, v := range p.rays {
		dst = append(dst, r3.Add(translation, rotation.Rotate(v)))
	}
	return dst
}

// perpendicularTo returns an arbitrary unit vector perpendicular to v.
func perpendicularTo(v r3.Vec) r3.Vec {
	ref := r3.Vec{X: 1}
	if math.Abs(v.X) > math.Abs(v.Y) && math.Abs(v.X) > math.Abs(v.Z) {
		ref = r3.Vec{Y: 1}
	}
	return r3.Unit(r3.Cross(v, ref))
}

// NewConicalPattern builds a cone of rays around axis: a central ray plus
// rings of rays at increasing deflection up to coneAngle, each ring
// subdivided so neighbouring rays stay about angularStep apart. All rays
// start at the sensor origin and extend rayLength metres.
func NewConicalPattern(axis r3.Vec, coneAngle, rayLength, angularStep float64) *RayPattern {
	p := &RayPattern{}
	axis = r3.Unit(axis)
	origin := r3.Vec{}
	p.AddRay(origin, r3.Scale(rayLength, axis))

	deflectionAxis := perpendicularTo(axis)
	for deflection := angularStep; deflection <= coneAngle; deflection += angularStep {
		deflected := r3.NewRotation(deflection, deflectionAxis).Rotate(axis)
		circumference := 2 * math.Pi * math.Sin(deflection)
		segments := int(math.Ceil(circumference / angularStep))
		if segments < 1 {
			segments = 1
		}
		for s := 0; s < segments; s++ {
			azimuth := 2 * math.Pi * float64(s) / float64(segments)
			dir := r3.NewRotation(azimuth, axis).Rotate(deflected)
			p.AddRay(origin, r3.Scale(rayLength, dir))
		}
	}
	return p
}
