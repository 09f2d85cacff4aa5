package physics

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

/*

bodies and the 2-body physics primitives

*/

// G = 6.67408 × 10-11 m3 kg-1 s-2
//   = 6.67408e-11 m³/(kg·s²)
const G = 6.67408e-11

// Body is a point mass moving in the plane. ID is the body's slot in the
// store slice and never changes; a body removed by a merge leaves a nil
// slot behind.
type Body struct {
	ID     uint64
	Mass   float64 // kg
	Radius float64 // m
	Pos    mgl64.Vec2
	Vel    mgl64.Vec2

	acc mgl64.Vec2 // acceleration accumulated for the current step
}

// update body velocity and position from the accumulated acceleration,
// then reset it. velocity first (semi-implicit Euler) so orbits hold
// their shape over long runs.
func (b *Body) Update(dt float64) {
	b.Vel = b.Vel.Add(b.acc.Mul(dt))
	b.Pos = b.Pos.Add(b.Vel.Mul(dt))
	b.acc = mgl64.Vec2{}
}

// ClampAccel limits the accumulated acceleration magnitude to limit.
// Reports whether clamping occurred, so the caller can count
// under-softened encounters instead of letting one pair blow up a tick.
func (b *Body) ClampAccel(limit float64) bool {
	m := b.acc.Len()
	if m <= limit || m == 0 {
		return false
	}
	b.acc = b.acc.Mul(limit / m)
	return true
}

// Finite reports whether position and velocity hold only finite values.
func (b *Body) Finite() bool {
	return finite(b.Pos) && finite(b.Vel)
}

func finite(v mgl64.Vec2) bool {
	return !math.IsNaN(v[0]) && !math.IsInf(v[0], 0) &&
		!math.IsNaN(v[1]) && !math.IsInf(v[1], 0)
}

func (b Body) String() string {
	return fmt.Sprintf("m: %.4f\np: [%.2f, %.2f]\nv: [%.2f, %.2f]\n",
		b.Mass, b.Pos[0], b.Pos[1], b.Vel[0], b.Vel[1])
}

// distance between two bodies.
func Dist(a, b *Body) float64 {
	return b.Pos.Sub(a.Pos).Len()
}

// adds to body a the gravitational acceleration due to a point mass m at
// pos. eps is the softening length: the force law uses d²+ε² so the
// magnitude stays bounded as d→0.
func pull(a *Body, m float64, pos mgl64.Vec2, g, eps float64) {
	delta := pos.Sub(a.Pos)
	d := delta.Len()
	if d == 0 {
		return // coincident, no defined direction
	}
	mag := g * m / (d*d + eps*eps)
	a.acc = a.acc.Add(delta.Mul(mag / d))
}

// PairwiseAccelerate accumulates exact O(n²) gravitational acceleration
// on every live body. Used below the tree cutoff for precision parity.
func PairwiseAccelerate(bodies []*Body, g, eps float64) {
	for i := 0; i < len(bodies)-1; i++ {
		if bodies[i] == nil {
			continue
		}
		for j := i + 1; j < len(bodies); j++ {
			if bodies[j] == nil {
				continue
			}
			pull(bodies[i], bodies[j].Mass, bodies[j].Pos, g, eps)
			pull(bodies[j], bodies[i].Mass, bodies[i].Pos, g, eps)
		}
	}
}

// calculates the final velocity of a and b in a perfectly inelastic collision.
func inelasticCollision(ma, va, mb, vb float64) (vc float64) {
	return (ma*va + mb*vb) / (ma + mb)
}

// Combine merges b into a: mass summed, velocity by momentum
// conservation, position at the pair's barycenter, radius grown so disk
// area is conserved (area ∝ mass in the plane, radius ∝ √mass).
func Combine(a, b *Body) {
	ma, mb := a.Mass, b.Mass
	if ma+mb > 0 {
		a.Pos = mgl64.Vec2{
			(ma*a.Pos[0] + mb*b.Pos[0]) / (ma + mb),
			(ma*a.Pos[1] + mb*b.Pos[1]) / (ma + mb),
		}
		a.Vel = mgl64.Vec2{
			inelasticCollision(ma, a.Vel[0], mb, b.Vel[0]),
			inelasticCollision(ma, a.Vel[1], mb, b.Vel[1]),
		}
	}
	a.Mass = ma + mb
	a.Radius = math.Hypot(a.Radius, b.Radius)
	a.acc = a.acc.Add(b.acc)
}

// disk area from radius
func area(radius float64) float64 {
	return math.Pi * radius * radius
}

// disk radius from area
func radius(area float64) float64 {
	return math.Sqrt(area / math.Pi)
}

// RadiusMassDensity returns the disk radius of a body with the given
// mass and area density.
func RadiusMassDensity(mass, density float64) float64 {
	return math.Sqrt(mass / (math.Pi * density))
}
