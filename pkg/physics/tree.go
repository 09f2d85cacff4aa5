package physics

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

/*

spacial tree acceleration structure.
point quad-tree based on Barnes-Hut.
https://en.wikipedia.org/wiki/Barnes%E2%80%93Hut_simulation

nodes live in a flat arena indexed by int32 and the arena is reset and
refilled every tick, so nothing survives between ticks and children are
always appended after their parent.

*/

type nodekind uint8

// node types
const (
	external nodekind = iota
	internal
)

type quadrant uint8

// child positions (quadrants)
// low bit is X axis, high bit is Y axis
// L (0) means < center, H (1) means >= center
const (
	LL quadrant = 0b00
	LH quadrant = 0b01
	HL quadrant = 0b10
	HH quadrant = 0b11
)

// clustered input stops subdividing here; bodies that land deeper are
// treated as co-located and summed into the leaf.
const maxDepth = 64

// GeometryError reports a body whose position cannot be placed in a
// bounding square (NaN or infinite coordinate).
type GeometryError struct {
	ID  uint64
	Pos mgl64.Vec2
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("body %d has non-finite position [%v, %v]", e.ID, e.Pos[0], e.Pos[1])
}

// an axis-aligned square region.
type bound struct {
	center mgl64.Vec2
	width  float64
}

// does this bound contain point?
func (b bound) contains(point mgl64.Vec2) bool {
	half := b.width * 0.5
	return b.center[0]-half <= point[0] && point[0] <= b.center[0]+half &&
		b.center[1]-half <= point[1] && point[1] <= b.center[1]+half
}

// squared distance from point to the nearest edge of the bound,
// zero if the point is inside.
func (b bound) distSq(point mgl64.Vec2) float64 {
	half := b.width * 0.5
	dx := math.Max(math.Abs(point[0]-b.center[0])-half, 0)
	dy := math.Max(math.Abs(point[1]-b.center[1])-half, 0)
	return dx*dx + dy*dy
}

// generate the bounds for a quadrant of the parent's bounds.
// each quadrant is ±1/4 of the parent's width from the parent's center.
func quadrantBound(parent bound, q quadrant) bound {
	return bound{
		center: mgl64.Vec2{
			parent.center[0] + parent.width*0.25*(float64((q&LH)*2)-1.0),
			parent.center[1] + parent.width*0.25*(float64((q>>1)*2)-1.0),
		},
		width: parent.width * 0.5,
	}
}

// determines which quadrant (relative to midpoint) point belongs in,
// straight from the float sign bits.
func quadrantBits(midpoint, point mgl64.Vec2) quadrant {
	return quadrant((^math.Float64bits(point[0]-midpoint[0]) >> 63) |
		(^math.Float64bits(point[1]-midpoint[1])>>63)<<1)
}

type qnode struct {
	kind     nodekind
	children [4]int32 // arena indices, valid only when internal
	body     *Body    // first body in an external node
	mass     float64  // total enclosed mass
	com      mgl64.Vec2
	maxR     float64 // largest body radius under this node
	bounds   bound
	depth    int32
}

// Tree is a Barnes-Hut quadtree over the live bodies of a store. The
// zero value is ready to use; Rebuild before every query pass.
type Tree struct {
	nodes []qnode
}

// Rebuild resets the arena and refills it from the live bodies. The
// root square is the tightest square covering the body extents, widened
// slightly so no body sits exactly on the boundary. An all-nil store
// yields an empty tree.
func (t *Tree) Rebuild(bodies []*Body) error {
	t.nodes = t.nodes[:0]

	var minX, minY = math.Inf(1), math.Inf(1)
	var maxX, maxY = math.Inf(-1), math.Inf(-1)
	n := 0
	for _, b := range bodies {
		if b == nil {
			continue
		}
		if !finite(b.Pos) {
			return &GeometryError{ID: b.ID, Pos: b.Pos}
		}
		minX = math.Min(minX, b.Pos[0])
		maxX = math.Max(maxX, b.Pos[0])
		minY = math.Min(minY, b.Pos[1])
		maxY = math.Max(maxY, b.Pos[1])
		n++
	}
	if n == 0 {
		return nil
	}

	width := math.Max(maxX-minX, maxY-minY)
	if width == 0 {
		width = 1
	}
	width *= 1.0 + 1.0/256 // margin against boundary ties
	root := bound{
		center: mgl64.Vec2{(minX + maxX) / 2, (minY + maxY) / 2},
		width:  width,
	}

	t.nodes = append(t.nodes, qnode{bounds: root})
	for _, b := range bodies {
		if b == nil {
			continue
		}
		t.push(0, b)
	}
	t.aggregate()
	return nil
}

// create children nodes with appropriate bounds.
func (t *Tree) split(ni int32) {
	first := int32(len(t.nodes))
	parent := t.nodes[ni] // copy: append below may move the arena
	for q := LL; q <= HH; q++ {
		t.nodes = append(t.nodes, qnode{
			bounds: quadrantBound(parent.bounds, q),
			depth:  parent.depth + 1,
		})
	}
	for q := LL; q <= HH; q++ {
		t.nodes[ni].children[q] = first + int32(q)
	}
	t.nodes[ni].kind = internal
}

// place a body in the subtree rooted at node ni.
func (t *Tree) push(ni int32, b *Body) {
	for {
		n := &t.nodes[ni]

		if n.kind == internal {
			q := quadrantBits(n.bounds.center, b.Pos)
			ni = n.children[q]
			continue
		}

		// external (leaf) node that is currently empty
		if n.body == nil {
			n.body = b
			n.mass = b.Mass
			n.com = b.Pos
			n.maxR = b.Radius
			return
		}

		// occupied leaf at the recursion cap: fold the body into the
		// leaf's aggregate instead of subdividing forever
		if n.depth >= maxDepth {
			total := n.mass + b.Mass
			if total > 0 {
				n.com = mgl64.Vec2{
					(n.com[0]*n.mass + b.Pos[0]*b.Mass) / total,
					(n.com[1]*n.mass + b.Pos[1]*b.Mass) / total,
				}
			}
			n.mass = total
			n.maxR = math.Max(n.maxR, b.Radius)
			return
		}

		// occupied leaf: convert to an internal node by splitting, push
		// the existing body down, then retry the incoming body from here
		old := n.body
		t.nodes[ni].body = nil
		t.split(ni)
		n = &t.nodes[ni] // split may have moved the arena
		t.push(n.children[quadrantBits(n.bounds.center, old.Pos)], old)
	}
}

// bottom-up mass / center-of-mass / max-radius pass. children are
// always appended after their parent, so one reverse sweep suffices.
// a leaf already carries its own aggregate from insertion.
func (t *Tree) aggregate() {
	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := &t.nodes[i]
		if n.kind != internal {
			continue
		}
		var mass, mx, my, maxR float64
		for _, ci := range n.children {
			c := &t.nodes[ci]
			mass += c.mass
			mx += c.com[0] * c.mass
			my += c.com[1] * c.mass
			maxR = math.Max(maxR, c.maxR)
		}
		n.mass = mass
		n.maxR = maxR
		if mass > 0 {
			n.com = mgl64.Vec2{mx / mass, my / mass}
		}
	}
}

// Accelerate walks b through the tree, accumulating gravitational
// acceleration from nearby bodies and distant aggregates, with theta as
// the accuracy dial: an internal node whose side/distance ratio is
// below theta is taken as a single point mass at its center of mass.
func (t *Tree) Accelerate(b *Body, g, theta, eps float64) {
	if len(t.nodes) == 0 {
		return
	}
	t.accelerate(0, b, g, theta, eps)
}

func (t *Tree) accelerate(ni int32, b *Body, g, theta, eps float64) {
	n := &t.nodes[ni]
	if n.mass == 0 {
		return // empty leaf, or nothing but massless tracers below
	}
	if n.body == b {
		return // prevent a body interacting with itself
	}

	d := n.com.Sub(b.Pos).Len()

	switch n.kind {
	case internal:
		if d == 0 || n.bounds.width/d >= theta {
			// too close to treat the node as a single distant point,
			// recurse to children
			for _, ci := range n.children {
				t.accelerate(ci, b, g, theta, eps)
			}
			return
		}
		// far enough away, fall through and pull toward the node CoM
		fallthrough

	case external:
		pull(b, n.mass, n.com, g, eps)
	}
}

// Overlapping appends to hits every live body whose disk intersects
// b's, pruning subtrees whose bounds are farther from b than the sum of
// b's radius and the largest radius underneath. hits is reset first and
// returned for reuse.
func (t *Tree) Overlapping(b *Body, hits []*Body) []*Body {
	hits = hits[:0]
	if len(t.nodes) == 0 {
		return hits
	}
	return t.overlapping(0, b, hits)
}

func (t *Tree) overlapping(ni int32, b *Body, hits []*Body) []*Body {
	n := &t.nodes[ni]
	reach := b.Radius + n.maxR
	if n.bounds.distSq(b.Pos) > reach*reach {
		return hits
	}
	if n.kind == internal {
		for _, ci := range n.children {
			hits = t.overlapping(ci, b, hits)
		}
		return hits
	}
	if n.body != nil && n.body != b && Dist(n.body, b) < n.body.Radius+b.Radius {
		hits = append(hits, n.body)
	}
	return hits
}
