package physics

/*

collision / merge resolution

runs after integration. overlapping pairs merge fully inelastically,
lower mass into higher; each body participates in at most one merge per
tick (first detected pair wins), so an overlap chain A-B-C settles over
consecutive ticks rather than in one pass. an approximation, not exact
physics.

*/

// Resolver finds overlapping live bodies and merges them in the store.
// Detection is exact pairwise below bruteUnder live bodies and a
// quadtree range query otherwise. Bodies are addressed by their ID,
// which must equal their slot in the store slice.
type Resolver struct {
	bruteUnder int
	tree       Tree
	hits       []*Body
	taken      []bool
}

func NewResolver(bruteUnder int) *Resolver {
	return &Resolver{bruteUnder: bruteUnder}
}

// Resolve merges every first-detected overlapping pair, nils the
// absorbed body's slot, and reports how many merges took place.
func (r *Resolver) Resolve(bodies []*Body) (int, error) {
	if cap(r.taken) < len(bodies) {
		r.taken = make([]bool, len(bodies))
	}
	r.taken = r.taken[:len(bodies)]
	for i := range r.taken {
		r.taken[i] = false
	}

	alive := 0
	for _, b := range bodies {
		if b != nil {
			alive++
		}
	}
	if alive < 2 {
		return 0, nil
	}

	if alive < r.bruteUnder {
		return r.resolvePairwise(bodies), nil
	}

	if err := r.tree.Rebuild(bodies); err != nil {
		return 0, err
	}
	merges := 0
	for i := 0; i < len(bodies); i++ {
		if bodies[i] == nil || r.taken[i] {
			continue
		}
		r.hits = r.tree.Overlapping(bodies[i], r.hits)
		for _, o := range r.hits {
			j := int(o.ID)
			if bodies[j] == nil || r.taken[j] {
				continue
			}
			r.merge(bodies, i, j)
			merges++
			break
		}
	}
	return merges, nil
}

func (r *Resolver) resolvePairwise(bodies []*Body) int {
	merges := 0
	for i := 0; i < len(bodies)-1; i++ {
		if bodies[i] == nil || r.taken[i] {
			continue
		}
		for j := i + 1; j < len(bodies); j++ {
			if bodies[j] == nil || r.taken[j] {
				continue
			}
			if Dist(bodies[i], bodies[j]) < bodies[i].Radius+bodies[j].Radius {
				r.merge(bodies, i, j)
				merges++
				break
			}
		}
	}
	return merges
}

// merge the pair at slots i and j: the heavier body survives, the
// lighter is absorbed and its slot nilled. ties keep the lower slot.
func (r *Resolver) merge(bodies []*Body, i, j int) {
	si, sj := i, j
	if bodies[sj].Mass > bodies[si].Mass || (bodies[sj].Mass == bodies[si].Mass && sj < si) {
		si, sj = sj, si
	}
	Combine(bodies[si], bodies[sj])
	bodies[sj] = nil
	r.taken[i] = true
	r.taken[j] = true
}
