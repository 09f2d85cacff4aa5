// Package simulation drives the gravity engine: it owns the body store,
// advances it tick by tick, and hands consistent read-only snapshots to
// whatever consumes them.
package simulation

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/LindonKelley/newtonian-gravity/pkg/physics"
)

// Particle is the external record for one body, used both for initial
// conditions and for snapshot output. ID is assigned by the simulator;
// it is ignored on input.
type Particle struct {
	ID     uint64
	Pos    mgl64.Vec2
	Vel    mgl64.Vec2
	Mass   float64
	Radius float64
}

// Snapshot is a read-only copy of the live bodies after a tick,
// consistent with itself: ticks never overlap snapshot emission.
type Snapshot struct {
	Tick    uint64
	Bodies  []Particle
	Clamped int // bodies whose acceleration hit the sanity cap this tick
}

// Simulator advances a set of point masses under mutual gravity using a
// Barnes-Hut quadtree and semi-implicit Euler.
type Simulator struct {
	cfg      Config
	bodies   []*physics.Body
	tree     physics.Tree
	resolver *physics.Resolver
	tick     uint64
	clamped  int
}

// New validates cfg and the initial conditions and builds a simulator.
// Zero particles is legal and produces an empty simulation. Negative
// mass, non-positive radius, or a non-finite position or velocity is
// rejected. Zero-mass bodies are accepted and behave as tracers: they
// feel gravity but exert none.
func New(cfg Config, initial []Particle) (*Simulator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	bodies := make([]*physics.Body, len(initial))
	for i, p := range initial {
		b := &physics.Body{
			ID:     uint64(i),
			Mass:   p.Mass,
			Radius: p.Radius,
			Pos:    p.Pos,
			Vel:    p.Vel,
		}
		if !b.Finite() {
			return nil, fmt.Errorf("initial particle %d: %w",
				i, &physics.GeometryError{ID: uint64(i), Pos: p.Pos})
		}
		if p.Mass < 0 {
			return nil, fmt.Errorf("initial particle %d: negative mass %v", i, p.Mass)
		}
		if !(p.Radius > 0) {
			return nil, fmt.Errorf("initial particle %d: non-positive radius %v", i, p.Radius)
		}
		bodies[i] = b
	}

	return &Simulator{
		cfg:      cfg,
		bodies:   bodies,
		resolver: physics.NewResolver(cfg.BruteForceUnder),
	}, nil
}

// Alive returns the number of live bodies.
func (s *Simulator) Alive() int {
	n := 0
	for _, b := range s.bodies {
		if b != nil {
			n++
		}
	}
	return n
}

// Tick returns the number of completed ticks.
func (s *Simulator) Tick() uint64 { return s.tick }

// Clamped returns how many acceleration clamps fired during the last
// tick; a nonzero value usually means the softening length is too small
// for the configured Dt.
func (s *Simulator) Clamped() int { return s.clamped }

// Step advances the simulation one tick: StepsPerTick sub-steps of
// rebuild tree → accumulate forces → integrate → resolve merges. All
// accelerations within a sub-step come from pre-step positions.
func (s *Simulator) Step() error {
	s.clamped = 0
	for iter := 0; iter < s.cfg.StepsPerTick; iter++ {
		if err := s.substep(); err != nil {
			return fmt.Errorf("tick %d: %w", s.tick, err)
		}
	}
	s.tick++
	return nil
}

func (s *Simulator) substep() error {
	alive := s.Alive()
	if alive == 0 {
		return nil
	}

	// 1) accumulate gravitational acceleration
	if alive < s.cfg.BruteForceUnder {
		physics.PairwiseAccelerate(s.bodies, s.cfg.G, s.cfg.Softening)
	} else {
		if err := s.tree.Rebuild(s.bodies); err != nil {
			return err
		}
		s.accelerateParallel()
	}

	// 2) cap pathological accelerations instead of crashing the tick
	for _, b := range s.bodies {
		if b != nil && b.ClampAccel(s.cfg.AccelLimit) {
			s.clamped++
		}
	}

	// 3) update positions/velocities
	for _, b := range s.bodies {
		if b != nil {
			b.Update(s.cfg.Dt)
		}
	}

	// 4) find and process any collisions that took place
	if s.cfg.Merge {
		if _, err := s.resolver.Resolve(s.bodies); err != nil {
			return err
		}
	}
	return nil
}

// fan the force pass out over index ranges. the tree is immutable for
// the phase and every worker writes only its own bodies' accumulators,
// so the WaitGroup is the only synchronization needed.
func (s *Simulator) accelerateParallel() {
	groups := s.cfg.Workers
	if groups > len(s.bodies) {
		groups = len(s.bodies)
	}
	size := (len(s.bodies) + groups - 1) / groups
	wg := sync.WaitGroup{}
	for lo := 0; lo < len(s.bodies); lo += size {
		hi := lo + size
		if hi > len(s.bodies) {
			hi = len(s.bodies)
		}
		wg.Add(1)
		go func(group []*physics.Body) {
			defer wg.Done()
			for _, b := range group {
				if b == nil {
					continue
				}
				s.tree.Accelerate(b, s.cfg.G, s.cfg.Theta, s.cfg.Softening)
			}
		}(s.bodies[lo:hi])
	}
	wg.Wait()
}

// Snapshot copies the live bodies in store order. The copy shares
// nothing with the simulator, so consumers may hold it across ticks.
func (s *Simulator) Snapshot() Snapshot {
	out := Snapshot{
		Tick:    s.tick,
		Bodies:  make([]Particle, 0, len(s.bodies)),
		Clamped: s.clamped,
	}
	for _, b := range s.bodies {
		if b == nil {
			continue
		}
		out.Bodies = append(out.Bodies, Particle{
			ID:     b.ID,
			Pos:    b.Pos,
			Vel:    b.Vel,
			Mass:   b.Mass,
			Radius: b.Radius,
		})
	}
	return out
}

// Run advances the simulation the given number of ticks, sending a
// snapshot after each one when frames is non-nil. Cancellation is
// tick-granular: the context is checked between ticks, never mid-tick,
// so every emitted snapshot reflects a fully consistent state.
func (s *Simulator) Run(ctx context.Context, ticks int, frames chan<- Snapshot) error {
	for i := 0; i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Step(); err != nil {
			return err
		}
		if frames != nil {
			select {
			case frames <- s.Snapshot():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
