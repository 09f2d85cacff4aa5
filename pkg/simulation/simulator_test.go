package simulation

import (
	"context"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/LindonKelley/newtonian-gravity/pkg/physics"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.G = 1
	cfg.Dt = 0.01
	cfg.Softening = 1e-3
	cfg.Workers = 2
	return cfg
}

func momentum(snap Snapshot) mgl64.Vec2 {
	var p mgl64.Vec2
	for _, b := range snap.Bodies {
		p = p.Add(b.Vel.Mul(b.Mass))
	}
	return p
}

func TestConfigValidation(t *testing.T) {
	cases := map[string]func(*Config){
		"G":            func(c *Config) { c.G = 0 },
		"Dt":           func(c *Config) { c.Dt = -1 },
		"Softening":    func(c *Config) { c.Softening = 0 },
		"Theta":        func(c *Config) { c.Theta = -0.1 },
		"AccelLimit":   func(c *Config) { c.AccelLimit = 0 },
		"StepsPerTick": func(c *Config) { c.StepsPerTick = 0 },
		"Workers":      func(c *Config) { c.Workers = 0 },
	}
	for field, breakit := range cases {
		t.Run(field, func(t *testing.T) {
			cfg := testConfig()
			breakit(&cfg)
			_, err := New(cfg, nil)
			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, field, cerr.Field)
		})
	}
}

func TestRejectsBadInitialConditions(t *testing.T) {
	cfg := testConfig()

	_, err := New(cfg, []Particle{{Pos: mgl64.Vec2{math.NaN(), 0}, Mass: 1, Radius: 1}})
	var gerr *physics.GeometryError
	assert.ErrorAs(t, err, &gerr)

	_, err = New(cfg, []Particle{{Mass: -1, Radius: 1}})
	assert.Error(t, err)

	_, err = New(cfg, []Particle{{Mass: 1, Radius: 0}})
	assert.Error(t, err)
}

func TestEmptySimulation(t *testing.T) {
	sim, err := New(testConfig(), nil)
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		require.NoError(t, sim.Step())
		assert.Empty(t, sim.Snapshot().Bodies)
	}
	assert.Equal(t, uint64(25), sim.Tick())
}

// a lone body never accelerates (no self-force) and coasts in a
// straight line at constant velocity.
func TestSingletonStraightLine(t *testing.T) {
	cfg := testConfig()
	cfg.Dt = 0.5

	sim, err := New(cfg, []Particle{{
		Pos: mgl64.Vec2{1, 2}, Vel: mgl64.Vec2{3, -1}, Mass: 5, Radius: 1,
	}})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, sim.Step())
	}

	b := sim.Snapshot().Bodies[0]
	assert.Equal(t, mgl64.Vec2{3, -1}, b.Vel)
	assert.InDelta(t, 1+3*0.5*10, b.Pos[0], 1e-12)
	assert.InDelta(t, 2-1*0.5*10, b.Pos[1], 1e-12)
}

// pure gravity with no merges conserves total momentum.
func TestMomentumConservation(t *testing.T) {
	cfg := testConfig()
	cfg.Merge = false

	initial := make([]Particle, 0, 8)
	for i := 0; i < 8; i++ {
		angle := 2 * math.Pi * float64(i) / 8
		initial = append(initial, Particle{
			Pos:    mgl64.Vec2{10 * math.Cos(angle), 10 * math.Sin(angle)},
			Vel:    mgl64.Vec2{-math.Sin(angle), math.Cos(angle)},
			Mass:   1 + float64(i%3),
			Radius: 0.1,
		})
	}

	sim, err := New(cfg, initial)
	require.NoError(t, err)
	before := momentum(sim.Snapshot())

	for i := 0; i < 200; i++ {
		require.NoError(t, sim.Step())
	}
	after := momentum(sim.Snapshot())

	assert.True(t, scalar.EqualWithinAbs(before[0], after[0], 1e-9), "px %v vs %v", before[0], after[0])
	assert.True(t, scalar.EqualWithinAbs(before[1], after[1], 1e-9), "py %v vs %v", before[1], after[1])
}

// two equal masses on a circular orbit return to their starting
// relative geometry after one period, which is what semi-implicit Euler
// buys over explicit Euler.
func TestTwoBodyOrbitStability(t *testing.T) {
	const m, sep = 1.0, 2.0

	cfg := testConfig()
	cfg.Merge = false
	cfg.Softening = 1e-6

	// circular orbit about the barycenter: v² / (sep/2) = a
	a := cfg.G * m / (sep*sep + cfg.Softening*cfg.Softening)
	v := math.Sqrt(a * sep / 2)
	period := 2 * math.Pi * (sep / 2) / v
	steps := 20000
	cfg.Dt = period / float64(steps)

	sim, err := New(cfg, []Particle{
		{Pos: mgl64.Vec2{sep / 2, 0}, Vel: mgl64.Vec2{0, v}, Mass: m, Radius: 0.01},
		{Pos: mgl64.Vec2{-sep / 2, 0}, Vel: mgl64.Vec2{0, -v}, Mass: m, Radius: 0.01},
	})
	require.NoError(t, err)

	for i := 0; i < steps; i++ {
		require.NoError(t, sim.Step())
	}

	snap := sim.Snapshot()
	rel := snap.Bodies[0].Pos.Sub(snap.Bodies[1].Pos)
	assert.InDelta(t, sep, rel[0], 0.05*sep, "relative x after one period")
	assert.InDelta(t, 0, rel[1], 0.05*sep, "relative y after one period")
}

// trajectories must not depend on the force-pass fan-out.
func TestParallelMatchesSequential(t *testing.T) {
	initial := make([]Particle, 0, 48)
	for i := 0; i < 48; i++ {
		angle := 2 * math.Pi * float64(i) / 48
		r := 5 + float64(i%7)
		initial = append(initial, Particle{
			Pos:    mgl64.Vec2{r * math.Cos(angle), r * math.Sin(angle)},
			Vel:    mgl64.Vec2{-math.Sin(angle) * 0.3, math.Cos(angle) * 0.3},
			Mass:   1 + float64(i%5)/2,
			Radius: 0.05,
		})
	}

	run := func(workers int) Snapshot {
		cfg := testConfig()
		cfg.Workers = workers
		cfg.BruteForceUnder = 0 // force the tree path
		sim, err := New(cfg, initial)
		require.NoError(t, err)
		for i := 0; i < 50; i++ {
			require.NoError(t, sim.Step())
		}
		return sim.Snapshot()
	}

	seq := run(1)
	par := run(4)
	require.Equal(t, len(seq.Bodies), len(par.Bodies))
	for i := range seq.Bodies {
		assert.Equal(t, seq.Bodies[i].Pos, par.Bodies[i].Pos, "body %d", i)
		assert.Equal(t, seq.Bodies[i].Vel, par.Bodies[i].Vel, "body %d", i)
	}
}

func TestMergeDuringStep(t *testing.T) {
	cfg := testConfig()

	sim, err := New(cfg, []Particle{
		{Pos: mgl64.Vec2{0, 0}, Vel: mgl64.Vec2{1, 0}, Mass: 2, Radius: 1},
		{Pos: mgl64.Vec2{0.5, 0}, Vel: mgl64.Vec2{0, 2}, Mass: 1, Radius: 1},
	})
	require.NoError(t, err)
	require.NoError(t, sim.Step())

	snap := sim.Snapshot()
	require.Len(t, snap.Bodies, 1)
	assert.Equal(t, 3.0, snap.Bodies[0].Mass)
	assert.InDelta(t, 2.0/3.0, snap.Bodies[0].Vel[0], 1e-3)
	assert.InDelta(t, 2.0/3.0, snap.Bodies[0].Vel[1], 1e-3)
	assert.Equal(t, 1, sim.Alive())
}

// a snapshot is a copy: scribbling on it must not leak into the store.
func TestSnapshotIsolation(t *testing.T) {
	sim, err := New(testConfig(), []Particle{{Mass: 1, Radius: 1, Pos: mgl64.Vec2{7, 7}}})
	require.NoError(t, err)

	snap := sim.Snapshot()
	snap.Bodies[0].Pos = mgl64.Vec2{-1, -1}
	snap.Bodies[0].Mass = 99

	again := sim.Snapshot()
	assert.Equal(t, mgl64.Vec2{7, 7}, again.Bodies[0].Pos)
	assert.Equal(t, 1.0, again.Bodies[0].Mass)
}

func TestAccelerationClampCounted(t *testing.T) {
	cfg := testConfig()
	cfg.Merge = false
	cfg.Softening = 1e-9
	cfg.AccelLimit = 1e-3 // absurdly low so the near-contact pair trips it

	sim, err := New(cfg, []Particle{
		{Pos: mgl64.Vec2{0, 0}, Mass: 1, Radius: 0.01},
		{Pos: mgl64.Vec2{1e-6, 0}, Mass: 1, Radius: 0.01},
	})
	require.NoError(t, err)
	require.NoError(t, sim.Step())

	assert.Equal(t, 2, sim.Clamped())
	assert.Equal(t, 2, sim.Snapshot().Clamped)
	for _, b := range sim.Snapshot().Bodies {
		assert.False(t, math.IsNaN(b.Pos[0]) || math.IsInf(b.Pos[0], 0))
	}
}

func TestRunEmitsSnapshotsAndHonorsCancel(t *testing.T) {
	sim, err := New(testConfig(), []Particle{{Mass: 1, Radius: 1, Vel: mgl64.Vec2{1, 0}}})
	require.NoError(t, err)

	frames := make(chan Snapshot, 16)
	require.NoError(t, sim.Run(context.Background(), 10, frames))
	require.Len(t, frames, 10)
	first := <-frames
	assert.Equal(t, uint64(1), first.Tick)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = sim.Run(ctx, 5, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(10), sim.Tick(), "no partial tick after cancellation")
}

func TestStepsPerTick(t *testing.T) {
	cfg := testConfig()
	cfg.Dt = 0.25
	cfg.StepsPerTick = 4

	sim, err := New(cfg, []Particle{{Mass: 1, Radius: 1, Vel: mgl64.Vec2{1, 0}}})
	require.NoError(t, err)
	require.NoError(t, sim.Step())

	// one tick covers StepsPerTick·Dt of simulated time
	assert.Equal(t, uint64(1), sim.Tick())
	assert.InDelta(t, 1.0, sim.Snapshot().Bodies[0].Pos[0], 1e-12)
}
