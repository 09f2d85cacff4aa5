// implements a simple 2D n-body simulation demo around the engine in
// pkg/physics and pkg/simulation. everything here (initial conditions,
// progress output, recording) is an external collaborator of the core.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/gcfg.v1"

	"github.com/LindonKelley/newtonian-gravity/pkg/record"
	"github.com/LindonKelley/newtonian-gravity/pkg/simulation"
)

// iniFile mirrors the optional gcfg config file, e.g.
//
//	[physics]
//	g = 1.0
//	dt = 0.01
//	softening = 0.05
//	theta = 0.7
//
//	[run]
//	bodies = 5000
//	ticks = 2000
type iniFile struct {
	Physics struct {
		G               float64
		Dt              float64
		Softening       float64
		Theta           float64
		AccelLimit      float64
		StepsPerTick    int
		BruteForceUnder int
	}
	Run struct {
		Bodies  int
		Ticks   int
		Workers int
	}
}

func main() {
	configPath := flag.String("config", "", "gcfg config file")
	numbodies := flag.Int("n", 1000, "number of bodies")
	ticks := flag.Int("ticks", 1000, "number of ticks to simulate")
	seed := flag.Int64("seed", 23, "initial condition seed")
	dbFilename := flag.String("db", "", "record frames to this sqlite file")
	stateFilename := flag.String("state", "", "simulation state to load")
	stateSave := flag.Bool("save", false, "set to save the final simulation state")
	nocollision := flag.Bool("nocollision", false, "do not perform collision merging")
	flag.Parse()

	cfg := simulation.DefaultConfig()
	cfg.G = 1
	cfg.Dt = 0.005
	cfg.Softening = 0.5
	cfg.StepsPerTick = 4
	nbodies, nticks := *numbodies, *ticks
	if *configPath != "" {
		var ini iniFile
		if err := gcfg.ReadFileInto(&ini, *configPath); err != nil {
			log.Fatalf("reading %s: %v", *configPath, err)
		}
		applyIni(&cfg, &nbodies, &nticks, ini)
	}
	cfg.Merge = !*nocollision

	var initial []simulation.Particle
	if *stateFilename != "" {
		snap, err := record.LoadState(*stateFilename)
		if err != nil {
			log.Fatalf("loading state: %v", err)
		}
		initial = snap.Bodies
	} else {
		initial = makebodies(nbodies, []simulation.Particle{
			// two galaxy cores on a slow collision course
			{Mass: 1e6, Radius: 1.0, Pos: mgl64.Vec2{-900, -100}, Vel: mgl64.Vec2{4, -1}},
			{Mass: 1e6, Radius: 1.0, Pos: mgl64.Vec2{900, 100}, Vel: mgl64.Vec2{-3, 2}},
		}, cfg.G, rand.New(rand.NewSource(*seed)))
	}

	sim, err := simulation.New(cfg, initial)
	if err != nil {
		log.Fatalf("constructing simulation: %v", err)
	}

	// print parameters
	fmt.Printf("collisions: %t\nbodies: %d\nstep: %g\nsubsteps: %d\nticks: %d\ntheta: %g\n",
		cfg.Merge, sim.Alive(), cfg.Dt, cfg.StepsPerTick, nticks, cfg.Theta)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// setup frame recording worker
	var frames chan simulation.Snapshot
	var db *record.DB
	wg := sync.WaitGroup{}
	if *dbFilename != "" {
		db, err = record.Open(*dbFilename)
		if err != nil {
			log.Fatalf("opening %s: %v", *dbFilename, err)
		}
		frames = make(chan simulation.Snapshot, 32)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := db.WriteFrames(frames); err != nil {
				log.Printf("recording: %v", err)
			}
		}()
	}

	start := time.Now()
	err = run(ctx, sim, nticks, frames, start)
	if frames != nil {
		close(frames)
	}
	wg.Wait()
	if db != nil {
		if ierr := db.CreateIndices(); ierr != nil {
			log.Printf("indexing: %v", ierr)
		}
		db.Close()
	}
	if err != nil && err != context.Canceled {
		log.Fatalf("simulation stopped: %v", err)
	}
	fmt.Printf("\nDone. Took %s\n", time.Since(start).Truncate(time.Second))

	// export final state of simulation
	if *stateSave {
		fname := fmt.Sprintf("%010d.state", sim.Tick())
		if err := record.SaveState(fname, sim.Snapshot()); err != nil {
			log.Fatalf("saving state: %v", err)
		}
	}
}

// run drives the tick loop directly (rather than Simulator.Run) so it
// can interleave the progress line.
func run(ctx context.Context, sim *simulation.Simulator, ticks int, frames chan<- simulation.Snapshot, start time.Time) error {
	for tick := 1; tick <= ticks; tick++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sim.Step(); err != nil {
			return err
		}
		if c := sim.Clamped(); c > 0 {
			log.Printf("tick %d: clamped %d accelerations, softening may be too small", sim.Tick(), c)
		}
		if frames != nil {
			select {
			case frames <- sim.Snapshot():
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		// progress
		avgTimePerTick := time.Since(start).Milliseconds() / int64(tick)
		estTimeLeft := time.Duration(avgTimePerTick*int64(ticks-tick)) * time.Millisecond
		fmt.Printf("%.1f%%, %d bodies, %dms/tick, %s remaining, %s elapsed                    \r",
			100*float64(tick)/float64(ticks),
			sim.Alive(),
			avgTimePerTick,
			estTimeLeft.Truncate(time.Second),
			time.Since(start).Truncate(time.Second),
		)
	}
	return nil
}

func applyIni(cfg *simulation.Config, nbodies, nticks *int, ini iniFile) {
	if ini.Physics.G != 0 {
		cfg.G = ini.Physics.G
	}
	if ini.Physics.Dt != 0 {
		cfg.Dt = ini.Physics.Dt
	}
	if ini.Physics.Softening != 0 {
		cfg.Softening = ini.Physics.Softening
	}
	if ini.Physics.Theta != 0 {
		cfg.Theta = ini.Physics.Theta
	}
	if ini.Physics.AccelLimit != 0 {
		cfg.AccelLimit = ini.Physics.AccelLimit
	}
	if ini.Physics.StepsPerTick != 0 {
		cfg.StepsPerTick = ini.Physics.StepsPerTick
	}
	if ini.Physics.BruteForceUnder != 0 {
		cfg.BruteForceUnder = ini.Physics.BruteForceUnder
	}
	if ini.Run.Workers != 0 {
		cfg.Workers = ini.Run.Workers
	}
	if ini.Run.Bodies != 0 {
		*nbodies = ini.Run.Bodies
	}
	if ini.Run.Ticks != 0 {
		*nticks = ini.Run.Ticks
	}
}

// initializes n bodies scattered around the given core bodies, each
// with an initial velocity for a roughly circular orbit about its core.
func makebodies(n int, cores []simulation.Particle, g float64, rng *rand.Rand) []simulation.Particle {
	const meanMass = 1.0
	const defaultRadius = 0.5
	nc := len(cores)
	bodies := make([]simulation.Particle, nc, n+nc)
	copy(bodies, cores)

	for i := 0; i < n; i++ {
		core := simulation.Particle{}
		if nc > 0 {
			core = cores[rng.Intn(nc)]
		}

		p := simulation.Particle{
			Mass:   math.Abs(rng.NormFloat64()*0.25 + meanMass),
			Radius: defaultRadius,
			Pos: mgl64.Vec2{
				rng.NormFloat64()*300 + core.Pos[0],
				rng.NormFloat64()*300 + core.Pos[1],
			},
		}

		if nc > 0 {
			// orbital velocity perpendicular to the body-core vector
			d := core.Pos.Sub(p.Pos)
			r := d.Len()
			if r == 0 {
				r = 1
			}
			v := math.Sqrt(g * core.Mass / r)
			p.Vel = mgl64.Vec2{-d[1] / r, d[0] / r}.Mul(v).Add(core.Vel)
		}

		bodies = append(bodies, p)
	}

	return bodies
}
