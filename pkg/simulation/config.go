package simulation

import (
	"fmt"
	"runtime"

	"github.com/LindonKelley/newtonian-gravity/pkg/physics"
)

// Config holds the physical constants and engine knobs, fixed for the
// lifetime of a Simulator.
type Config struct {
	// G is the gravitational constant in whatever unit system the
	// initial conditions use.
	G float64
	// Dt is the fixed integrator step. Choose it small relative to the
	// fastest orbital period present; fast close encounters under a
	// coarse Dt integrate inaccurately.
	Dt float64
	// Softening is the length ε added in quadrature to distance in the
	// force law, bounding acceleration by G·m/ε² at contact.
	Softening float64
	// Theta is the Barnes-Hut accuracy dial: a tree node whose
	// side/distance ratio is below Theta acts as one point mass.
	// 0 degrades to exact summation.
	Theta float64
	// BruteForceUnder switches to exact O(n²) summation when fewer
	// live bodies than this remain.
	BruteForceUnder int
	// Merge enables collision merging.
	Merge bool
	// AccelLimit caps per-step acceleration magnitude; hits are counted
	// on the snapshot rather than aborting the tick.
	AccelLimit float64
	// StepsPerTick integrator sub-steps run per emitted tick.
	StepsPerTick int
	// Workers is the fan-out of the force accumulation phase.
	Workers int
}

// DefaultConfig returns a config usable for unit-scale toy systems.
// Real runs should at least set G, Dt and Softening for their units.
func DefaultConfig() Config {
	return Config{
		G:               physics.G,
		Dt:              1,
		Softening:       1e-3,
		Theta:           0.7,
		BruteForceUnder: 64,
		Merge:           true,
		AccelLimit:      1e12,
		StepsPerTick:    1,
		Workers:         runtime.NumCPU(),
	}
}

// ConfigError reports a config field that makes the simulation unable
// to start.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

func (c Config) validate() error {
	switch {
	case !(c.G > 0):
		return &ConfigError{"G", "must be positive"}
	case !(c.Dt > 0):
		return &ConfigError{"Dt", "must be positive"}
	case !(c.Softening > 0):
		return &ConfigError{"Softening", "must be positive"}
	case c.Theta < 0:
		return &ConfigError{"Theta", "must be non-negative"}
	case c.BruteForceUnder < 0:
		return &ConfigError{"BruteForceUnder", "must be non-negative"}
	case !(c.AccelLimit > 0):
		return &ConfigError{"AccelLimit", "must be positive"}
	case c.StepsPerTick < 1:
		return &ConfigError{"StepsPerTick", "must be at least 1"}
	case c.Workers < 1:
		return &ConfigError{"Workers", "must be at least 1"}
	}
	return nil
}
