// Seeded placement for initial shops and agents.
// A layered simplex density field makes people and shops cluster into
// neighbourhoods instead of spreading uniformly over the plane.
package world

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// PlaceConfig holds placement parameters.
type PlaceConfig struct {
	Seed      int64
	Bounds    Bounds
	Octaves   int     // Noise layers summed per sample
	Frequency float64 // Base frequency in cycles per world unit
	MaxTries  int     // Rejection sampling attempts before accepting any point
}

// DefaultPlaceConfig returns settings tuned for the 800×600 reference plane.
func DefaultPlaceConfig(seed int64) PlaceConfig {
	return PlaceConfig{
		Seed:      seed,
		Bounds:    DefaultBounds(),
		Octaves:   3,
		Frequency: 0.006,
		MaxTries:  16,
	}
}

// Placer draws positions weighted by a density field.
// Not safe for concurrent use.
type Placer struct {
	cfg     PlaceConfig
	rng     *rand.Rand
	density opensimplex.Noise
}

// NewPlacer creates a placer whose output is fully determined by cfg.Seed.
func NewPlacer(cfg PlaceConfig) *Placer {
	if cfg.Octaves <= 0 {
		cfg.Octaves = 1
	}
	if cfg.MaxTries <= 0 {
		cfg.MaxTries = 1
	}
	return &Placer{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		density: opensimplex.NewNormalized(cfg.Seed + 1),
	}
}

// Rand exposes the placer's random source so callers can draw other
// seeded attributes from the same stream.
func (p *Placer) Rand() *rand.Rand {
	return p.rng
}

// Density returns the field value at (x, y) in [0, 1].
func (p *Placer) Density(x, y float64) float64 {
	return octaveNoise(p.density, x, y, p.cfg.Octaves, p.cfg.Frequency, 0.5)
}

// Point returns a position inside the bounds. Candidates are accepted
// with probability equal to their density; after MaxTries the last
// candidate is returned as-is.
func (p *Placer) Point() (x, y float64) {
	for i := 0; i < p.cfg.MaxTries; i++ {
		x, y = p.cfg.Bounds.RandomPoint(p.rng)
		if p.rng.Float64() < p.Density(x, y) {
			return x, y
		}
	}
	return x, y
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
