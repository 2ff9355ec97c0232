// Package weightinit generates normally distributed weights for the
// demo classifier. Draws outside the configured interval are rejected
// and retried, which keeps extreme tail values out of small kernels.
package weightinit

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// Generator produces random numbers with a normal distribution,
// truncated to [min, max] by rejection sampling. A fixed seed makes the
// generated weights reproducible across runs.
type Generator struct {
	dist distuv.Normal
	min  float64
	max  float64
}

// New creates a generator with the given mean, standard deviation,
// bounds and seed.
func New(mean, stddev, min, max float64, seed uint64) *Generator {
	if min >= max {
		panic("weightinit: min must be less than max")
	}
	src := rand.NewSource(seed)
	return &Generator{
		dist: distuv.Normal{
			Mu:    mean,
			Sigma: stddev,
			Src:   rand.New(src),
		},
		min: min,
		max: max,
	}
}

// Rand draws one value inside the interval.
func (g *Generator) Rand() float64 {
	for {
		val := g.dist.Rand()
		if val >= g.min && val <= g.max {
			return val
		}
	}
}

// RandN draws n values inside the interval.
func (g *Generator) RandN(n int) []float64 {
	result := make([]float64, n)
	for i := 0; i < n; i++ {
		result[i] = g.Rand()
	}
	return result
}

func (g *Generator) Min() float64 { return g.min }

func (g *Generator) Max() float64 { return g.max }
