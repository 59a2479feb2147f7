// Package drift implements the block-time drift analysis: it samples block
// headers from the chain, orders inter-block mining times, and reports how
// often gaps beyond a threshold occur together with their Poisson likelihood.
package drift

import (
	"math"
	"math/rand"
)

// Plan describes how sample heights are drawn from the chain.
type Plan struct {
	ZScore         float64
	MarginError    float64
	StdDeviation   float64
	FullPopulation bool
}

// SampleSize returns the Cochran-formula sample size for a population of n
// blocks, corrected for finite populations. The chain is large enough that
// the correction barely bites on mainnet, but it keeps small regtest chains
// honest.
func (p Plan) SampleSize(n int64) int64 {
	if n <= 0 {
		return 0
	}
	zpq := p.ZScore * p.ZScore * (p.StdDeviation * (1.0 - p.StdDeviation))
	n0 := math.Ceil(zpq / (p.MarginError * p.MarginError))
	sample := n0 / (1.0 + ((n0 - 1.0) / float64(n)))
	return int64(math.Ceil(sample))
}

// Heights returns the block heights to fetch. With FullPopulation set it is
// simply every height below max; otherwise it draws sampleSize/window random
// starting heights and extends each into a contiguous run of window blocks,
// since drift needs adjacent pairs.
func (p Plan) Heights(max, window int64, rng *rand.Rand) []int64 {
	if max <= 0 {
		return nil
	}
	if window < 2 {
		window = 2
	}
	if window > max {
		window = max
	}
	if p.FullPopulation {
		heights := make([]int64, max)
		for i := range heights {
			heights[i] = int64(i)
		}
		return heights
	}
	if window < 2 {
		// Chain too short to form a single pair.
		return nil
	}

	runs := p.SampleSize(max) / window
	heights := make([]int64, 0, runs*window)
	for i := int64(0); i < runs; i++ {
		start := rng.Int63n(max)
		// Clamp so the contiguous run stays below the tip.
		if start > max-window {
			start = max - window
		}
		if start < 0 {
			start = 0
		}
		for j := int64(0); j < window; j++ {
			heights = append(heights, start+j)
		}
	}
	return heights
}
