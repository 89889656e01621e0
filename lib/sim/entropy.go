package sim

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/kestrel-mc/kestrel/lib/bank"
)

// ShannonEntropy computes the base-2 Shannon entropy of a fission
// population binned on a bins^3 spatial mesh over [lo, hi]. It is a
// convergence diagnostic for the source distribution: the entropy
// stabilizes once the population has forgotten the initial guess.
func ShannonEntropy(sites []bank.Site, lo, hi [3]float64, bins int) float64 {
	if bins <= 0 || len(sites) == 0 {
		return 0
	}

	counts := make([]float64, bins*bins*bins)
	total := 0.0
	for i := range sites {
		idx := 0
		for a := 0; a < 3; a++ {
			span := hi[a] - lo[a]
			b := 0
			if span > 0 {
				b = int(float64(bins) * (sites[i].Position[a] - lo[a]) / span)
				if b < 0 {
					b = 0
				} else if b >= bins {
					b = bins - 1
				}
			}
			idx = idx*bins + b
		}
		counts[idx] += sites[i].Weight
		total += sites[i].Weight
	}
	if total == 0 {
		return 0
	}

	// stat.Entropy wants a normalized distribution with no zero bins.
	p := counts[:0]
	for _, c := range counts {
		if c > 0 {
			p = append(p, c/total)
		}
	}
	return stat.Entropy(p) / math.Ln2
}
