package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrel-mc/kestrel/lib/bank"
)

func TestShannonEntropyPointSource(t *testing.T) {
	sites := make([]bank.Site, 100)
	for i := range sites {
		sites[i] = bank.Site{Position: [3]float64{0.5, 0.5, 0.5}, Weight: 1}
	}
	lo, hi := [3]float64{0, 0, 0}, [3]float64{1, 1, 1}
	assert.Equal(t, 0.0, ShannonEntropy(sites, lo, hi, 4))
}

func TestShannonEntropyUniformLine(t *testing.T) {
	// Sites spread evenly over 4 x-bins, all in the same y/z bin: 4
	// equally occupied cells is exactly 2 bits.
	var sites []bank.Site
	for i := 0; i < 4; i++ {
		for j := 0; j < 25; j++ {
			x := (float64(i) + 0.5) / 4
			sites = append(sites, bank.Site{Position: [3]float64{x, 0, 0}, Weight: 1})
		}
	}
	lo, hi := [3]float64{0, 0, 0}, [3]float64{1, 1, 1}
	assert.InDelta(t, 2.0, ShannonEntropy(sites, lo, hi, 4), 1e-12)
}

func TestShannonEntropyWeighted(t *testing.T) {
	// Two cells with weights 3:1.
	sites := []bank.Site{
		{Position: [3]float64{0.1, 0, 0}, Weight: 3},
		{Position: [3]float64{0.9, 0, 0}, Weight: 1},
	}
	lo, hi := [3]float64{0, 0, 0}, [3]float64{1, 1, 1}
	// H = -(3/4)log2(3/4) - (1/4)log2(1/4)
	want := 0.8112781244591328
	assert.InDelta(t, want, ShannonEntropy(sites, lo, hi, 2), 1e-12)
}

func TestShannonEntropyEdgeCases(t *testing.T) {
	lo, hi := [3]float64{0, 0, 0}, [3]float64{1, 1, 1}
	assert.Equal(t, 0.0, ShannonEntropy(nil, lo, hi, 4))
	assert.Equal(t, 0.0, ShannonEntropy([]bank.Site{{Weight: 1}}, lo, hi, 0))

	// Positions outside the mesh clamp to the edge bins instead of
	// dropping weight.
	sites := []bank.Site{
		{Position: [3]float64{-5, 0, 0}, Weight: 1},
		{Position: [3]float64{5, 0, 0}, Weight: 1},
	}
	assert.InDelta(t, 1.0, ShannonEntropy(sites, lo, hi, 2), 1e-12)
}
