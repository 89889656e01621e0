/*package bank contains the fixed-capacity site banks that carry particle
populations between generations. A Site is a recorded phase-space state; the
source bank holds the population being transported this generation and the
fission bank collects the sites that will seed the next one. The simulation
core copies, appends, and reorders sites but never interprets their physics.
*/
package bank

import (
	"errors"
	"fmt"

	"github.com/kestrel-mc/kestrel/lib/rng"
)

// ErrBankFull is returned when an Append would exceed a bank's fixed
// capacity. Overflow is never absorbed silently: truncating fission sites
// would corrupt the multiplication estimate.
var ErrBankFull = errors.New("bank is at capacity")

// Site is one recorded particle phase-space state. The struct is a fixed-size
// record of plain fields so banks of sites can be written to statepoints as
// raw bytes.
type Site struct {
	Position  [3]float64
	Direction [3]float64
	Energy    float64
	Weight    float64

	// DelayedGroup is 0 for prompt sites.
	DelayedGroup int64
	ParentID     int64
}

// Bank is a fixed-capacity ordered collection of sites.
type Bank struct {
	sites []Site
}

// New creates an empty Bank with the given fixed capacity.
func New(capacity int) *Bank {
	if capacity < 0 {
		panic(fmt.Sprintf("Internal error: bank capacity %d is negative.", capacity))
	}
	return &Bank{sites: make([]Site, 0, capacity)}
}

// FromSites creates a Bank whose length and capacity equal len(sites). The
// slice is copied.
func FromSites(sites []Site) *Bank {
	b := &Bank{sites: make([]Site, len(sites))}
	copy(b.sites, sites)
	return b
}

// Append adds a site to the end of the bank. It returns ErrBankFull if the
// bank is already at capacity.
func (b *Bank) Append(s Site) error {
	if len(b.sites) == cap(b.sites) {
		return fmt.Errorf("appending site %d: %w", len(b.sites)+1, ErrBankFull)
	}
	b.sites = append(b.sites, s)
	return nil
}

// Len returns the number of sites currently in the bank.
func (b *Bank) Len() int { return len(b.sites) }

// Cap returns the bank's fixed capacity.
func (b *Bank) Cap() int { return cap(b.sites) }

// Get returns the site at index i.
func (b *Bank) Get(i int) Site { return b.sites[i] }

// Set overwrites the site at index i. Concurrent Set calls are safe as long
// as no two writers touch the same index.
func (b *Bank) Set(i int, s Site) { b.sites[i] = s }

// Sites returns a view of the bank's backing storage. The caller must not
// grow it.
func (b *Bank) Sites() []Site { return b.sites }

// Reset empties the bank without releasing its storage.
func (b *Bank) Reset() { b.sites = b.sites[:0] }

// Partition splits total particles across ranks as evenly as possible, with
// the remainder going to the lowest ranks. The returned shares always sum to
// total.
func Partition(total int64, ranks int) []int64 {
	if ranks <= 0 || total < 0 {
		panic(fmt.Sprintf(
			"Internal error: cannot partition %d particles over %d ranks.",
			total, ranks))
	}
	shares := make([]int64, ranks)
	base, rem := total/int64(ranks), total%int64(ranks)
	for i := range shares {
		shares[i] = base
		if int64(i) < rem {
			shares[i]++
		}
	}
	return shares
}

// Offset returns the global index of the first particle owned by rank, i.e.
// the sum of the shares of all lower ranks.
func Offset(shares []int64, rank int) int64 {
	off := int64(0)
	for i := 0; i < rank; i++ {
		off += shares[i]
	}
	return off
}

// Resample reduces or expands a fission population to exactly n sites using
// systematic (comb) sampling, preserving total weight. The draw that places
// the comb comes from gen, so the result is deterministic for a given
// stream. Resample panics if the population is empty but n > 0, since an
// eigenvalue run with no fission sites cannot continue.
func Resample(sites []Site, n int64, gen *rng.Generator) []Site {
	if n == 0 {
		return nil
	}
	if len(sites) == 0 {
		panic("Internal error: resampling an empty fission population.")
	}

	totalWeight := 0.0
	for i := range sites {
		totalWeight += sites[i].Weight
	}

	// Comb with n evenly spaced teeth and a random phase: site i is picked
	// once for every tooth that lands inside its weight interval.
	out := make([]Site, 0, n)
	spacing := totalWeight / float64(n)
	tooth := spacing * gen.Uniform()
	acc := 0.0
	for i := range sites {
		acc += sites[i].Weight
		for tooth < acc && int64(len(out)) < n {
			s := sites[i]
			s.Weight = totalWeight / float64(n)
			out = append(out, s)
			tooth += spacing
		}
	}
	// Floating point slack can leave the last tooth unplaced.
	for int64(len(out)) < n {
		s := sites[len(sites)-1]
		s.Weight = totalWeight / float64(n)
		out = append(out, s)
	}
	return out
}
