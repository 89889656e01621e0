package physics

/* slab.go contains a one-group 1-D slab model: particles random-walk along
x between two vacuum boundaries, with collisions splitting into scatter
and absorption, and a fixed fission fraction on absorption. It is simple
enough to reason about analytically but exercises every tally and the
fission bank. */

import (
	"fmt"
	"math"

	"github.com/kestrel-mc/kestrel/lib/bank"
	"github.com/kestrel-mc/kestrel/lib/rng"
	"github.com/kestrel-mc/kestrel/lib/tally"
)

// Slab is a homogeneous slab of given width with vacuum boundaries at x=0
// and x=Width.
type Slab struct {
	Width  float64
	SigmaT float64 // total macroscopic cross section
	PAbs   float64 // probability a collision is an absorption
	PFis   float64 // probability an absorption is a fission
	Nu     float64 // mean fission neutrons per fission

	// MaxCollisions is the history cutoff; a history still alive after
	// this many collisions terminates without further scoring.
	MaxCollisions int
}

// DefaultSlab returns a slab close enough to critical that eigenvalue runs
// hold a stable population.
func DefaultSlab() *Slab {
	return &Slab{
		Width:         20.0,
		SigmaT:        1.0,
		PAbs:          0.3,
		PFis:          0.4,
		Nu:            2.5,
		MaxCollisions: 10000,
	}
}

// Transport walks one history to absorption, leakage, or cutoff.
func (sl *Slab) Transport(
	s *bank.Site, gen *rng.Generator,
	acc *tally.Accumulator, fission SiteAppender,
) error {
	w := s.Weight
	for n := 0; n < sl.MaxCollisions; n++ {
		d := -math.Log(1-gen.Uniform()) / sl.SigmaT
		x := s.Position[0] + d*s.Direction[0]

		if x < 0 || x > sl.Width {
			// Score only the in-slab part of the final flight.
			exit := 0.0
			if x > sl.Width {
				exit = sl.Width
			}
			acc.AddTrackLength(math.Abs(exit-s.Position[0]), w)
			acc.AddLeakage(w)
			return nil
		}

		acc.AddTrackLength(d, w)
		acc.AddCollision(w)
		s.Position[0] = x

		if gen.Uniform() >= sl.PAbs {
			// Scatter: isotropic in 1-D means a coin flip on direction.
			if gen.Uniform() < 0.5 {
				s.Direction[0] = -s.Direction[0]
			}
			continue
		}

		acc.AddAbsorption(w)
		if gen.Uniform() < sl.PFis {
			for i := 0; i < sl.sampleNu(gen); i++ {
				site := bank.Site{
					Position:  s.Position,
					Direction: [3]float64{sl.sampleDir(gen), 0, 0},
					Energy:    s.Energy,
					Weight:    w,
					ParentID:  s.ParentID,
				}
				if err := fission.Append(site); err != nil {
					return fmt.Errorf("banking fission site: %w", err)
				}
			}
		}
		return nil
	}
	return nil
}

// SampleSource draws a site uniform in the slab with an isotropic direction.
func (sl *Slab) SampleSource(gen *rng.Generator) bank.Site {
	return bank.Site{
		Position:  [3]float64{sl.Width * gen.Uniform(), 0, 0},
		Direction: [3]float64{sl.sampleDir(gen), 0, 0},
		Energy:    1.0,
		Weight:    1.0,
	}
}

// Bounds returns the slab's spatial domain.
func (sl *Slab) Bounds() (lo, hi [3]float64) {
	return [3]float64{0, 0, 0}, [3]float64{sl.Width, 1, 1}
}

// sampleNu draws an integer neutron count with mean Nu.
func (sl *Slab) sampleNu(gen *rng.Generator) int {
	n := int(sl.Nu)
	if gen.Uniform() < sl.Nu-float64(n) {
		n++
	}
	return n
}

func (sl *Slab) sampleDir(gen *rng.Generator) float64 {
	if gen.Uniform() < 0.5 {
		return -1
	}
	return 1
}
