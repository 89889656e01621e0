/*package physics defines the interface the simulation core consumes from
the physical model: transporting one history to termination and sampling
external source sites. The core never looks inside a site's fields; the
model owns their meaning. A small built-in slab model lives here so the
executable and the end-to-end tests have real transport to run.
*/
package physics

import (
	"github.com/kestrel-mc/kestrel/lib/bank"
	"github.com/kestrel-mc/kestrel/lib/rng"
	"github.com/kestrel-mc/kestrel/lib/tally"
)

// SiteAppender receives the fission sites produced while transporting one
// history. Implementations are thread-confined; Transport never needs to
// synchronize around it.
type SiteAppender interface {
	Append(s bank.Site) error
}

// Model is the physical model a simulation runs against.
type Model interface {
	// Transport advances one history, starting from the phase-space state
	// in s, until absorption, leakage, or cutoff. It scores into acc and
	// appends fission sites to fission as side effects, draws all its
	// randomness from gen, and must not block on any other particle. A
	// non-nil error (bank overflow included) is fatal for the run.
	Transport(s *bank.Site, gen *rng.Generator, acc *tally.Accumulator, fission SiteAppender) error

	// SampleSource draws one external source site.
	SampleSource(gen *rng.Generator) bank.Site

	// Bounds returns the corners of the model's spatial domain, used for
	// entropy-mesh binning of the fission population.
	Bounds() (lo, hi [3]float64)
}
