package sim

import (
	"github.com/kestrel-mc/kestrel/lib/bank"
	"github.com/kestrel-mc/kestrel/lib/config"
)

// Particle is the transient state of one history: identity, the phase-space
// state it was handed from the source bank, and diagnostic flags. It is
// owned exclusively by the worker running it and destroyed when transport
// returns.
type Particle struct {
	// ID is the particle's global id: the rank's work offset plus the
	// local dispatch index.
	ID int64

	// Batch and Generation label the context the history runs in.
	Batch, Generation int

	Site bank.Site

	// Trace is set when (Batch, Generation, ID) matches the requested
	// trace triplet exactly.
	Trace bool

	// RecordTrack is set when the history matches any configured track
	// request, or when track recording is enabled for all histories.
	RecordTrack bool
}

// matchTriplet reports whether a configured diagnostic triplet names this
// exact history.
func matchTriplet(tr config.Triplet, batch, gen int, id int64) bool {
	return tr.Batch == batch && tr.Generation == gen && tr.Particle == id
}
