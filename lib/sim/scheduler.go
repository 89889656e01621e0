package sim

/* scheduler.go contains the parallel generation loop. The local work is
split into contiguous index blocks, one per worker; each worker carries a
private tally accumulator and a fission-bank segment sized for its block,
so the hot path takes no locks. Concatenating the segments in worker order
reproduces the global history order, so the merged fission population is
the same no matter how many threads ran it. The only synchronization is
the implicit barrier when the pool drains, followed by the generation-end
merge. */

import (
	"context"
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/kestrel-mc/kestrel/lib/bank"
	"github.com/kestrel-mc/kestrel/lib/config"
	"github.com/kestrel-mc/kestrel/lib/physics"
	"github.com/kestrel-mc/kestrel/lib/rng"
	"github.com/kestrel-mc/kestrel/lib/tally"
)

const siteBytes = int64(unsafe.Sizeof(bank.Site{}))

// Salts that keep the derived streams below out of the per-history
// stream-seed space, which occupies the low end of the 64-bit range.
const (
	initialSourceSalt uint64 = 0x8000000000000000
	resampleSalt      uint64 = 0x4000000000000000
)

// worker is one thread's private state for the duration of a generation.
type worker struct {
	acc     tally.Accumulator
	fission *bank.Bank // nil in fixed-source mode
	sink    physics.SiteAppender
}

// dropSites discards fission sites; fixed-source runs don't bank them.
type dropSites struct{}

func (dropSites) Append(bank.Site) error { return nil }

// workerCount returns the size of the worker pool: the configured thread
// count, capped by the local work share.
func (s *Simulation) workerCount() int {
	n := s.cfg.Threads
	if s.work > 0 && int64(n) > s.work {
		n = int(s.work)
	}
	if n < 1 {
		n = 1
	}
	return n
}

// segmentCap sizes one worker's fission-bank segment: the bank factor times
// the number of histories the worker actually runs. Fission production past
// this bound is fatal, never silently dropped.
func (s *Simulation) segmentCap(block int64) int {
	if s.cfg.Mode != config.ModeEigenvalue {
		return 0
	}
	return int(math.Ceil(s.cfg.BankFactor * float64(block)))
}

// stream builds the generator for a stream seed, folding in the run's
// master seed so different seed material gives statistically independent
// runs while keeping the seed-to-history mapping itself partition-free.
func (s *Simulation) stream(streamSeed uint64) *rng.Generator {
	return rng.New(streamSeed + s.cfg.Seed*0x9e3779b97f4a7c15)
}

// initialStream is the stream used to sample slot id of the initial source.
func (s *Simulation) initialStream(id int64) *rng.Generator {
	return s.stream(initialSourceSalt | uint64(id))
}

// resampleStream is the stream used to comb the fission population after
// the current generation.
func (s *Simulation) resampleStream() *rng.Generator {
	return s.stream(resampleSalt | uint64(s.totalGens))
}

// runGeneration transports this rank's share of the current generation and
// performs the generation-end merge.
func (s *Simulation) runGeneration(ctx context.Context) error {
	s.timers.Transport.Start()

	// Each worker owns a static contiguous block of history indices. The
	// assignment must not depend on scheduling: segment capacities are
	// sized from it, and the segments concatenate into the global history
	// order below.
	nw := s.workerCount()
	blocks := bank.Partition(s.work, nw)
	workers := make([]*worker, nw)
	for i := range workers {
		wk := &worker{}
		if s.cfg.Mode == config.ModeEigenvalue {
			wk.fission = bank.New(s.segmentCap(blocks[i]))
			wk.sink = wk.fission
		} else {
			wk.sink = dropSites{}
		}
		workers[i] = wk
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < nw; w++ {
		wk := workers[w]
		start := bank.Offset(blocks, w)
		end := start + blocks[w]
		g.Go(func() error {
			for i := start; i < end; i++ {
				// When another worker fails, gctx cancels: stop starting
				// new histories and let the region drain cleanly.
				if gctx.Err() != nil {
					return nil
				}
				if err := s.runHistory(i, wk); err != nil {
					return fmt.Errorf("history %d: %w", s.workOffset+i, err)
				}
			}
			return nil
		})
	}
	err := g.Wait()
	s.timers.Transport.Stop()

	// Merge thread-local sums in worker order. The critical section is
	// O(threads), not O(particles).
	for _, wk := range workers {
		s.tallies.Merge(&wk.acc)
	}
	if err != nil {
		return err
	}

	s.histories += s.work
	for i := int64(0); i < s.work; i++ {
		s.batchWeight += s.source.Get(int(i)).Weight
	}

	if s.cfg.Mode == config.ModeEigenvalue {
		return s.synchronizeBanks(workers)
	}
	return nil
}

// runHistory builds and transports the history at local index i.
func (s *Simulation) runHistory(i int64, wk *worker) error {
	id := s.workOffset + i
	overallGen := s.totalGens - s.restartGens + 1
	gen := s.stream(rng.StreamSeed(s.restartGens, overallGen, s.cfg.Particles, id))

	p := Particle{ID: id, Batch: s.currentBatch, Generation: s.currentGen}
	if s.cfg.Mode == config.ModeFixedSource {
		// Fixed-source slots are refilled from the external source every
		// generation; slot writes are disjoint by construction.
		site := s.model.SampleSource(gen)
		site.ParentID = id
		s.source.Set(int(i), site)
		p.Site = site
	} else {
		p.Site = s.source.Get(int(i))
	}

	p.Trace = s.cfg.Trace != nil &&
		matchTriplet(*s.cfg.Trace, p.Batch, p.Generation, id)
	p.RecordTrack = s.cfg.TrackAll
	for _, tr := range s.cfg.Tracks {
		if matchTriplet(tr, p.Batch, p.Generation, id) {
			p.RecordTrack = true
			break
		}
	}
	if p.Trace {
		s.log.Debug("tracing history",
			"id", id, "batch", p.Batch, "generation", p.Generation)
	}

	return s.model.Transport(&p.Site, gen, &wk.acc, wk.sink)
}

// synchronizeBanks is the one mandatory global synchronization point per
// generation: thread segments are concatenated, the population crosses
// ranks, diagnostics are taken, and each rank receives its next-generation
// work share.
func (s *Simulation) synchronizeBanks(workers []*worker) error {
	// Worker order is block order, so the concatenation lists sites in
	// the order of the histories that produced them. Resampling is
	// order-sensitive; this keeps the next generation's population
	// independent of the thread count.
	total := 0
	for _, wk := range workers {
		total += wk.fission.Len()
	}
	local := make([]bank.Site, 0, total)
	for _, wk := range workers {
		local = append(local, wk.fission.Sites()...)
	}

	all := s.comm.GatherSites(local, 0)

	dead := s.comm.Rank() == 0 && len(all) == 0
	if s.comm.BcastBool(dead, 0) {
		return fmt.Errorf(
			"fission population died out in batch %d generation %d",
			s.currentBatch, s.currentGen)
	}

	// Entropy and the generation k estimate are taken over the merged
	// population before redistribution.
	diag := make([]float64, 2)
	if s.comm.Rank() == 0 {
		w := 0.0
		for i := range all {
			w += all[i].Weight
		}
		diag[0] = w / float64(s.cfg.Particles)
		if s.cfg.EntropyBins > 0 {
			lo, hi := s.model.Bounds()
			diag[1] = ShannonEntropy(all, lo, hi, s.cfg.EntropyBins)
		}
		all = bank.Resample(all, s.cfg.Particles, s.resampleStream())
	}
	diag = s.comm.BcastFloats(diag, 0)
	s.keff = append(s.keff, diag[0])
	if s.cfg.EntropyBins > 0 {
		s.entropy = append(s.entropy, diag[1])
	}

	s.source = bank.FromSites(s.comm.ScatterSites(all, s.shares, 0))
	return nil
}
