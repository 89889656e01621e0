package sim

/* batch.go contains the batch controller: the begin-batch bookkeeping, the
generation loop, and the batch-boundary sequence of tally reduction,
correction hook, trigger evaluation, and snapshot emission. A batch boundary
is the only point where a restart snapshot is consistent. */

import (
	"context"
	"fmt"

	"github.com/kestrel-mc/kestrel/lib/bank"
	"github.com/kestrel-mc/kestrel/lib/statepoint"
	"github.com/kestrel-mc/kestrel/lib/tally"
)

// runBatch executes one full batch: gen_per_batch generations, each with
// its generation-end merge, followed by the batch-boundary bookkeeping.
func (s *Simulation) runBatch(ctx context.Context) error {
	s.currentBatch++
	s.batchWeight = 0

	// The inactive-to-active transition happens exactly once, entering the
	// first active batch, and is never reverted mid-run.
	if s.currentBatch == s.cfg.Inactive+1 && !s.tallies.Active() {
		s.tallies.Activate()
	}
	active := s.currentBatch > s.cfg.Inactive
	if active {
		s.timers.Active.Start()
	} else {
		s.timers.Inactive.Start()
	}

	for gen := 1; gen <= s.cfg.GenPerBatch; gen++ {
		s.currentGen = gen
		if err := s.runGeneration(ctx); err != nil {
			return fmt.Errorf("batch %d generation %d: %w",
				s.currentBatch, gen, err)
		}
		s.totalGens++
		s.reportGeneration()
	}

	// Reduce the batch's tally sums and transported weight across ranks;
	// the master accumulates the global values, other ranks keep local
	// statistics. Inactive batches are discarded outright so they can
	// never leak into the active accumulation.
	s.timers.Tallies.Start()
	vec := append(s.tallies.BatchSums(), s.batchWeight)
	red := s.comm.ReduceSums(vec, 0)
	if s.comm.Rank() == 0 {
		s.tallies.SetBatchSums(red[:tally.NumMetrics])
	}
	if active {
		s.tallies.CloseBatch(red[tally.NumMetrics])
	} else {
		s.tallies.DiscardBatch()
	}
	s.timers.Tallies.Stop()

	if s.Correction != nil {
		if err := s.Correction(s); err != nil {
			return fmt.Errorf("correction hook at batch %d: %w",
				s.currentBatch, err)
		}
	}

	// The master evaluates triggers; the decision is broadcast so every
	// rank takes the same control-flow branch.
	fire := false
	if s.comm.Rank() == 0 {
		fire = s.trig.Satisfied(s.tallies)
	}
	s.triggerFired = s.comm.BcastBool(fire, 0)

	if err := s.emitSnapshots(); err != nil {
		return err
	}

	if active {
		s.timers.Active.Stop()
	} else {
		s.timers.Inactive.Stop()
	}
	s.reportBatch()
	return nil
}

// emitSnapshots writes whichever snapshot files the coordinator calls for
// at this batch.
func (s *Simulation) emitSnapshots() error {
	full, source, latest := s.coord.Decide(s.currentBatch)
	if !full && !source && !latest {
		return nil
	}

	// Snapshots carry the global population, so gathering it is the one
	// extra collective a snapshot batch pays for.
	all := s.comm.GatherSites(s.source.Sites(), 0)
	if s.comm.Rank() != 0 {
		return nil
	}

	if full {
		path := statepoint.StatepointPath(s.cfg.OutputDir, s.currentBatch)
		if err := statepoint.Write(path, s.snapshot(all, false)); err != nil {
			return fmt.Errorf("statepoint at batch %d: %w", s.currentBatch, err)
		}
		s.log.Info("wrote statepoint", "batch", s.currentBatch, "path", path)
	}
	if source {
		path := statepoint.SourcepointPath(s.cfg.OutputDir, s.currentBatch)
		if err := statepoint.Write(path, s.snapshot(all, true)); err != nil {
			return fmt.Errorf("source point at batch %d: %w", s.currentBatch, err)
		}
		s.log.Info("wrote source point", "batch", s.currentBatch, "path", path)
	}
	if latest {
		path := statepoint.LatestSourcePath(s.cfg.OutputDir)
		if err := statepoint.Write(path, s.snapshot(all, true)); err != nil {
			return fmt.Errorf("latest source at batch %d: %w", s.currentBatch, err)
		}
	}
	return nil
}

// snapshot assembles the resumable state as of the just-completed batch.
func (s *Simulation) snapshot(all []bank.Site, sourceOnly bool) *statepoint.State {
	st := &statepoint.State{
		RunID:         s.runID,
		Seed:          s.cfg.Seed,
		Particles:     s.cfg.Particles,
		GenPerBatch:   int64(s.cfg.GenPerBatch),
		CurrentBatch:  int64(s.currentBatch),
		TotalGens:     s.totalGens,
		SourceOnly:    sourceOnly,
		KeffSeries:    append([]float64(nil), s.keff...),
		EntropySeries: append([]float64(nil), s.entropy...),
		Source:        append([]bank.Site(nil), all...),
	}
	if !sourceOnly {
		st.Tallies = s.tallies.Snapshot()
	}
	return st
}
