package sim

/* report.go contains the human-readable progress hooks. Exact formatting
is deliberately plain; anything downstream that wants structure should read
the tallies and statepoints instead. */

import (
	"math"

	"github.com/kestrel-mc/kestrel/lib/config"
	"github.com/kestrel-mc/kestrel/lib/tally"
)

func (s *Simulation) reportGeneration() {
	if s.comm.Rank() != 0 {
		return
	}
	if s.cfg.Mode != config.ModeEigenvalue {
		s.log.Debug("generation complete",
			"batch", s.currentBatch, "generation", s.currentGen)
		return
	}

	args := []any{
		"batch", s.currentBatch,
		"generation", s.currentGen,
		"k_gen", s.keff[len(s.keff)-1],
	}
	if s.cfg.EntropyBins > 0 {
		args = append(args, "entropy", s.entropy[len(s.entropy)-1])
	}
	s.log.Info("generation complete", args...)
}

func (s *Simulation) reportBatch() {
	if s.comm.Rank() != 0 {
		return
	}
	args := []any{
		"batch", s.currentBatch,
		"active", s.currentBatch > s.cfg.Inactive,
		"realizations", s.tallies.Realizations(),
	}
	if s.cfg.Mode == config.ModeEigenvalue {
		mean, stderr := s.Keff()
		if !math.IsInf(stderr, 1) {
			args = append(args, "k_eff", mean, "k_std_err", stderr)
		}
	}
	if s.triggerFired {
		args = append(args, "triggers_satisfied", true)
	}
	s.log.Info("batch complete", args...)
}

func (s *Simulation) reportFinal() {
	if s.comm.Rank() != 0 {
		return
	}
	args := []any{
		"run_id", s.runID,
		"batches", s.currentBatch,
		"histories", s.histories,
		"realizations", s.tallies.Realizations(),
		"transport_time", s.timers.Transport.Total(),
		"total_time", s.timers.Total.Total(),
	}
	if s.cfg.Mode == config.ModeEigenvalue {
		mean, stderr := s.Keff()
		args = append(args, "k_eff", mean)
		if !math.IsInf(stderr, 1) {
			args = append(args, "k_std_err", stderr)
		}
	}
	for m := tally.Metric(0); m < tally.NumMetrics; m++ {
		args = append(args, m.String(), s.tallies.Mean(m))
	}
	s.log.Info("run complete", args...)
}
