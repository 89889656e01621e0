/*package sim contains the execution core: the lifecycle state machine, the
batch controller, and the parallel generation scheduler that drives particle
histories through the physics model. The host application sees three calls
(Initialize, AdvanceOneBatch, Finalize) and everything else happens behind
them.
*/
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/kestrel-mc/kestrel/lib/bank"
	"github.com/kestrel-mc/kestrel/lib/comm"
	"github.com/kestrel-mc/kestrel/lib/config"
	"github.com/kestrel-mc/kestrel/lib/physics"
	"github.com/kestrel-mc/kestrel/lib/statepoint"
	"github.com/kestrel-mc/kestrel/lib/tally"
)

// ErrUninitialized is returned when AdvanceOneBatch is called before
// Initialize. It is a sequencing error: the caller re-sequences, nothing is
// torn down.
var ErrUninitialized = errors.New("simulation is not initialized")

// ExitStatus is AdvanceOneBatch's report on how the run should proceed.
type ExitStatus int

const (
	// StatusNormal means the batch completed and more remain.
	StatusNormal ExitStatus = iota
	// StatusMaxBatches means the configured batch budget is exhausted.
	StatusMaxBatches
	// StatusTriggerSatisfied means every convergence trigger holds and the
	// run may stop early.
	StatusTriggerSatisfied
)

// String returns a short name for the status.
func (st ExitStatus) String() string {
	switch st {
	case StatusNormal:
		return "normal"
	case StatusMaxBatches:
		return "max_batches_reached"
	case StatusTriggerSatisfied:
		return "trigger_satisfied"
	}
	panic(fmt.Sprintf("Internal error: unknown exit status %d.", int(st)))
}

// Simulation is the top-level run state machine. It is re-enterable: after
// Finalize, Initialize may be called again without restarting the process.
type Simulation struct {
	cfg   *config.Config
	model physics.Model
	comm  comm.Communicator
	log   *slog.Logger

	tallies *tally.Global
	trig    *tally.Evaluator
	coord   *statepoint.Coordinator
	timers  Timers

	runID       uuid.UUID
	initialized bool

	// currentBatch and currentGen are single-writer: only the controlling
	// thread mutates them, always at a synchronization boundary.
	currentBatch int
	currentGen   int

	// totalGens counts generations completed since the original run began,
	// across restarts; restartGens is its value when this session started.
	totalGens   int64
	restartGens int64

	histories int64

	shares     []int64
	work       int64
	workOffset int64

	source      *bank.Bank
	batchWeight float64

	keff    []float64
	entropy []float64

	triggerFired bool

	// Correction is an optional hook run once per batch after tally
	// reduction, for acceleration methods that adjust the source between
	// batches. Errors from the hook are fatal.
	Correction func(s *Simulation) error
}

// New creates a Simulation over the given model and communicator. A nil
// logger falls back to slog.Default. The simulation starts uninitialized.
func New(cfg *config.Config, model physics.Model, c comm.Communicator, log *slog.Logger) *Simulation {
	if log == nil {
		log = slog.Default()
	}
	return &Simulation{cfg: cfg, model: model, comm: c, log: log}
}

// Initialize allocates banks and tallies, seeds the initial source
// population, and moves the simulation to the initialized state. It is a
// no-op when already initialized.
func (s *Simulation) Initialize() error {
	if s.initialized {
		return nil
	}
	if err := s.setup(); err != nil {
		return err
	}

	// Seed the initial source. In eigenvalue mode each slot is sampled
	// from the external source distribution with a stream derived from
	// the slot's global id, so the initial population is identical for
	// every partition shape. Fixed-source slots are refilled at dispatch
	// time each generation and start zeroed.
	sites := make([]bank.Site, s.work)
	if s.cfg.Mode == config.ModeEigenvalue {
		for i := int64(0); i < s.work; i++ {
			gen := s.initialStream(s.workOffset + i)
			sites[i] = s.model.SampleSource(gen)
			sites[i].ParentID = s.workOffset + i
		}
	}
	s.source = bank.FromSites(sites)

	s.initialized = true
	s.log.Info("simulation initialized",
		"run_id", s.runID, "mode", s.cfg.Mode,
		"particles", s.cfg.Particles, "batches", s.cfg.Batches,
		"inactive", s.cfg.Inactive, "ranks", s.comm.Size(),
		"work", s.work)
	return nil
}

// InitializeFrom restores the simulation from a loaded statepoint instead
// of a fresh source. The run resumes at the batch after st.CurrentBatch
// with identical random streams. It is a no-op when already initialized.
func (s *Simulation) InitializeFrom(st *statepoint.State) error {
	if s.initialized {
		return nil
	}

	switch {
	case st.Particles != s.cfg.Particles:
		return fmt.Errorf("%w: statepoint ran %d particles, config wants %d",
			statepoint.ErrStateMismatch, st.Particles, s.cfg.Particles)
	case st.GenPerBatch != int64(s.cfg.GenPerBatch):
		return fmt.Errorf("%w: statepoint ran %d generations/batch, config wants %d",
			statepoint.ErrStateMismatch, st.GenPerBatch, s.cfg.GenPerBatch)
	case st.Seed != s.cfg.Seed:
		return fmt.Errorf("%w: statepoint seed %d, config seed %d",
			statepoint.ErrStateMismatch, st.Seed, s.cfg.Seed)
	case st.TotalGens != st.CurrentBatch*int64(s.cfg.GenPerBatch):
		return fmt.Errorf("%w: %d generations completed is inconsistent with batch %d",
			statepoint.ErrStateMismatch, st.TotalGens, st.CurrentBatch)
	case int64(len(st.Source)) != s.cfg.Particles && s.cfg.Mode == config.ModeEigenvalue:
		return fmt.Errorf("%w: statepoint holds %d source sites, config wants %d",
			statepoint.ErrStateMismatch, len(st.Source), s.cfg.Particles)
	}

	if err := s.setup(); err != nil {
		return err
	}

	s.runID = st.RunID
	s.currentBatch = int(st.CurrentBatch)
	s.totalGens = st.TotalGens
	s.restartGens = st.TotalGens
	s.keff = append([]float64(nil), st.KeffSeries...)
	s.entropy = append([]float64(nil), st.EntropySeries...)
	if !st.SourceOnly {
		s.tallies.Restore(st.Tallies)
	}

	// Each rank takes its contiguous share of the restored population.
	if s.cfg.Mode == config.ModeEigenvalue {
		s.source = bank.FromSites(
			st.Source[s.workOffset : s.workOffset+s.work])
	} else {
		s.source = bank.FromSites(make([]bank.Site, s.work))
	}

	s.initialized = true
	s.log.Info("simulation restored",
		"run_id", s.runID, "batch", s.currentBatch,
		"generations_completed", s.totalGens)
	return nil
}

// setup builds the per-run state shared by both initialization paths.
func (s *Simulation) setup() error {
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	s.shares = bank.Partition(s.cfg.Particles, s.comm.Size())
	s.work = s.shares[s.comm.Rank()]
	s.workOffset = bank.Offset(s.shares, s.comm.Rank())

	// Bank storage is sized from configuration; a size that cannot fit in
	// memory is a configuration error, fatal and not retried.
	nw := int64(s.workerCount())
	largestBlock := (s.work + nw - 1) / nw
	totalSites := s.work + int64(s.segmentCap(largestBlock))*nw
	if totalSites > (1<<62)/siteBytes {
		return fmt.Errorf(
			"bank allocation of %d sites cannot fit in memory; "+
				"reduce particles or bank_factor", totalSites)
	}

	trig := &tally.Evaluator{}
	for _, spec := range s.cfg.Triggers {
		m, err := tally.MetricFromName(spec.Metric)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		trig.Triggers = append(trig.Triggers, tally.Trigger{
			Metric: m, RelErr: spec.RelErr,
		})
	}

	s.runID = uuid.New()
	s.tallies = tally.NewGlobal()
	s.trig = trig
	s.coord = statepoint.NewCoordinator(
		s.cfg.StatepointBatches, s.cfg.SourcepointBatches, s.cfg.LatestSource)
	s.timers = Timers{}
	s.timers.Total.Start()

	s.currentBatch, s.currentGen = 0, 0
	s.totalGens, s.restartGens, s.histories = 0, 0, 0
	s.keff, s.entropy = nil, nil
	s.triggerFired = false
	return nil
}

// AdvanceOneBatch runs exactly one batch and reports how the run should
// proceed. Calling it on an uninitialized simulation is a sequencing error.
// Once the batch budget is exhausted it returns StatusMaxBatches without
// running further batches.
func (s *Simulation) AdvanceOneBatch(ctx context.Context) (ExitStatus, error) {
	if !s.initialized {
		return StatusNormal, fmt.Errorf("cannot advance: %w", ErrUninitialized)
	}
	if s.currentBatch >= s.cfg.Batches {
		return StatusMaxBatches, nil
	}

	if err := s.runBatch(ctx); err != nil {
		return StatusNormal, err
	}

	switch {
	case s.triggerFired:
		return StatusTriggerSatisfied, nil
	case s.currentBatch >= s.cfg.Batches:
		return StatusMaxBatches, nil
	}
	return StatusNormal, nil
}

// Finalize stops all timers, reduces final statistics, reports the run
// summary, deactivates tallies, and releases per-run state. It is a no-op
// on an uninitialized simulation, and the simulation may be initialized
// again afterwards.
func (s *Simulation) Finalize() error {
	if !s.initialized {
		return nil
	}
	s.timers.Finalize.Start()

	// Statistics were reduced to the master at each batch boundary; the
	// final barrier just keeps ranks from racing past teardown into a
	// re-initialization.
	s.comm.Barrier()
	s.reportFinal()

	s.tallies.Deactivate()
	s.timers.StopAll()

	s.source = nil
	s.shares = nil
	s.initialized = false
	return nil
}

// Initialized reports whether the simulation is between Initialize and
// Finalize.
func (s *Simulation) Initialized() bool { return s.initialized }

// CurrentBatch returns the number of completed batches.
func (s *Simulation) CurrentBatch() int { return s.currentBatch }

// TotalGenerations returns the number of generations completed since the
// original run began, across restarts.
func (s *Simulation) TotalGenerations() int64 { return s.totalGens }

// HistoriesRun returns the number of particle histories this rank has
// transported during the current run session.
func (s *Simulation) HistoriesRun() int64 { return s.histories }

// Tallies returns the global tally accumulator.
func (s *Simulation) Tallies() *tally.Global { return s.tallies }

// Timers returns the run's phase timers.
func (s *Simulation) Timers() *Timers { return &s.timers }

// SourceSites returns this rank's current source population.
func (s *Simulation) SourceSites() []bank.Site { return s.source.Sites() }

// Keff returns the mean and standard error of the generation k-effective
// estimates over active generations. Before two active generations the
// error is +Inf.
func (s *Simulation) Keff() (mean, stderr float64) {
	active := s.activeKeff()
	if len(active) == 0 {
		return 0, math.Inf(1)
	}
	mean = stat.Mean(active, nil)
	if len(active) < 2 {
		return mean, math.Inf(1)
	}
	return mean, stat.StdDev(active, nil) / math.Sqrt(float64(len(active)))
}

// EntropySeries returns the per-generation Shannon entropy diagnostics.
func (s *Simulation) EntropySeries() []float64 { return s.entropy }

// activeKeff slices off the inactive generations' estimates.
func (s *Simulation) activeKeff() []float64 {
	skip := s.cfg.Inactive * s.cfg.GenPerBatch
	if skip >= len(s.keff) {
		return nil
	}
	return s.keff[skip:]
}
