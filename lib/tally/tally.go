/*package tally contains the global estimator accumulators. Each worker
thread owns a private Accumulator for the duration of a generation and scores
into it with no locking; at generation end the workers' sums are merged into
the process-wide Global under a single mutex, and at batch end the Global
either folds the batch into its running statistics (active batches) or
discards it (inactive batches).
*/
package tally

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Metric identifies one of the global scalar estimators.
type Metric int

const (
	Collision Metric = iota
	Absorption
	TrackLength
	Leakage
	NumMetrics
)

var metricNames = [NumMetrics]string{
	"collision", "absorption", "track_length", "leakage",
}

// String returns the metric's configuration-file name.
func (m Metric) String() string {
	if m < 0 || m >= NumMetrics {
		panic(fmt.Sprintf("Internal error: unknown metric %d.", int(m)))
	}
	return metricNames[m]
}

// MetricFromName maps a configuration-file name back to a Metric.
func MetricFromName(name string) (Metric, error) {
	for m := Metric(0); m < NumMetrics; m++ {
		if metricNames[m] == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown tally metric '%s'", name)
}

// Accumulator is one worker's private set of running sums. It is scored
// without locking; the worker's write region is its own struct.
type Accumulator struct {
	Sums [NumMetrics]float64
}

// AddCollision scores a collision with the given particle weight.
func (a *Accumulator) AddCollision(weight float64) { a.Sums[Collision] += weight }

// AddAbsorption scores an absorption with the given particle weight.
func (a *Accumulator) AddAbsorption(weight float64) { a.Sums[Absorption] += weight }

// AddTrackLength scores a flight of the given length and weight.
func (a *Accumulator) AddTrackLength(length, weight float64) {
	a.Sums[TrackLength] += length * weight
}

// AddLeakage scores a particle leaking out of the problem.
func (a *Accumulator) AddLeakage(weight float64) { a.Sums[Leakage] += weight }

// Reset zeroes the accumulator.
func (a *Accumulator) Reset() { a.Sums = [NumMetrics]float64{} }

// Snapshot is the serializable state of a Global, used by statepoints.
type Snapshot struct {
	Active       bool
	Realizations int64
	Batch        [NumMetrics]float64
	Series       [NumMetrics][]float64
}

// Global holds the process-wide estimator state. Merge is the only method
// called from worker threads; everything else runs on the controlling thread
// at a synchronization boundary.
type Global struct {
	mu sync.Mutex

	active       bool
	realizations int64

	// batch accumulates generation sums until the batch closes.
	batch  [NumMetrics]float64
	series [NumMetrics][]float64
}

// NewGlobal creates an inactive Global with no accumulated statistics.
func NewGlobal() *Global { return &Global{} }

// Merge adds a worker's sums into the batch accumulator and zeroes the
// worker's accumulator. The critical section is O(1) per worker.
func (g *Global) Merge(a *Accumulator) {
	g.mu.Lock()
	for m := Metric(0); m < NumMetrics; m++ {
		g.batch[m] += a.Sums[m]
	}
	g.mu.Unlock()
	a.Reset()
}

// Activate flips the tallies active and zeroes everything accumulated so
// far. Inactive-batch statistics must never leak into the active
// accumulation, so the transition discards them wholesale. Activation is
// never reverted during a run; Deactivate is only called from finalize.
func (g *Global) Activate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = true
	g.realizations = 0
	g.batch = [NumMetrics]float64{}
	g.series = [NumMetrics][]float64{}
}

// Deactivate turns scoring back off at the end of a run.
func (g *Global) Deactivate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
}

// Active reports whether the tallies are accumulating.
func (g *Global) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// BatchSums returns the current batch's raw sums, for cross-process
// reduction at a batch boundary.
func (g *Global) BatchSums() []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]float64, NumMetrics)
	copy(out, g.batch[:])
	return out
}

// SetBatchSums overwrites the current batch's sums with cross-process
// reduced values. Only the master rank calls this.
func (g *Global) SetBatchSums(sums []float64) {
	if len(sums) != int(NumMetrics) {
		panic(fmt.Sprintf(
			"Internal error: reduced tally vector has %d entries, want %d.",
			len(sums), NumMetrics))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	copy(g.batch[:], sums)
}

// CloseBatch folds the batch sums, normalized by norm (total source weight
// transported this batch), into the running per-batch series and counts one
// realization. The batch accumulator is zeroed for the next batch.
func (g *Global) CloseBatch(norm float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for m := Metric(0); m < NumMetrics; m++ {
		g.series[m] = append(g.series[m], g.batch[m]/norm)
	}
	g.realizations++
	g.batch = [NumMetrics]float64{}
}

// DiscardBatch throws away the current batch's sums without counting a
// realization. Used for every inactive batch.
func (g *Global) DiscardBatch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.batch = [NumMetrics]float64{}
}

// Realizations returns the number of active batches accumulated.
func (g *Global) Realizations() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.realizations
}

// Mean returns the mean of the per-batch values of metric m.
func (g *Global) Mean(m Metric) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.series[m]) == 0 {
		return 0
	}
	return stat.Mean(g.series[m], nil)
}

// StdErr returns the standard error of the mean of metric m. It returns
// +Inf with fewer than two realizations, since no spread estimate exists
// yet.
func (g *Global) StdErr(m Metric) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.series[m])
	if n < 2 {
		return math.Inf(1)
	}
	return stat.StdDev(g.series[m], nil) / math.Sqrt(float64(n))
}

// RelStdErr returns the standard error relative to the mean, or +Inf when
// the mean is zero or fewer than two realizations exist.
func (g *Global) RelStdErr(m Metric) float64 {
	mean := g.Mean(m)
	if mean == 0 {
		return math.Inf(1)
	}
	return g.StdErr(m) / math.Abs(mean)
}

// Snapshot captures the Global's full state for a statepoint.
func (g *Global) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := Snapshot{
		Active:       g.active,
		Realizations: g.realizations,
		Batch:        g.batch,
	}
	for m := Metric(0); m < NumMetrics; m++ {
		s.Series[m] = append([]float64(nil), g.series[m]...)
	}
	return s
}

// Restore overwrites the Global's state from a statepoint snapshot.
func (g *Global) Restore(s Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = s.Active
	g.realizations = s.Realizations
	g.batch = s.Batch
	for m := Metric(0); m < NumMetrics; m++ {
		g.series[m] = append([]float64(nil), s.Series[m]...)
	}
}
