package comm

/* group.go is an in-memory Communicator connecting n goroutine "ranks".
It exists so the redistribution, reduction, and broadcast paths are real
multi-rank code exercised by tests, not dead branches behind a build tag.
The collective protocol mirrors the blocking MPI calls it stands in for:
each op is two barrier phases, publish then read. */

import (
	"sync"

	"github.com/kestrel-mc/kestrel/lib/bank"
)

// groupBarrier is a cyclic barrier reusable across collective calls.
type groupBarrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	n       int
	arrived int
	gen     int
}

func newGroupBarrier(n int) *groupBarrier {
	b := &groupBarrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *groupBarrier) await() {
	b.mu.Lock()
	gen := b.gen
	b.arrived++
	if b.arrived == b.n {
		b.arrived = 0
		b.gen++
		b.cond.Broadcast()
	} else {
		for gen == b.gen {
			b.cond.Wait()
		}
	}
	b.mu.Unlock()
}

// group is the state shared by all ranks of one in-memory communicator.
// Each slot is written by exactly one rank between barriers, so no lock
// guards them beyond the barrier ordering itself.
type group struct {
	n   int
	bar *groupBarrier

	sums  [][]float64
	sites [][]bank.Site

	flag      bool
	bcast     []float64
	scattered []bank.Site
}

// GroupRank is one rank's handle on an in-memory communicator.
type GroupRank struct {
	g    *group
	rank int
}

// NewGroup creates an n-rank in-memory communicator and returns one handle
// per rank. Each handle must be driven by its own goroutine; collectives
// block until all ranks arrive.
func NewGroup(n int) []*GroupRank {
	g := &group{
		n:     n,
		bar:   newGroupBarrier(n),
		sums:  make([][]float64, n),
		sites: make([][]bank.Site, n),
	}
	ranks := make([]*GroupRank, n)
	for i := range ranks {
		ranks[i] = &GroupRank{g: g, rank: i}
	}
	return ranks
}

func (r *GroupRank) Rank() int { return r.rank }
func (r *GroupRank) Size() int { return r.g.n }
func (r *GroupRank) Barrier()  { r.g.bar.await() }

func (r *GroupRank) BcastBool(v bool, root int) bool {
	if r.rank == root {
		r.g.flag = v
	}
	r.g.bar.await()
	out := r.g.flag
	r.g.bar.await()
	return out
}

func (r *GroupRank) BcastFloats(x []float64, root int) []float64 {
	if r.rank == root {
		r.g.bcast = x
	}
	r.g.bar.await()
	out := append([]float64(nil), r.g.bcast...)
	r.g.bar.await()
	return out
}

func (r *GroupRank) ReduceSums(local []float64, root int) []float64 {
	r.g.sums[r.rank] = local
	r.g.bar.await()
	var out []float64
	if r.rank == root {
		out = make([]float64, len(local))
		// Deterministic rank-major order, so the reduced sums are
		// reproducible run to run.
		for rank := 0; rank < r.g.n; rank++ {
			for i, v := range r.g.sums[rank] {
				out[i] += v
			}
		}
	} else {
		out = append([]float64(nil), local...)
	}
	r.g.bar.await()
	return out
}

func (r *GroupRank) GatherSites(local []bank.Site, root int) []bank.Site {
	r.g.sites[r.rank] = local
	r.g.bar.await()
	var out []bank.Site
	if r.rank == root {
		total := 0
		for rank := 0; rank < r.g.n; rank++ {
			total += len(r.g.sites[rank])
		}
		out = make([]bank.Site, 0, total)
		for rank := 0; rank < r.g.n; rank++ {
			out = append(out, r.g.sites[rank]...)
		}
	}
	r.g.bar.await()
	return out
}

func (r *GroupRank) ScatterSites(all []bank.Site, shares []int64, root int) []bank.Site {
	if r.rank == root {
		r.g.scattered = all
	}
	r.g.bar.await()
	off := bank.Offset(shares, r.rank)
	out := make([]bank.Site, shares[r.rank])
	copy(out, r.g.scattered[off:off+shares[r.rank]])
	r.g.bar.await()
	return out
}
