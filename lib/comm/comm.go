/*package comm abstracts the cross-process exchange a distributed run needs:
broadcast of control decisions, reduction of tally sums, and the
gather/scatter pair that redistributes fission sites between generations.
The single-process fast path is Serial; NewGroup wires several in-process
"ranks" together so the multi-rank code paths run in ordinary tests. A real
launcher would satisfy Communicator with an MPI binding instead.

All collective calls follow the usual SPMD contract: every rank in the
communicator must call the same operation, in the same order.
*/
package comm

import (
	"fmt"

	"github.com/kestrel-mc/kestrel/lib/bank"
)

// Communicator is the rank-exchange strategy a simulation runs against.
type Communicator interface {
	// Rank returns this process's 0-based rank.
	Rank() int
	// Size returns the number of ranks in the communicator.
	Size() int
	// Barrier blocks until every rank has entered it.
	Barrier()
	// BcastBool returns root's value of v on every rank.
	BcastBool(v bool, root int) bool
	// BcastFloats returns root's value of x on every rank. len(x) must
	// match across ranks.
	BcastFloats(x []float64, root int) []float64
	// ReduceSums element-wise sums each rank's local vector. The reduced
	// vector is returned on root; other ranks get their local vector back.
	ReduceSums(local []float64, root int) []float64
	// GatherSites concatenates every rank's sites in rank order. The merged
	// population is returned on root; other ranks get nil.
	GatherSites(local []bank.Site, root int) []bank.Site
	// ScatterSites hands each rank its contiguous share of root's
	// population, with shares[r] sites going to rank r.
	ScatterSites(all []bank.Site, shares []int64, root int) []bank.Site
}

// Serial is the process-count-1 fast path. Every collective is the identity.
type Serial struct{}

func (Serial) Rank() int { return 0 }
func (Serial) Size() int { return 1 }
func (Serial) Barrier()  {}

func (Serial) BcastBool(v bool, root int) bool { return v }

func (Serial) BcastFloats(x []float64, root int) []float64 { return x }

func (Serial) ReduceSums(local []float64, root int) []float64 { return local }

func (Serial) GatherSites(local []bank.Site, root int) []bank.Site { return local }

func (Serial) ScatterSites(all []bank.Site, shares []int64, root int) []bank.Site {
	if len(shares) != 1 || int64(len(all)) != shares[0] {
		panic(fmt.Sprintf(
			"Internal error: serial scatter of %d sites with shares %d.",
			len(all), shares))
	}
	return all
}
