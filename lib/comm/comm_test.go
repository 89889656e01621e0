package comm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-mc/kestrel/lib/bank"
)

// runRanks drives one function per rank and waits for all of them.
func runRanks(ranks []*GroupRank, f func(r *GroupRank)) {
	var wg sync.WaitGroup
	for _, r := range ranks {
		wg.Add(1)
		go func(r *GroupRank) {
			defer wg.Done()
			f(r)
		}(r)
	}
	wg.Wait()
}

func TestSerialIdentity(t *testing.T) {
	s := Serial{}
	assert.Equal(t, 0, s.Rank())
	assert.Equal(t, 1, s.Size())
	assert.True(t, s.BcastBool(true, 0))

	sums := []float64{1, 2, 3}
	assert.Equal(t, sums, s.ReduceSums(sums, 0))

	sites := []bank.Site{{ParentID: 1}, {ParentID: 2}}
	assert.Equal(t, sites, s.GatherSites(sites, 0))
	assert.Equal(t, sites, s.ScatterSites(sites, []int64{2}, 0))
}

func TestGroupBcastBool(t *testing.T) {
	ranks := NewGroup(4)
	var mu sync.Mutex
	got := map[int]bool{}
	runRanks(ranks, func(r *GroupRank) {
		// Only root's value matters; other ranks pass garbage.
		v := r.BcastBool(r.Rank() == 2, 2)
		mu.Lock()
		got[r.Rank()] = v
		mu.Unlock()
	})
	for rank := 0; rank < 4; rank++ {
		assert.True(t, got[rank], "rank %d", rank)
	}
}

func TestGroupBcastFloats(t *testing.T) {
	ranks := NewGroup(3)
	var mu sync.Mutex
	got := map[int][]float64{}
	runRanks(ranks, func(r *GroupRank) {
		var local []float64
		if r.Rank() == 1 {
			local = []float64{1.5, 2.5}
		}
		out := r.BcastFloats(local, 1)
		mu.Lock()
		got[r.Rank()] = out
		mu.Unlock()
	})
	for rank := 0; rank < 3; rank++ {
		assert.Equal(t, []float64{1.5, 2.5}, got[rank], "rank %d", rank)
	}
}

func TestGroupReduceSums(t *testing.T) {
	ranks := NewGroup(3)
	var mu sync.Mutex
	got := map[int][]float64{}
	runRanks(ranks, func(r *GroupRank) {
		local := []float64{float64(r.Rank()), 1}
		out := r.ReduceSums(local, 0)
		mu.Lock()
		got[r.Rank()] = out
		mu.Unlock()
	})
	assert.Equal(t, []float64{3, 3}, got[0])
	assert.Equal(t, []float64{1, 1}, got[1])
	assert.Equal(t, []float64{2, 1}, got[2])
}

func TestGroupGatherScatterRoundTrip(t *testing.T) {
	// 10 sites over 3 ranks: gather to root, scatter back out, and check
	// that every rank ends with its contiguous share in global order.
	total := int64(10)
	shares := bank.Partition(total, 3)
	ranks := NewGroup(3)

	var mu sync.Mutex
	got := map[int][]bank.Site{}
	runRanks(ranks, func(r *GroupRank) {
		off := bank.Offset(shares, r.Rank())
		local := make([]bank.Site, shares[r.Rank()])
		for i := range local {
			local[i] = bank.Site{ParentID: off + int64(i), Weight: 1}
		}

		all := r.GatherSites(local, 0)
		if r.Rank() == 0 {
			require.Len(t, all, int(total))
			for i := range all {
				require.Equal(t, int64(i), all[i].ParentID, "gather order broken")
			}
		} else {
			require.Nil(t, all)
		}

		out := r.ScatterSites(all, shares, 0)
		mu.Lock()
		got[r.Rank()] = out
		mu.Unlock()
	})

	for rank := 0; rank < 3; rank++ {
		off := bank.Offset(shares, rank)
		require.Len(t, got[rank], int(shares[rank]), "rank %d", rank)
		for i, s := range got[rank] {
			assert.Equal(t, off+int64(i), s.ParentID, "rank %d slot %d", rank, i)
		}
	}
}

func TestGroupRepeatedCollectives(t *testing.T) {
	// The barrier must recycle cleanly across many back-to-back ops.
	ranks := NewGroup(4)
	runRanks(ranks, func(r *GroupRank) {
		for i := 0; i < 50; i++ {
			want := i%2 == 0
			v := r.BcastBool(r.Rank() == 0 && want, 0)
			require.Equal(t, want, v, "iteration %d rank %d", i, r.Rank())
			r.Barrier()
		}
	})
}
