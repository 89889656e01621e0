package bank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-mc/kestrel/lib/rng"
)

func TestAppendOverflowBoundary(t *testing.T) {
	b := New(4)
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Append(Site{ParentID: int64(i), Weight: 1}))
	}
	require.Equal(t, 4, b.Len())

	err := b.Append(Site{ParentID: 4, Weight: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBankFull)
	assert.Equal(t, 4, b.Len())
}

func TestResetKeepsCapacity(t *testing.T) {
	b := New(8)
	require.NoError(t, b.Append(Site{Weight: 1}))
	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 8, b.Cap())
}

func TestPartition(t *testing.T) {
	tests := []struct {
		total int64
		ranks int
		want  []int64
	}{
		{10, 1, []int64{10}},
		{10, 2, []int64{5, 5}},
		{10, 3, []int64{4, 3, 3}},
		{10, 4, []int64{3, 3, 2, 2}},
		{3, 5, []int64{1, 1, 1, 0, 0}},
		{0, 3, []int64{0, 0, 0}},
	}

	for i := range tests {
		shares := Partition(tests[i].total, tests[i].ranks)
		assert.Equal(t, tests[i].want, shares, "case %d", i)

		sum := int64(0)
		for _, s := range shares {
			sum += s
		}
		assert.Equal(t, tests[i].total, sum, "case %d shares don't sum to total", i)
	}
}

func TestOffset(t *testing.T) {
	shares := Partition(10, 4)
	assert.Equal(t, int64(0), Offset(shares, 0))
	assert.Equal(t, int64(3), Offset(shares, 1))
	assert.Equal(t, int64(6), Offset(shares, 2))
	assert.Equal(t, int64(8), Offset(shares, 3))
}

func TestResampleCountAndWeight(t *testing.T) {
	sites := make([]Site, 150)
	for i := range sites {
		sites[i] = Site{ParentID: int64(i), Weight: 1}
	}

	for _, n := range []int64{100, 150, 300} {
		out := Resample(sites, n, rng.New(42))
		require.Equal(t, int(n), len(out), "n = %d", n)

		w := 0.0
		for i := range out {
			w += out[i].Weight
		}
		assert.InDelta(t, 150.0, w, 1e-9, "n = %d total weight", n)
	}
}

func TestResampleDeterministic(t *testing.T) {
	sites := make([]Site, 97)
	for i := range sites {
		sites[i] = Site{ParentID: int64(i), Weight: 0.5 + float64(i%3)}
	}
	a := Resample(sites, 64, rng.New(7))
	b := Resample(sites, 64, rng.New(7))
	assert.Equal(t, a, b)
}
