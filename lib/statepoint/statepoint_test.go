package statepoint

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-mc/kestrel/lib/bank"
	"github.com/kestrel-mc/kestrel/lib/tally"
)

func sampleState() *State {
	st := &State{
		RunID:         uuid.New(),
		Seed:          99,
		Particles:     1000,
		GenPerBatch:   2,
		CurrentBatch:  7,
		TotalGens:     14,
		KeffSeries:    []float64{1.01, 0.99, 1.002},
		EntropySeries: []float64{3.1, 3.05},
	}
	st.Tallies.Active = true
	st.Tallies.Realizations = 4
	st.Tallies.Batch = [tally.NumMetrics]float64{1, 2, 3, 4}
	for m := 0; m < int(tally.NumMetrics); m++ {
		st.Tallies.Series[m] = []float64{float64(m), float64(m) * 0.5}
	}
	for i := 0; i < 50; i++ {
		st.Source = append(st.Source, bank.Site{
			Position:  [3]float64{float64(i), 0, 0},
			Direction: [3]float64{1, 0, 0},
			Energy:    1,
			Weight:    math.Pi,
			ParentID:  int64(i),
		})
	}
	return st
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statepoint.00007.kp")
	want := sampleState()
	require.NoError(t, Write(path, want))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadEmptySeriesAndBank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.kp")
	want := &State{RunID: uuid.New(), Seed: 1, Particles: 10,
		GenPerBatch: 1, CurrentBatch: 0, SourceOnly: true}
	require.NoError(t, Write(path, want))

	got, err := Read(path)
	require.NoError(t, err)
	assert.True(t, got.SourceOnly)
	assert.Empty(t, got.Source)
	assert.Empty(t, got.KeffSeries)
}

func TestReadRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-statepoint")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a statepoint"), 0o644))

	_, err := Read(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestReadRejectsTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "statepoint.kp")
	require.NoError(t, Write(path, sampleState()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	short := filepath.Join(dir, "short.kp")
	require.NoError(t, os.WriteFile(short, raw[:len(raw)-8], 0o644))

	_, err = Read(short)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestReadRejectsAbsurdLengths(t *testing.T) {
	// A corrupt payload can claim a series or bank length whose byte size
	// overflows int64; the decoder must reject the length outright instead
	// of attempting the allocation.
	prefix := func() *bytes.Buffer {
		w := &bytes.Buffer{}
		id := uuid.New()
		w.Write(id[:])
		require.NoError(t, binary.Write(w, order, boolByte(false)))
		require.NoError(t, binary.Write(w, order, uint64(1)))
		for i := 0; i < 4; i++ {
			require.NoError(t, binary.Write(w, order, int64(0)))
		}
		return w
	}
	huge := int64(math.MaxInt64 / 2)

	// Series length field.
	w := prefix()
	require.NoError(t, binary.Write(w, order, huge))
	_, err := readBody(bytes.NewReader(w.Bytes()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateMismatch)

	// Site count field.
	w = prefix()
	writeFloats(w, nil)
	writeFloats(w, nil)
	require.NoError(t, binary.Write(w, order, boolByte(false)))
	require.NoError(t, binary.Write(w, order, int64(0)))
	require.NoError(t, binary.Write(w, order, [tally.NumMetrics]float64{}))
	for m := 0; m < int(tally.NumMetrics); m++ {
		writeFloats(w, nil)
	}
	require.NoError(t, binary.Write(w, order, huge))
	_, err = readBody(bytes.NewReader(w.Bytes()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestWriteOverwritesLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.latest.kp")
	a := sampleState()
	a.CurrentBatch = 1
	require.NoError(t, Write(path, a))
	b := sampleState()
	b.CurrentBatch = 2
	require.NoError(t, Write(path, b))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.CurrentBatch)
}

func TestCoordinatorDecide(t *testing.T) {
	c := NewCoordinator([]int{5, 10}, []int{2, 5}, true)

	full, source, latest := c.Decide(5)
	assert.True(t, full)
	assert.True(t, source)
	assert.True(t, latest)

	full, source, _ = c.Decide(2)
	assert.False(t, full)
	assert.True(t, source)

	full, source, latest = c.Decide(3)
	assert.False(t, full)
	assert.False(t, source)
	assert.True(t, latest)

	_, _, latest = NewCoordinator(nil, nil, false).Decide(1)
	assert.False(t, latest)
}

func TestPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "statepoint.00012.kp"), StatepointPath("out", 12))
	assert.Equal(t, filepath.Join("out", "source.00012.kp"), SourcepointPath("out", 12))
	assert.Equal(t, filepath.Join("out", "source.latest.kp"), LatestSourcePath("out"))
}
