/*package statepoint contains checkpoint/restart persistence. A statepoint
is a snapshot of everything a run needs to resume exactly: counters, the
random-stream bookkeeping, tally state, and the source population. Files
carry a magic number and format version up front, with the payload
zstd-compressed behind them. Batch boundaries are the only points where a
snapshot is consistent, so the simulation only ever writes one there.
*/
package statepoint

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/DataDog/zstd"
	"github.com/google/uuid"

	"github.com/kestrel-mc/kestrel/lib/bank"
	"github.com/kestrel-mc/kestrel/lib/tally"
)

const (
	// MagicNumber marks kestrel statepoint files, so running on some other
	// file fails loudly instead of producing garbage state.
	MagicNumber = 0x6b733170
	Version     = 1
)

// ErrStateMismatch is wrapped by every error where a loaded statepoint is
// inconsistent with the run trying to resume from it. Mismatches are
// surfaced, never auto-corrected.
var ErrStateMismatch = errors.New("statepoint does not match run state")

var order = binary.LittleEndian

// State is the full resumable snapshot.
type State struct {
	RunID uuid.UUID

	Seed        uint64
	Particles   int64
	GenPerBatch int64

	// CurrentBatch is the last completed batch; TotalGens counts every
	// generation completed since the original run began, across restarts.
	CurrentBatch int64
	TotalGens    int64

	// SourceOnly marks snapshots that carry the source population and
	// counters but no tally state; resuming from one restarts statistics.
	SourceOnly bool

	KeffSeries    []float64
	EntropySeries []float64
	Tallies       tally.Snapshot
	Source        []bank.Site
}

// Write serializes st to path. The file is created or truncated.
func Write(path string, st *State) error {
	body := &bytes.Buffer{}
	writeBody(body, st)

	compressed, err := zstd.Compress(nil, body.Bytes())
	if err != nil {
		return fmt.Errorf("compressing statepoint: %w", err)
	}

	fp, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating statepoint: %w", err)
	}
	defer fp.Close()

	hd := [2]uint32{MagicNumber, Version}
	if err := binary.Write(fp, order, hd[:]); err != nil {
		return fmt.Errorf("writing statepoint header: %w", err)
	}
	if err := binary.Write(fp, order, uint64(len(compressed))); err != nil {
		return fmt.Errorf("writing statepoint header: %w", err)
	}
	if _, err := fp.Write(compressed); err != nil {
		return fmt.Errorf("writing statepoint payload: %w", err)
	}
	return nil
}

// Read loads a statepoint from path, validating the magic number, version,
// and payload length before decoding.
func Read(path string) (*State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading statepoint: %w", err)
	}
	if len(raw) < 16 {
		return nil, fmt.Errorf("%w: file is %d bytes, too short for a header",
			ErrStateMismatch, len(raw))
	}

	var hd [2]uint32
	buf := bytes.NewReader(raw)
	if err := binary.Read(buf, order, hd[:]); err != nil {
		return nil, err
	}
	if hd[0] != MagicNumber {
		return nil, fmt.Errorf("%w: bad magic number 0x%x", ErrStateMismatch, hd[0])
	}
	if hd[1] != Version {
		return nil, fmt.Errorf("%w: format version %d, this build reads %d",
			ErrStateMismatch, hd[1], Version)
	}
	var n uint64
	if err := binary.Read(buf, order, &n); err != nil {
		return nil, err
	}
	if n != uint64(len(raw)-16) {
		return nil, fmt.Errorf("%w: payload length %d, file holds %d",
			ErrStateMismatch, n, len(raw)-16)
	}

	body, err := zstd.Decompress(nil, raw[16:])
	if err != nil {
		return nil, fmt.Errorf("%w: payload does not decompress: %v",
			ErrStateMismatch, err)
	}
	return readBody(bytes.NewReader(body))
}

func writeBody(w *bytes.Buffer, st *State) {
	w.Write(st.RunID[:])
	check(binary.Write(w, order, boolByte(st.SourceOnly)))
	check(binary.Write(w, order, st.Seed))
	check(binary.Write(w, order, st.Particles))
	check(binary.Write(w, order, st.GenPerBatch))
	check(binary.Write(w, order, st.CurrentBatch))
	check(binary.Write(w, order, st.TotalGens))

	writeFloats(w, st.KeffSeries)
	writeFloats(w, st.EntropySeries)

	check(binary.Write(w, order, boolByte(st.Tallies.Active)))
	check(binary.Write(w, order, st.Tallies.Realizations))
	check(binary.Write(w, order, st.Tallies.Batch[:]))
	for m := 0; m < int(tally.NumMetrics); m++ {
		writeFloats(w, st.Tallies.Series[m])
	}

	check(binary.Write(w, order, int64(len(st.Source))))
	w.Write(sitesAsBytes(st.Source))
}

func readBody(r *bytes.Reader) (*State, error) {
	st := &State{}
	if _, err := io.ReadFull(r, st.RunID[:]); err != nil {
		return nil, corrupt(err)
	}
	var b uint8
	if err := binary.Read(r, order, &b); err != nil {
		return nil, corrupt(err)
	}
	st.SourceOnly = b != 0
	if err := binary.Read(r, order, &st.Seed); err != nil {
		return nil, corrupt(err)
	}
	for _, p := range []*int64{
		&st.Particles, &st.GenPerBatch, &st.CurrentBatch, &st.TotalGens,
	} {
		if err := binary.Read(r, order, p); err != nil {
			return nil, corrupt(err)
		}
	}

	var err error
	if st.KeffSeries, err = readFloats(r); err != nil {
		return nil, err
	}
	if st.EntropySeries, err = readFloats(r); err != nil {
		return nil, err
	}

	if err := binary.Read(r, order, &b); err != nil {
		return nil, corrupt(err)
	}
	st.Tallies.Active = b != 0
	if err := binary.Read(r, order, &st.Tallies.Realizations); err != nil {
		return nil, corrupt(err)
	}
	if err := binary.Read(r, order, st.Tallies.Batch[:]); err != nil {
		return nil, corrupt(err)
	}
	for m := 0; m < int(tally.NumMetrics); m++ {
		if st.Tallies.Series[m], err = readFloats(r); err != nil {
			return nil, err
		}
	}

	var n int64
	if err := binary.Read(r, order, &n); err != nil {
		return nil, corrupt(err)
	}
	// Dividing keeps a crafted huge n from overflowing the bound check.
	if n < 0 || n > int64(r.Len())/siteSize {
		return nil, fmt.Errorf("%w: source bank claims %d sites",
			ErrStateMismatch, n)
	}
	st.Source = make([]bank.Site, n)
	if _, err := io.ReadFull(r, sitesAsBytes(st.Source)); err != nil {
		return nil, corrupt(err)
	}
	return st, nil
}

func writeFloats(w *bytes.Buffer, x []float64) {
	check(binary.Write(w, order, int64(len(x))))
	check(binary.Write(w, order, x))
}

func readFloats(r *bytes.Reader) ([]float64, error) {
	var n int64
	if err := binary.Read(r, order, &n); err != nil {
		return nil, corrupt(err)
	}
	if n < 0 || n > int64(r.Len())/8 {
		return nil, fmt.Errorf("%w: series claims %d values", ErrStateMismatch, n)
	}
	x := make([]float64, n)
	if err := binary.Read(r, order, x); err != nil {
		return nil, corrupt(err)
	}
	return x, nil
}

func corrupt(err error) error {
	return fmt.Errorf("%w: truncated payload: %v", ErrStateMismatch, err)
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func check(err error) {
	// bytes.Buffer writes cannot fail.
	if err != nil {
		panic(fmt.Sprintf("Internal error: in-memory serialization failed: %v", err))
	}
}
