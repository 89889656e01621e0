package statepoint

import (
	"fmt"
	"path/filepath"
)

/* coordinator.go decides at each batch boundary which snapshot files to
emit. Batch-numbered files are never overwritten; the "latest source"
variant is rewritten every batch so a crash loses at most one batch of
source evolution. */

// Coordinator holds the batch-number predicates for snapshot emission.
type Coordinator struct {
	statepoints  map[int]bool
	sourcepoints map[int]bool
	latestSource bool
}

// NewCoordinator builds a Coordinator from the configured batch sets.
func NewCoordinator(statepointBatches, sourcepointBatches []int, latestSource bool) *Coordinator {
	c := &Coordinator{
		statepoints:  map[int]bool{},
		sourcepoints: map[int]bool{},
		latestSource: latestSource,
	}
	for _, b := range statepointBatches {
		c.statepoints[b] = true
	}
	for _, b := range sourcepointBatches {
		c.sourcepoints[b] = true
	}
	return c
}

// Decide reports which snapshots to emit after the given batch: a full
// statepoint, a source-only snapshot, and/or the continuously-overwritten
// latest-source file.
func (c *Coordinator) Decide(batch int) (full, source, latest bool) {
	return c.statepoints[batch], c.sourcepoints[batch], c.latestSource
}

// StatepointPath is the file name of the full statepoint for a batch.
func StatepointPath(dir string, batch int) string {
	return filepath.Join(dir, fmt.Sprintf("statepoint.%05d.kp", batch))
}

// SourcepointPath is the file name of the source-only snapshot for a batch.
func SourcepointPath(dir string, batch int) string {
	return filepath.Join(dir, fmt.Sprintf("source.%05d.kp", batch))
}

// LatestSourcePath is the fixed name of the continuously-overwritten
// source snapshot.
func LatestSourcePath(dir string) string {
	return filepath.Join(dir, "source.latest.kp")
}
