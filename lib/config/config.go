/*package config contains the run configuration. Values arrive from a YAML
file (or are built directly by a host application), are validated up front,
and are read-only for the rest of the run.
*/
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Run modes.
const (
	ModeEigenvalue  = "eigenvalue"
	ModeFixedSource = "fixed_source"
)

// TriggerSpec configures one convergence trigger on a named tally metric.
type TriggerSpec struct {
	Metric string  `yaml:"metric"`
	RelErr float64 `yaml:"rel_err"`
}

// Triplet identifies one particle history by (batch, generation, particle
// global id), for trace and track diagnostics.
type Triplet struct {
	Batch      int   `yaml:"batch"`
	Generation int   `yaml:"generation"`
	Particle   int64 `yaml:"particle"`
}

// Config is the full run configuration.
type Config struct {
	Particles   int64  `yaml:"particles"`
	Batches     int    `yaml:"batches"`
	Inactive    int    `yaml:"inactive"`
	GenPerBatch int    `yaml:"gen_per_batch"`
	Seed        uint64 `yaml:"seed"`
	Threads     int    `yaml:"threads"`
	Mode        string `yaml:"mode"`

	// BankFactor sizes each worker's fission-bank segment as a multiple of
	// its particle share. Fission beyond the sized capacity is fatal, so a
	// run that trips the limit should raise this rather than expect a
	// silent resize.
	BankFactor float64 `yaml:"bank_factor"`

	// EntropyBins is the number of entropy-mesh bins along each spatial
	// axis used for the Shannon entropy diagnostic; 0 disables it.
	EntropyBins int `yaml:"entropy_bins"`

	StatepointBatches  []int  `yaml:"statepoint_batches"`
	SourcepointBatches []int  `yaml:"sourcepoint_batches"`
	LatestSource       bool   `yaml:"latest_source"`
	OutputDir          string `yaml:"output_dir"`

	Triggers []TriggerSpec `yaml:"triggers"`

	Trace    *Triplet  `yaml:"trace"`
	Tracks   []Triplet `yaml:"tracks"`
	TrackAll bool      `yaml:"track_all"`
}

// Default returns a configuration with every tunable at its default. The
// caller still needs to set Particles and Batches.
func Default() *Config {
	return &Config{
		GenPerBatch: 1,
		Seed:        1,
		Threads:     runtime.NumCPU(),
		Mode:        ModeEigenvalue,
		BankFactor:  3.0,
		EntropyBins: 0,
		OutputDir:   ".",
	}
}

// Load reads and validates a YAML configuration file. Fields absent from
// the file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the run cannot proceed with.
func (c *Config) Validate() error {
	switch {
	case c.Particles <= 0:
		return fmt.Errorf("particles must be positive, got %d", c.Particles)
	case c.Batches <= 0:
		return fmt.Errorf("batches must be positive, got %d", c.Batches)
	case c.Inactive < 0:
		return fmt.Errorf("inactive batches must be non-negative, got %d", c.Inactive)
	case c.Inactive >= c.Batches:
		return fmt.Errorf(
			"inactive batches (%d) must be fewer than total batches (%d)",
			c.Inactive, c.Batches)
	case c.GenPerBatch <= 0:
		return fmt.Errorf("gen_per_batch must be positive, got %d", c.GenPerBatch)
	case c.Threads <= 0:
		return fmt.Errorf("threads must be positive, got %d", c.Threads)
	case c.BankFactor < 1:
		return fmt.Errorf("bank_factor must be at least 1, got %g", c.BankFactor)
	case c.EntropyBins < 0:
		return fmt.Errorf("entropy_bins must be non-negative, got %d", c.EntropyBins)
	}

	if c.Mode != ModeEigenvalue && c.Mode != ModeFixedSource {
		return fmt.Errorf(
			"mode must be '%s' or '%s', got '%s'",
			ModeEigenvalue, ModeFixedSource, c.Mode)
	}
	if c.Mode == ModeFixedSource && c.Inactive != 0 {
		return fmt.Errorf(
			"fixed-source runs have no inactive batches, got %d", c.Inactive)
	}

	for i, tr := range c.Triggers {
		if tr.RelErr <= 0 {
			return fmt.Errorf("trigger %d: rel_err must be positive, got %g",
				i, tr.RelErr)
		}
	}
	return nil
}
