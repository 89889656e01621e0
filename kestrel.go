package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrel-mc/kestrel/lib/comm"
	"github.com/kestrel-mc/kestrel/lib/config"
	"github.com/kestrel-mc/kestrel/lib/physics"
	"github.com/kestrel-mc/kestrel/lib/sim"
	"github.com/kestrel-mc/kestrel/lib/statepoint"
)

var verbose bool

func main() {
	root := &cobra.Command{
		Use:           "kestrel",
		Short:         "Monte Carlo particle-transport execution core",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(runCmd(), resumeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: level}))
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Run a simulation from a fresh source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			s := sim.New(cfg, physics.DefaultSlab(), comm.Serial{}, newLogger())
			if err := s.Initialize(); err != nil {
				return err
			}
			return drive(cmd.Context(), s)
		},
	}
}

func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <config.yaml> <statepoint>",
		Short: "Resume a simulation from a statepoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			st, err := statepoint.Read(args[1])
			if err != nil {
				return err
			}
			s := sim.New(cfg, physics.DefaultSlab(), comm.Serial{}, newLogger())
			if err := s.InitializeFrom(st); err != nil {
				return err
			}
			return drive(cmd.Context(), s)
		},
	}
}

// drive advances the simulation batch by batch until the budget is spent or
// a convergence trigger fires.
func drive(ctx context.Context, s *sim.Simulation) error {
	defer s.Finalize()
	for {
		status, err := s.AdvanceOneBatch(ctx)
		if err != nil {
			return err
		}
		if status != sim.StatusNormal {
			return s.Finalize()
		}
	}
}
