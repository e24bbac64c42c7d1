package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Harshitk-cp/symstate/internal/buildconfig"
	"github.com/Harshitk-cp/symstate/internal/config"
	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/Harshitk-cp/symstate/internal/service"
	"github.com/Harshitk-cp/symstate/internal/store"
	"github.com/Harshitk-cp/symstate/internal/verifier"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type rootFlags struct {
	backend string
	format  string
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "symctl",
		Short:         "Inspect and drive a symstate store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(); err != nil {
				return err
			}
			if flags.backend == "" {
				flags.backend = config.SnapshotBackend()
			}
			if flags.format != "yaml" && flags.format != "json" {
				return fmt.Errorf("unknown format %q (valid: yaml, json)", flags.format)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flags.backend, "backend", "", "state backend (defaults to SNAPSHOT_BACKEND)")
	root.PersistentFlags().StringVar(&flags.format, "format", "yaml", "output format: yaml or json")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newVersionCmd(flags),
		newInspectCmd(flags),
		newVerifyCmd(flags),
		newHistoryCmd(flags),
		newContextCmd(flags),
	)
	return root
}

func newVersionCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd.OutOrStdout(), flags.format, buildconfig.VersionInfo())
		},
	}
}

type inspectReport struct {
	Backend   string                    `json:"backend" yaml:"backend"`
	Graph     service.GraphStats        `json:"graph" yaml:"graph"`
	Values    int                       `json:"values" yaml:"values"`
	Goals     int                       `json:"goals" yaml:"goals"`
	Targets   int                       `json:"targets" yaml:"targets"`
	Proofs    map[string]int            `json:"proofs" yaml:"proofs"`
	Verifiers []service.VerifierInfo    `json:"verifiers" yaml:"verifiers"`
	Warnings  []domain.AlignmentWarning `json:"warnings" yaml:"warnings"`
}

func newInspectCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Summarize the stored graph, goals and proof cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openState(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer st.close()

			report := inspectReport{
				Backend:   flags.backend,
				Graph:     st.graph.Stats(),
				Values:    len(st.goals.Values()),
				Goals:     len(st.goals.Goals()),
				Targets:   len(st.goals.Targets()),
				Proofs:    make(map[string]int),
				Verifiers: st.proofs.Verifiers(),
				Warnings:  st.goals.CheckAlignment(),
			}
			for _, rec := range st.proofs.Entries() {
				report.Proofs[string(rec.Result.Status)]++
			}
			return render(cmd.OutOrStdout(), flags.format, report)
		},
	}
}

func newVerifyCmd(flags *rootFlags) *cobra.Command {
	var (
		verifierName string
		timeout      time.Duration
		noSave       bool
	)
	cmd := &cobra.Command{
		Use:   "verify STATEMENT",
		Short: "Verify a statement and record the result in the proof cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openState(ctx, flags)
			if err != nil {
				return err
			}
			defer st.close()

			var rec domain.ProofRecord
			if verifierName == "" {
				rec, err = st.proofs.VerifyAny(ctx, args[0], timeout)
			} else {
				rec, err = st.proofs.Verify(ctx, args[0], verifierName, timeout)
			}
			if err != nil {
				return err
			}
			if !noSave {
				if err := st.flusher.Flush(ctx); err != nil {
					return fmt.Errorf("save proof cache: %w", err)
				}
			}
			return render(cmd.OutOrStdout(), flags.format, rec)
		},
	}
	cmd.Flags().StringVar(&verifierName, "verifier", "", "verifier name (default: first decisive available verifier)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "verifier timeout (default: VERIFIER_TIMEOUT_SECONDS)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not write the result back to the store")
	return cmd
}

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history SYMBOL",
		Short: "Show every snapshotted version of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openState(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer st.close()

			history := st.graph.History(args[0])
			if len(history) == 0 {
				if _, ok := st.graph.Get(args[0]); !ok {
					return fmt.Errorf("%w: %s", service.ErrSymbolNotFound, args[0])
				}
			}
			return render(cmd.OutOrStdout(), flags.format, history)
		},
	}
}

func newContextCmd(flags *rootFlags) *cobra.Command {
	var budget int
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Print the graph compressed to a token budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openState(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer st.close()

			if budget <= 0 {
				budget = config.ContextBudget()
			}
			return render(cmd.OutOrStdout(), flags.format, st.graph.CompressForContext(budget))
		},
	}
	cmd.Flags().IntVar(&budget, "budget", 0, "token budget (default: CONTEXT_BUDGET)")
	return cmd
}

// state is the restored core, wired the same way the server wires it.
type state struct {
	store   domain.StateStore
	graph   *service.MemoryGraph
	goals   *service.GoalTracker
	proofs  *service.ProofEngine
	flusher *service.FlushService
}

func openState(ctx context.Context, flags *rootFlags) (*state, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := zap.NewNop()
	if flags.verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			logger = l
		}
	}

	core, err := config.Core()
	if err != nil {
		return nil, err
	}
	tokens, err := service.NewTokenCounter(config.Tokenizer())
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, flags.backend, store.Options{MaxRetries: config.PersistMaxRetries()}, logger)
	if err != nil {
		return nil, err
	}

	graph := service.NewMemoryGraph(nil, service.MemoryGraphConfig{
		VerifiedBonus:   core.VerifiedBonus,
		ConfidenceFloor: core.ConfidenceFloor,
		RecencyDecay:    core.RecencyDecay,
		Tokens:          tokens,
	}, logger)
	goals := service.NewGoalTracker(graph, core.ReviewInterval, logger)
	proofs := service.NewProofEngine(graph, core.VerifierTimeout, logger)
	for _, v := range verifier.Build(verifier.Options{
		Enabled:   core.EnabledVerifiers,
		Z3Path:    config.Z3Path(),
		LeanPath:  config.LeanPath(),
		External:  config.ExternalVerifiers(),
		FactLimit: config.DatalogFactLimit(),
	}, logger) {
		if err := proofs.Register(v); err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	flusher := service.NewFlushService(st, graph, goals, proofs, logger)
	if err := flusher.Restore(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return &state{store: st, graph: graph, goals: goals, proofs: proofs, flusher: flusher}, nil
}

func (s *state) close() {
	_ = s.store.Close()
}

func render(w io.Writer, format string, v any) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
