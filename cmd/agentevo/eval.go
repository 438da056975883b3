package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-evo/internal/config"
	"github.com/stellarlinkco/agent-evo/internal/evaluator"
	"github.com/stellarlinkco/agent-evo/internal/pipeline"
	"github.com/stellarlinkco/agent-evo/internal/report"
	"github.com/stellarlinkco/agent-evo/internal/store"
	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

type evalOptions struct {
	tags   []string
	tier   string
	output string
}

func newEvalCmd(st *cliState) *cobra.Command {
	var opts evalOptions

	cmd := &cobra.Command{
		Use:     "eval",
		Short:   "Run the test suite against the agent",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, st, &opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.tags, "tags", nil, "only run cases carrying one of these tags")
	cmd.Flags().StringVar(&opts.tier, "tier", "", "only run cases of this tier (gold|silver)")
	cmd.Flags().StringVar(&opts.output, "output", "", "write the full report as JSON to this path")

	return cmd
}

func runEval(cmd *cobra.Command, st *cliState, opts *evalOptions) error {
	cases, err := pipeline.LoadCases(st.cfg, opts.tags, testcase.Tier(opts.tier))
	if err != nil {
		return err
	}

	provider, err := defaultProviderFromConfig(st.cfg)
	if err != nil {
		return fmt.Errorf("eval: %w", err)
	}
	h, err := buildHarness(st.cfg, provider)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runs, err := h.gen.RunAll(ctx, cases)
	if err != nil {
		return fmt.Errorf("eval: %w", err)
	}
	rep := h.eval.EvaluateAll(ctx, runs)

	printer := report.NewPrinter(cmd.OutOrStdout(), st.cfg.Language)
	printer.PrintReport(rep)

	if opts.output != "" {
		if err := report.SaveJSON(rep, opts.output); err != nil {
			return fmt.Errorf("eval: %w", err)
		}
	}
	if _, err := saveReportToStore(ctx, st.cfg, rep); err != nil {
		return fmt.Errorf("eval: %w", err)
	}

	if rep.Failed+rep.Errors > 0 {
		return errEvalFailed
	}
	return nil
}

func saveReportToStore(ctx context.Context, cfg *config.Config, rep *evaluator.EvalReport) (string, error) {
	stor, err := store.Open(cfg)
	if err != nil {
		return "", fmt.Errorf("open store: %w", err)
	}
	defer stor.Close()

	runID, err := newRunID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	if err := stor.SaveRun(ctx, runID, rep); err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	return runID, nil
}
