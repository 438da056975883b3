package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-evo/internal/gitpr"
	"github.com/stellarlinkco/agent-evo/internal/optimizer"
	"github.com/stellarlinkco/agent-evo/internal/pipeline"
	"github.com/stellarlinkco/agent-evo/internal/report"
	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

type runOptions struct {
	fix    bool
	pr     bool
	dryRun bool
	tags   []string
	tier   string
	output string
}

func newRunCmd(st *cliState) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Evaluate, diagnose, optimize, and publish",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, st, &opts)
		},
	}

	cmd.Flags().BoolVar(&opts.fix, "fix", false, "diagnose failures and attempt prompt optimization")
	cmd.Flags().BoolVar(&opts.pr, "pr", false, "publish an accepted prompt as a pull request")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "stop after the diagnosis, mutate nothing")
	cmd.Flags().StringSliceVar(&opts.tags, "tags", nil, "only run cases carrying one of these tags")
	cmd.Flags().StringVar(&opts.tier, "tier", "", "only run cases of this tier (gold|silver)")
	cmd.Flags().StringVar(&opts.output, "output", "", "write the full report as JSON to this path")

	return cmd
}

func runPipeline(cmd *cobra.Command, st *cliState, opts *runOptions) error {
	cases, err := pipeline.LoadCases(st.cfg, opts.tags, testcase.Tier(opts.tier))
	if err != nil {
		return err
	}

	provider, err := defaultProviderFromConfig(st.cfg)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	h, err := buildHarness(st.cfg, provider)
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		Config:  st.cfg,
		Agent:   h.agent,
		Gen:     h.gen,
		Eval:    h.eval,
		Printer: report.NewPrinter(cmd.OutOrStdout(), st.cfg.Language),
	}
	if opts.fix {
		p.Agg = &optimizer.Aggregator{Provider: provider}
		p.Opt = optimizer.New(provider, h.agent, h.gen, h.eval, st.cfg.Optimization)
	}
	if opts.pr {
		p.PR = gitpr.NewClient(".", st.cfg.Git.Remote, st.cfg.Git.PRBaseBranch, st.cfg.Git.PRBranchPrefix)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, runErr := p.Run(ctx, cases, pipeline.Options{
		AutoFix:  opts.fix,
		DryRun:   opts.dryRun,
		CreatePR: opts.pr,
		Tags:     opts.tags,
		Tier:     testcase.Tier(opts.tier),
	})
	if result == nil {
		return runErr
	}

	if result.PRURL != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Pull request: %s\n", result.PRURL)
	}
	if opts.output != "" {
		if err := report.SaveJSON(result.Report, opts.output); err != nil {
			return fmt.Errorf("run: %w", err)
		}
	}
	if _, err := saveReportToStore(ctx, st.cfg, result.Report); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if runErr != nil {
		return runErr
	}
	if !result.Success {
		return errEvalFailed
	}
	return nil
}
