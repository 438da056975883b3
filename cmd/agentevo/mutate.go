package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-evo/internal/mutator"
	"github.com/stellarlinkco/agent-evo/internal/pipeline"
	"github.com/stellarlinkco/agent-evo/internal/prompt"
	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

type mutateOptions struct {
	tags    []string
	count   int
	out     string
	prompts string
}

func newMutateCmd(st *cliState) *cobra.Command {
	var opts mutateOptions

	cmd := &cobra.Command{
		Use:     "mutate",
		Short:   "Generate test case variants from existing seeds",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMutate(cmd, st, &opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.tags, "tags", nil, "only mutate seeds carrying one of these tags")
	cmd.Flags().IntVar(&opts.count, "count", 0, "variants per seed (overrides config)")
	cmd.Flags().StringVar(&opts.out, "out", "", "output suite file (default tests/mutations-<date>.yaml)")
	cmd.Flags().StringVar(&opts.prompts, "prompts", "prompts", "prompt override directory")

	return cmd
}

func runMutate(cmd *cobra.Command, st *cliState, opts *mutateOptions) error {
	seeds, err := pipeline.LoadCases(st.cfg, opts.tags, "")
	if err != nil {
		return err
	}

	provider, err := defaultProviderFromConfig(st.cfg)
	if err != nil {
		return fmt.Errorf("mutate: %w", err)
	}

	mutCfg := st.cfg.Mutation
	if opts.count > 0 {
		mutCfg.CountPerCase = opts.count
	}
	m := mutator.New(provider, mutCfg)
	if tmpl, ok := prompt.NewLibrary(opts.prompts).Override("mutate"); ok {
		m.Template = tmpl
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	generated, err := m.Mutate(ctx, seeds)
	if err != nil {
		return fmt.Errorf("mutate: %w", err)
	}
	if len(generated) == 0 {
		return fmt.Errorf("mutate: no variants generated")
	}
	if mutCfg.Review() {
		generated = m.Review(ctx, generated)
	}

	outPath := opts.out
	if outPath == "" {
		outPath = fmt.Sprintf("tests/mutations-%s.yaml", time.Now().UTC().Format("20060102-150405"))
	}
	suite := &testcase.TestSuite{
		Name:        "mutations",
		Description: fmt.Sprintf("Generated variants of %d seed case(s)", len(seeds)),
		Cases:       generated,
	}
	if err := testcase.SaveSuite(outPath, suite); err != nil {
		return fmt.Errorf("mutate: %w", err)
	}

	rejected := 0
	for _, c := range generated {
		if c.ReviewStatus == testcase.ReviewRejected {
			rejected++
		}
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Generated %d variant(s) from %d seed(s)\n", len(generated), len(seeds))
	if rejected > 0 {
		fmt.Fprintf(out, "Pre-review rejected %d variant(s)\n", rejected)
	}
	fmt.Fprintf(out, "Wrote %s (review before promoting: agentevo review)\n", outPath)
	return nil
}
