package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-evo/internal/ci"
	"github.com/stellarlinkco/agent-evo/internal/store"
)

func newGateCheckCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:     "gate-check",
		Short:   "Exit nonzero when the latest run blocks release",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateCheck(cmd, st)
		},
	}
}

func runGateCheck(cmd *cobra.Command, st *cliState) error {
	stor, err := store.Open(st.cfg)
	if err != nil {
		return fmt.Errorf("gate-check: %w", err)
	}
	defer stor.Close()

	ctx := cmd.Context()
	recs, err := stor.ListRuns(ctx, store.RunFilter{Limit: 1})
	if err != nil {
		return fmt.Errorf("gate-check: %w", err)
	}
	if len(recs) == 0 {
		return fmt.Errorf("gate-check: no evaluation runs recorded; run agentevo eval first")
	}

	rec, err := stor.GetRun(ctx, recs[0].ID)
	if err != nil {
		return fmt.Errorf("gate-check: %w", err)
	}

	out := cmd.OutOrStdout()
	if rec.Report != nil && ci.Detect() {
		reporter := &ci.Reporter{Out: out}
		if err := reporter.PublishGate(rec.Report); err != nil {
			return fmt.Errorf("gate-check: %w", err)
		}
	}

	if rec.ReleaseBlocked {
		tags := ""
		if rec.Report != nil {
			tags = strings.Join(rec.Report.BlockingTags, ", ")
		}
		fmt.Fprintf(out, "Release BLOCKED by run %s", rec.ID)
		if tags != "" {
			fmt.Fprintf(out, " (tags: %s)", tags)
		}
		fmt.Fprintln(out)
		return errReleaseBlocked
	}

	fmt.Fprintf(out, "Release gate passed: run %s, pass rate %.1f%%\n", rec.ID, rec.PassRate*100)
	return nil
}
