package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

func newReviewCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "review",
		Short:             "List and resolve cases pending review",
		Args:              cobra.NoArgs,
		PersistentPreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReviewList(cmd, st)
		},
	}

	cmd.AddCommand(newReviewDecisionCmd(st, "approve", testcase.ReviewApproved))
	cmd.AddCommand(newReviewDecisionCmd(st, "reject", testcase.ReviewRejected))
	return cmd
}

func newReviewDecisionCmd(st *cliState, verb string, status testcase.ReviewStatus) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   verb + " <suite-file> [case-id]...",
		Short: verb + " pending cases in a suite file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := args[1:]
			if all {
				pending, err := pendingIDs(args[0])
				if err != nil {
					return fmt.Errorf("review: %w", err)
				}
				ids = pending
			}
			if len(ids) == 0 {
				return fmt.Errorf("review: give case ids or --all")
			}

			decisions := make(map[string]testcase.ReviewStatus, len(ids))
			for _, id := range ids {
				decisions[id] = status
			}
			updated, err := testcase.UpdateReviewStatus(args[0], decisions)
			if err != nil {
				return fmt.Errorf("review: %w", err)
			}
			if updated == 0 {
				return fmt.Errorf("review: no matching case ids in %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d case(s) %s in %s\n", updated, status, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "resolve every pending case in the file")
	return cmd
}

func pendingIDs(path string) ([]string, error) {
	suite, err := testcase.LoadFile(path)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, c := range suite.Cases {
		if c.ReviewStatus == testcase.ReviewPending {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

func runReviewList(cmd *cobra.Command, st *cliState) error {
	suites, err := testcase.LoadGlob(st.cfg.TestCases)
	if err != nil {
		return fmt.Errorf("review: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	pending := 0
	for _, suite := range suites {
		for _, c := range suite.Cases {
			if c.ReviewStatus != testcase.ReviewPending {
				continue
			}
			pending++
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Source, c.Tier, truncateInput(c.Input.Query, 60))
		}
	}
	if pending == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No cases pending review")
		return nil
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d case(s) pending; resolve with: agentevo review approve <file> <id>\n", pending)
	return nil
}

func truncateInput(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
