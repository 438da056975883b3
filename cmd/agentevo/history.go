package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-evo/internal/store"
)

type historyOptions struct {
	limit int
	since string
}

func newHistoryCmd(st *cliState) *cobra.Command {
	var opts historyOptions

	cmd := &cobra.Command{
		Use:               "history",
		Short:             "List recorded evaluation runs",
		Args:              cobra.NoArgs,
		PersistentPreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd, st, &opts)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 20, "max runs to list")
	cmd.Flags().StringVar(&opts.since, "since", "", "only runs since date (YYYY-MM-DD or RFC3339)")

	cmd.AddCommand(newStatsCmd(st))
	return cmd
}

func runHistoryList(cmd *cobra.Command, st *cliState, opts *historyOptions) error {
	stor, err := store.Open(st.cfg)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer stor.Close()

	filter := store.RunFilter{Limit: opts.limit}
	if opts.since != "" {
		since, err := parseSince(opts.since)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		filter.Since = since
	}

	recs, err := stor.ListRuns(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tFINISHED\tCASES\tPASS RATE\tGATE\tOPTIMIZED")
	for _, rec := range recs {
		gate := "ok"
		if rec.ReleaseBlocked {
			gate = "blocked"
		}
		optimized := ""
		if rec.Optimized {
			optimized = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%.1f%%\t%s\t%s\n",
			rec.ID, rec.FinishedAt.Local().Format("2006-01-02 15:04"),
			rec.Total, rec.PassRate*100, gate, optimized)
	}
	return w.Flush()
}

func newStatsCmd(st *cliState) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "stats",
		Short:   "Summarize recent run history",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, st, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max runs to summarize")
	return cmd
}

func runStats(cmd *cobra.Command, st *cliState, limit int) error {
	stor, err := store.Open(st.cfg)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	defer stor.Close()

	recs, err := stor.ListRuns(cmd.Context(), store.RunFilter{Limit: limit})
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
		return nil
	}

	var rateSum float64
	blocked, optimized := 0, 0
	best := recs[0]
	for _, rec := range recs {
		rateSum += rec.PassRate
		if rec.ReleaseBlocked {
			blocked++
		}
		if rec.Optimized {
			optimized++
		}
		if rec.PassRate > best.PassRate {
			best = rec
		}
	}

	// recs is newest first.
	latest, oldest := recs[0], recs[len(recs)-1]
	trend := latest.PassRate - oldest.PassRate

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Runs: %d (%s to %s)\n", len(recs),
		oldest.FinishedAt.Local().Format("2006-01-02"), latest.FinishedAt.Local().Format("2006-01-02"))
	fmt.Fprintf(out, "Average pass rate: %.1f%%\n", rateSum/float64(len(recs))*100)
	fmt.Fprintf(out, "Latest pass rate:  %.1f%% (%+.1f%% vs oldest shown)\n", latest.PassRate*100, trend*100)
	fmt.Fprintf(out, "Best run: %s at %.1f%%\n", best.ID, best.PassRate*100)
	fmt.Fprintf(out, "Release blocked: %d run(s)\n", blocked)
	fmt.Fprintf(out, "Optimized: %d run(s)\n", optimized)
	return nil
}

func parseSince(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD or RFC3339", raw)
}
