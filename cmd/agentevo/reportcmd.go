package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-evo/internal/evaluator"
	"github.com/stellarlinkco/agent-evo/internal/report"
	"github.com/stellarlinkco/agent-evo/internal/store"
)

type reportOptions struct {
	file     string
	jsonOut  bool
	language string
}

func newReportCmd(st *cliState) *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:     "report [run-id]",
		Short:   "Render a stored or saved report",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, st, &opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "read the report from a JSON file instead of the store")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the raw report JSON")
	cmd.Flags().StringVar(&opts.language, "language", "", "report language: en|zh (overrides config)")

	return cmd
}

func runReport(cmd *cobra.Command, st *cliState, opts *reportOptions, args []string) error {
	rep, err := resolveReport(cmd, st, opts, args)
	if err != nil {
		return err
	}

	if opts.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	language := st.cfg.Language
	if opts.language != "" {
		language = opts.language
	}
	printer := report.NewPrinter(cmd.OutOrStdout(), language)
	printer.PrintReport(rep)
	if rep.Diagnosis != nil {
		printer.PrintDiagnosis(rep.Diagnosis)
	}
	if rep.Optimization != nil {
		printer.PrintOptimization(rep.Optimization)
	}
	return nil
}

func resolveReport(cmd *cobra.Command, st *cliState, opts *reportOptions, args []string) (*evaluator.EvalReport, error) {
	if opts.file != "" {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		var rep evaluator.EvalReport
		if err := json.Unmarshal(data, &rep); err != nil {
			return nil, fmt.Errorf("report: parse %s: %w", opts.file, err)
		}
		return &rep, nil
	}

	stor, err := store.Open(st.cfg)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	defer stor.Close()

	id := ""
	if len(args) > 0 {
		id = args[0]
	}
	if id == "" {
		recs, err := stor.ListRuns(cmd.Context(), store.RunFilter{Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		if len(recs) == 0 {
			return nil, fmt.Errorf("report: no evaluation runs recorded")
		}
		id = recs[0].ID
	}

	rec, err := stor.GetRun(cmd.Context(), id)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	if rec.Report == nil {
		return nil, fmt.Errorf("report: run %q has no stored report", id)
	}
	return rec.Report, nil
}
