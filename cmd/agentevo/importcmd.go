package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-evo/internal/importer"
	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

type importOptions struct {
	file   string
	format string
	out    string
}

func newImportCmd(st *cliState) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:     "import",
		Short:   "Import production bad cases as test cases",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "records file to import (required)")
	cmd.Flags().StringVar(&opts.format, "format", "", "record format: jsonl|csv|yaml (default from config)")
	cmd.Flags().StringVar(&opts.out, "out", "", "output suite file (default tests/imported-<date>.yaml)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(cmd *cobra.Command, st *cliState, opts *importOptions) error {
	provider, err := defaultProviderFromConfig(st.cfg)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	im := importer.New(provider, st.cfg.Import)

	format := opts.format
	if format == "" {
		format = st.cfg.Import.DefaultFormat
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cases, result, err := im.ImportFile(ctx, opts.file, format, st.cfg.Import.ColumnMapping)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	if st.cfg.Import.Deduplicate() {
		existing, err := testcase.LoadGlob(st.cfg.TestCases)
		if err == nil {
			before := len(cases)
			cases = importer.Deduplicate(cases, testcase.Flatten(existing))
			result.DuplicatesRemoved += before - len(cases)
		}
	}
	if len(cases) == 0 {
		return fmt.Errorf("import: no new cases after deduplication")
	}

	outPath := opts.out
	if outPath == "" {
		outPath = fmt.Sprintf("tests/imported-%s.yaml", time.Now().UTC().Format("20060102-150405"))
	}
	suite := &testcase.TestSuite{
		Name:        "imported",
		Description: fmt.Sprintf("Imported from %s", opts.file),
		Cases:       cases,
	}
	if err := testcase.SaveSuite(outPath, suite); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Imported %d of %d record(s), %d duplicate(s) removed\n",
		len(cases), result.TotalRecords, result.DuplicatesRemoved)
	for _, msg := range result.Errors {
		fmt.Fprintf(out, "  skipped: %s\n", msg)
	}
	fmt.Fprintf(out, "Wrote %s (review before promoting: agentevo review)\n", outPath)
	return nil
}
