package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-evo/internal/config"
)

var (
	errEvalFailed     = errors.New("agentevo: evaluation failed")
	errReleaseBlocked = errors.New("agentevo: release blocked")
)

var (
	osExit                 = os.Exit
	stderrWriter io.Writer = os.Stderr
)

type cliState struct {
	configPath string
	cfg        *config.Config
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, errEvalFailed) || errors.Is(err, errReleaseBlocked) {
			osExit(1)
			return
		}
		fmt.Fprintln(stderrWriter, err)
		osExit(1)
	}
}

func newRootCmd() *cobra.Command {
	st := &cliState{configPath: config.DefaultPath}

	root := &cobra.Command{
		Use:           "agentevo",
		Short:         "Evaluate and self-optimize LLM agents",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", st.configPath, "path to config file")

	root.AddCommand(newInitCmd())
	root.AddCommand(newEvalCmd(st))
	root.AddCommand(newRunCmd(st))
	root.AddCommand(newMutateCmd(st))
	root.AddCommand(newImportCmd(st))
	root.AddCommand(newReviewCmd(st))
	root.AddCommand(newGateCheckCmd(st))
	root.AddCommand(newReportCmd(st))
	root.AddCommand(newHistoryCmd(st))
	root.AddCommand(newStatsCmd(st))
	root.AddCommand(newServeCmd(st))
	return root
}

// loadConfigPreRun is the shared PreRunE hook that resolves st.cfg.
func loadConfigPreRun(st *cliState) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(st.configPath)
		if err != nil {
			return err
		}
		st.cfg = cfg
		return nil
	}
}
