package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-evo/api"
	"github.com/stellarlinkco/agent-evo/internal/store"
)

func newServeCmd(st *cliState) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve run history and gate status over HTTP",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			stor, err := store.Open(st.cfg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer stor.Close()

			srv, err := api.NewServer(st.cfg, stor)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			listen := addr
			if listen == "" {
				listen = st.cfg.Server.Addr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", listen)
			return srv.Run(listen)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
