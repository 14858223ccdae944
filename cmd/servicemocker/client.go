package main

import (
	"context"

	"github.com/aretw0/servicemocker/internal/cli"
	"github.com/spf13/cobra"
)

var clientCmd = &cobra.Command{
	Use:   "client [script]",
	Short: "Register a client with the worker",
	Long: `Registers the given worker script for the configured scope, serves storage
requests from the configured backend and follows worker updates until
interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			cfg.Script = args[0]
		}
		if scope, _ := cmd.Flags().GetString("scope"); scope != "" {
			cfg.Scope = scope
		}
		if url, _ := cmd.Flags().GetString("worker"); url != "" {
			cfg.Worker.URL = url
		}

		sm := cli.NewSignalManager(cmd.Context())
		defer sm.Stop()

		// The session outlives the signal so the unload notification can still reach the worker.
		return cli.RunClient(context.WithoutCancel(sm.Context()), cfg, sm.Context().Done(), logger)
	},
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.Flags().StringP("scope", "s", "", "Scope to register for (overrides scope)")
	clientCmd.Flags().StringP("worker", "w", "", "Worker websocket URL (overrides worker.url)")
}
