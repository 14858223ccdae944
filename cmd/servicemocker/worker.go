package main

import (
	"github.com/aretw0/servicemocker/internal/cli"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the worker",
	Long: `Starts the worker: clients connect over the websocket endpoint at /ws and
the admin API exposes connected clients, their storage and version activation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Worker.Listen = listen
		}

		sm := cli.NewSignalManager(cmd.Context())
		defer sm.Stop()

		return cli.RunWorker(sm.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().StringP("listen", "l", "", "Address to listen on (overrides worker.listen)")
}
