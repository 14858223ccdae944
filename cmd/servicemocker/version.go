package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/servicemocker"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of servicemocker",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("servicemocker version %s\n", strings.TrimSpace(servicemocker.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
