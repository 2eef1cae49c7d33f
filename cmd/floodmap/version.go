package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"floodmap/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("floodmap %s (commit %s, built %s)\n",
				version.Version, version.GitCommit, version.BuildTime)
		},
	}
}
