package main

import (
	"fmt"

	edgefn "github.com/cryguy/edgefn"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "2026-10-18"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("edgefn %s (commit: %s, built: %s, engine: %s)\n", version, commit, date, edgefn.NewBackend().Name())
	},
}
