// edgefn serves tenant JavaScript functions over HTTP, one isolated engine
// per request.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "edgefn",
	Short: "edgefn runs tenant JavaScript functions behind an HTTP endpoint.",
	Long: `edgefn looks up a stored function by the identifier in the request path,
resolves its tenant's secrets and runs it in a fresh isolation unit under a
hard wall-clock deadline.`,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: edgefn.yaml on the search path)")
	rootCmd.AddCommand(serveCmd, runCmd, deployCmd, secretCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
