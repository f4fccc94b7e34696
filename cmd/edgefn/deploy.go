package main

import (
	"fmt"
	"os"

	"github.com/cryguy/edgefn/internal/core"
	"github.com/spf13/cobra"
)

var (
	deployTenant string
	deployStatus string
)

var deployCmd = &cobra.Command{
	Use:   "deploy <identifier> <file>",
	Short: "Store a function in the configured registry",
	Args:  cobra.ExactArgs(2),
	RunE:  runDeploy,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored function identifiers",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var removeCmd = &cobra.Command{
	Use:   "remove <identifier>",
	Short: "Delete a function from the registry",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	deployCmd.Flags().StringVar(&deployTenant, "tenant", "default", "tenant owning the function")
	deployCmd.Flags().StringVar(&deployStatus, "status", string(core.StatusActive), "active, inactive or draft")
	deployCmd.AddCommand(listCmd, removeCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	b, err := openBackends(cmd.Context(), settings, newLogger(settings.LogLevel))
	if err != nil {
		return err
	}
	defer b.Close()

	def := &core.FunctionDefinition{
		Identifier: args[0],
		Tenant:     deployTenant,
		SourceCode: string(source),
		Status:     core.Status(deployStatus),
	}
	if err := b.Registry.Put(cmd.Context(), def); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deployed %s (%s, %d bytes)\n", def.Identifier, def.Status, len(source))
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	b, err := openBackends(cmd.Context(), settings, newLogger(settings.LogLevel))
	if err != nil {
		return err
	}
	defer b.Close()

	ids, err := b.Registry.List(cmd.Context())
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	b, err := openBackends(cmd.Context(), settings, newLogger(settings.LogLevel))
	if err != nil {
		return err
	}
	defer b.Close()

	return b.Registry.Delete(cmd.Context(), args[0])
}
