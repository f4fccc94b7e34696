package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage tenant secrets",
}

var secretSetCmd = &cobra.Command{
	Use:   "set <tenant> <key> <value>",
	Short: "Set one secret for a tenant",
	Args:  cobra.ExactArgs(3),
	RunE:  runSecretSet,
}

func init() {
	secretCmd.AddCommand(secretSetCmd)
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	b, err := openBackends(cmd.Context(), settings, newLogger(settings.LogLevel))
	if err != nil {
		return err
	}
	defer b.Close()

	if b.SecretWriter == nil {
		return fmt.Errorf("secrets driver %q is read-only", settings.SecretsDriver)
	}
	return b.SecretWriter.Set(cmd.Context(), args[0], args[1], args[2])
}
