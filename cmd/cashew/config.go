package main

import (
	"github.com/spf13/cobra"
	"github.com/vulpemventures/cashew/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "print the current configuration",
	Long: "this command prints the configuration read from the environment, " +
		"with secrets masked",
	RunE: func(_ *cobra.Command, _ []string) error {
		return printJSON(config.AllSettings())
	},
}
