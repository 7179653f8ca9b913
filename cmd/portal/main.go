package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "Inventory portal authorization core and notification tooling",
	Long: `portal runs the inventory portal API with its realtime notification client,
a development notification hub, and role table utilities.

Configuration is read from the environment (APP_*, STORE_*, REALTIME_*, HUB_*).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hubCmd)
	rootCmd.AddCommand(rolesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
