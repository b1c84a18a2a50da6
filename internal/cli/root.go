// Package cli implements goodcoins-admin, the operator tool for the
// GoodCoins database.
package cli

import (
	"github.com/goodcoins/backend/internal/config"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "goodcoins-admin",
	Short: "Operate the GoodCoins database",
	Long: `goodcoins-admin applies the schema and audits child balances against
the coin ledger. It reads the same .env file and environment as the server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Init(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to the env file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
