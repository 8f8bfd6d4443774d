package cmd

import (
	"os"

	"github.com/procuregov/authcore/internal/config"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "authcore",
	Short: "Authentication, session and rate limiting service for the procurement platform",
	Long: `authcore issues and verifies access and refresh tokens, keeps sessions in
Redis with a durable record store behind them, and enforces per-route rate
limits and per-IP login lockout.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment from this file instead of ./.env")
}

func loadConfig() (config.Config, error) {
	if envFile != "" {
		return config.LoadFile(envFile)
	}
	return config.Load()
}
