// Package cmd holds the invoicedesk command line.
package cmd

import (
	"log/slog"
	"os"

	"github.com/satheeshds/invoicedesk/config"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "invoicedesk",
	Short: "Invoice ingestion and review service",
	Long: `invoicedesk stores uploaded invoice images and PDFs, extracts their fields
with a vision model and files them under documents for review.

Settings come from environment variables (a .env file is loaded when present)
and optionally from the YAML file named by --config or CONFIG_FILE.`,
	Version:      version,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		c, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = c
		slog.SetDefault(cfg.Logger())
		return nil
	},
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", os.Getenv("CONFIG_FILE"), "YAML config file")
}
