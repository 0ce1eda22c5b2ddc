package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Recompute document totals",
	Long: `Recompute the stored totals and file counts of documents from their invoices.

By default only documents marked stale by a failed update are repaired.
With --all every document is recomputed.`,
	Example: `  # Repair documents marked stale
  invoicedesk reconcile

  # Recompute every document
  invoicedesk reconcile --all`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().Bool("all", false, "Recompute every document, not only stale ones")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")

	a, err := openApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	r := a.reconciler()
	var n int
	if all {
		n, err = r.RepairAll(cmd.Context())
	} else {
		n, err = r.RepairStale(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	slog.Info("reconcile finished", "repaired", n, "all", all)
	fmt.Fprintf(cmd.OutOrStdout(), "repaired %d document(s)\n", n)
	return nil
}
