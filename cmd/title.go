package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var nextTitleCmd = &cobra.Command{
	Use:   "next-title",
	Short: "Print the next free document title",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		alloc, err := a.titles()
		if err != nil {
			return err
		}
		title, err := alloc.Next(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nextTitleCmd)
}
