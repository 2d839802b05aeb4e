package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the cached token",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := storage()
		out := cmd.OutOrStdout()
		if !store.Exists() {
			fmt.Fprintf(out, "Not logged in\n")
			return nil
		}
		if err := store.Delete(); err != nil {
			return err
		}
		fmt.Fprintf(out, "✅ Removed %s\n", store.Path())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
