package cmd

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"swipify/pkg/seal"
)

var secretBytes int

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a value for SWIPIFY_SESSION_SECRET",
	Long: `Print a random base64 secret suitable for SWIPIFY_SESSION_SECRET. The
server derives the session and login binding keys from it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if secretBytes < 32 {
			return fmt.Errorf("--bytes must be at least 32, got %d", secretBytes)
		}
		key, err := seal.GenerateRandomKey(secretBytes)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(key))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(secretCmd)
	secretCmd.Flags().IntVar(&secretBytes, "bytes", 32, "number of random bytes")
}
