package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.pilab.hu/oauth/discovery"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Fetch and print the authorization server metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		md, err := discovery.NewClient(nil).Discover(cmd.Context(), flagIssuer)
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(md)
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}
