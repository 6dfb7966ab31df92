package cli

import (
	"fmt"

	"github.com/davarch/ci-tracker/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the GitLab access token",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set <token>",
	Short: "Store the GitLab access token in config.yaml",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.NewStore(cfgPath).SaveToken(args[0]); err != nil {
			return err
		}
		fmt.Printf("token saved to %s\n", cfgPath)
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenSetCmd)
	rootCmd.AddCommand(tokenCmd)
}
