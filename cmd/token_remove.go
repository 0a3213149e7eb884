package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tokenRemoveCmd = &cobra.Command{
	Use:     "remove <key>",
	Short:   "Remove (revoke) a token",
	Example: `  vouch token remove 0a1b2c…`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider()
		if err != nil {
			return err
		}
		defer p.Close()

		if err := p.Tokens.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed token %s\n", args[0])
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenRemoveCmd)
}
