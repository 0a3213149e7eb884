package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jnwerner/vouch/internal/core"
)

var consumerRemoveCmd = &cobra.Command{
	Use:   "remove <key>",
	Short: "Remove a consumer",
	Long: `Removes the consumer registration. Tokens owned by the consumer are not
deleted eagerly; they become invalid the next time they are looked up.`,
	Example: `  vouch consumer remove app.example.org`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider()
		if err != nil {
			return err
		}
		defer p.Close()

		if err := p.Consumers.Remove(cmd.Context(), &core.Consumer{Key: args[0]}); err != nil {
			return err
		}
		fmt.Printf("Removed consumer %s\n", args[0])
		return nil
	},
}

func init() {
	consumerCmd.AddCommand(consumerRemoveCmd)
}
