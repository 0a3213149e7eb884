package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jnwerner/vouch/internal/core"
)

var consumerAddSecret string

var consumerAddCmd = &cobra.Command{
	Use:   "add <key>",
	Short: "Register a new consumer",
	Long: `Registers a consumer under the given key (conventionally the consumer's
domain name). Unless --secret is given, a random secret is generated and
printed exactly once; it is not retrievable later.`,
	Example: `  vouch consumer add app.example.org`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider()
		if err != nil {
			return err
		}
		defer p.Close()

		secret := consumerAddSecret
		generated := false
		if secret == "" {
			b := make([]byte, 16)
			if _, err := rand.Read(b); err != nil {
				return fmt.Errorf("generating secret: %w", err)
			}
			secret = hex.EncodeToString(b)
			generated = true
		}

		c := &core.Consumer{Key: args[0], Secret: secret}
		if err := p.Consumers.Add(cmd.Context(), c); err != nil {
			return err
		}

		bold := color.New(color.Bold).SprintFunc()
		fmt.Printf("Registered consumer %s\n", bold(c.Key))
		if generated {
			fmt.Printf("Secret (shown once): %s\n", bold(secret))
		}
		return nil
	},
}

func init() {
	consumerAddCmd.Flags().StringVar(&consumerAddSecret, "secret", "", "Consumer secret (generated when omitted)")
	consumerCmd.AddCommand(consumerAddCmd)
}
