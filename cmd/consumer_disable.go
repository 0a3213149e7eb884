package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var consumerDisableCmd = &cobra.Command{
	Use:   "disable <key>",
	Short: "Disable a consumer without removing it",
	Long: `Flags the consumer as disabled. Its registration and secret are kept, but
validated lookups treat it as absent, so all its tokens stop working until
it is enabled again.`,
	Example: `  vouch consumer disable app.example.org`,
	Args:    cobra.ExactArgs(1),
	RunE:    func(cmd *cobra.Command, args []string) error { return setDisabled(cmd, args[0], true) },
}

var consumerEnableCmd = &cobra.Command{
	Use:     "enable <key>",
	Short:   "Re-enable a disabled consumer",
	Example: `  vouch consumer enable app.example.org`,
	Args:    cobra.ExactArgs(1),
	RunE:    func(cmd *cobra.Command, args []string) error { return setDisabled(cmd, args[0], false) },
}

func setDisabled(cmd *cobra.Command, key string, disabled bool) error {
	p, err := openProvider()
	if err != nil {
		return err
	}
	defer p.Close()

	c, err := p.Consumers.Get(cmd.Context(), key)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("consumer %q is not registered", key)
	}

	c.Disabled = disabled
	if err := p.Consumers.Update(cmd.Context(), c); err != nil {
		return err
	}

	state := "enabled"
	if disabled {
		state = "disabled"
	}
	fmt.Printf("Consumer %s is now %s\n", key, state)
	return nil
}

func init() {
	consumerCmd.AddCommand(consumerDisableCmd)
	consumerCmd.AddCommand(consumerEnableCmd)
}
