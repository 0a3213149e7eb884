package cmd

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:    "debug",
	Short:  "Debugging helpers",
	Hidden: true,
}

var debugDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump all stored consumers and tokens",
	Long: `Dumps the raw store contents, secrets included. Meant for local
debugging only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider()
		if err != nil {
			return err
		}
		defer p.Close()

		ckeys, err := p.Consumers.AllKeys(cmd.Context())
		if err != nil {
			return err
		}
		for _, key := range ckeys {
			c, err := p.Consumers.Get(cmd.Context(), key)
			if err != nil {
				return err
			}
			spew.Dump(c)
		}

		tkeys, err := p.Tokens.AllKeys(cmd.Context())
		if err != nil {
			return err
		}
		for _, key := range tkeys {
			t, err := p.Tokens.Get(cmd.Context(), key)
			if err != nil {
				return err
			}
			spew.Dump(t)
		}
		return nil
	},
}

func init() {
	debugCmd.AddCommand(debugDumpCmd)
	rootCmd.AddCommand(debugCmd)
}
