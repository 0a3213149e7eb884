package cmd

import (
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var consumerListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List registered consumers",
	Example: `  vouch consumer list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider()
		if err != nil {
			return err
		}
		defer p.Close()

		keys, err := p.Consumers.AllKeys(cmd.Context())
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			log.Info().Msg("No consumers registered")
			return nil
		}
		sort.Strings(keys)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Key", "Status"})

		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()

		for _, key := range keys {
			c, err := p.Consumers.Get(cmd.Context(), key)
			if err != nil {
				return err
			}
			if c == nil {
				continue
			}
			status := "active"
			if c.Disabled {
				status = faint("disabled")
			}
			t.AppendRow(table.Row{bold(c.Key), status})
		}

		s := table.StyleRounded
		s.Format.Header = text.FormatDefault
		t.SetStyle(s)
		t.Render()
		return nil
	},
}

func init() {
	consumerCmd.AddCommand(consumerListCmd)
}
