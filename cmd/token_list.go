package cmd

import (
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var tokenListUser string

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tokens",
	Long: `Lists all stored tokens, request and access alike. With --user, only the
tokens authorized by that resource owner are shown (the revocation view).`,
	Example: `  vouch token list
  vouch token list --user alice`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider()
		if err != nil {
			return err
		}
		defer p.Close()

		var keys []string
		if tokenListUser != "" {
			keys, err = p.Tokens.TokensForUser(cmd.Context(), tokenListUser)
		} else {
			keys, err = p.Tokens.AllKeys(cmd.Context())
		}
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			log.Info().Msg("No tokens stored")
			return nil
		}
		sort.Strings(keys)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Key", "Type", "Consumer", "User", "Issued", "Expires"})

		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()

		now := time.Now()
		for _, key := range keys {
			tok, err := p.Tokens.Get(cmd.Context(), key)
			if err != nil {
				return err
			}
			if tok == nil {
				continue
			}

			kind := "request"
			if tok.IsAccess() {
				kind = bold("access")
			}

			expires := faint("never")
			if tok.Expiry > 0 {
				expires = time.Unix(tok.Expiry, 0).Format(time.RFC3339)
				if tok.ExpiredAt(now) {
					expires = faint("expired")
				}
			}

			t.AppendRow(table.Row{
				truncate(tok.Key, 16),
				kind,
				tok.ConsumerKey,
				tok.User,
				time.Unix(tok.Timestamp, 0).Format(time.RFC3339),
				expires,
			})
		}

		s := table.StyleRounded
		s.Format.Header = text.FormatDefault
		t.SetStyle(s)
		t.Render()
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func init() {
	tokenListCmd.Flags().StringVar(&tokenListUser, "user", "", "Only tokens authorized by this user")
	tokenCmd.AddCommand(tokenListCmd)
}
