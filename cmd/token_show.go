package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var tokenShowSecrets bool

var tokenShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show one stored token",
	Long: `Shows every field of the token stored under the given key. The secret and
verifier are redacted unless --secrets is given.`,
	Example: `  vouch token show 0a1b2c…
  vouch token show 0a1b2c… --secrets`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider()
		if err != nil {
			return err
		}
		defer p.Close()

		tok, err := p.Tokens.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if tok == nil {
			return fmt.Errorf("token %q is not stored", args[0])
		}

		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()

		kind := "request"
		if tok.IsAccess() {
			kind = bold("access")
		}

		expires := faint("never")
		if tok.Expiry > 0 {
			expires = time.Unix(tok.Expiry, 0).Format(time.RFC3339)
			if tok.ExpiredAt(time.Now()) {
				expires += " " + faint("(expired)")
			}
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendRow(table.Row{"Key", bold(tok.Key)})
		t.AppendRow(table.Row{"Type", kind})
		t.AppendRow(table.Row{"Secret", redacted(tok.Secret, tokenShowSecrets)})
		t.AppendRow(table.Row{"Consumer", tok.ConsumerKey})
		t.AppendRow(table.Row{"User", tok.User})
		t.AppendRow(table.Row{"Callback", tok.Callback})
		t.AppendRow(table.Row{"Callback confirmed", tok.CallbackConfirmed})
		t.AppendRow(table.Row{"Verifier", redacted(tok.Verifier, tokenShowSecrets)})
		t.AppendRow(table.Row{"Scope", tok.Scope})
		t.AppendRow(table.Row{"Issued", time.Unix(tok.Timestamp, 0).Format(time.RFC3339)})
		t.AppendRow(table.Row{"Expires", expires})

		s := table.StyleRounded
		s.Format.Header = text.FormatDefault
		t.SetStyle(s)
		t.Render()
		return nil
	},
}

func redacted(value string, show bool) string {
	if value == "" {
		return ""
	}
	if show {
		return value
	}
	return color.New(color.Faint).Sprint("(redacted)")
}

func init() {
	tokenShowCmd.Flags().BoolVar(&tokenShowSecrets, "secrets", false, "Print the secret and verifier in the clear")
	tokenCmd.AddCommand(tokenShowCmd)
}
