package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jnwerner/vouch/internal/audit"
	"github.com/jnwerner/vouch/internal/core"
)

var (
	auditLogLimit  int
	auditLogAction string
)

var auditLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent audit entries",
	Long: `Reads the audit trail of a file-auditing deployment and renders the most
recent entries, oldest first. With --action, only entries for that action
(e.g. "token.exchange") are shown.`,
	Example: `  vouch audit log
  vouch audit log --limit 50
  vouch audit log --action token.exchange`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.Audit.Enabled || cfg.Audit.Type != "file" {
			return fmt.Errorf("reading the trail requires audit type 'file' in the configuration")
		}

		trail, err := audit.ReadFile(cfg.Audit.Path)
		if err != nil {
			return err
		}

		var entries []core.AuditEntry
		if auditLogAction != "" {
			entries = trail.Find(func(e core.AuditEntry) bool {
				return e.Action == auditLogAction
			}, auditLogLimit)
		} else {
			entries = trail.Recent(auditLogLimit)
		}
		if len(entries) == 0 {
			log.Info().Msg("No audit entries")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Time", "Action", "Consumer", "Token", "User", "Outcome"})

		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()

		for _, e := range entries {
			outcome := bold("granted")
			if !e.Granted {
				outcome = faint(e.Error)
			}
			t.AppendRow(table.Row{
				e.Time.Format(time.RFC3339),
				e.Action,
				e.ConsumerKey,
				truncate(e.TokenKey, 16),
				e.User,
				outcome,
			})
		}

		s := table.StyleRounded
		s.Format.Header = text.FormatDefault
		t.SetStyle(s)
		t.Render()
		return nil
	},
}

func init() {
	auditLogCmd.Flags().IntVar(&auditLogLimit, "limit", 20, "Maximum number of entries to show")
	auditLogCmd.Flags().StringVar(&auditLogAction, "action", "", "Only entries for this action")
	auditCmd.AddCommand(auditLogCmd)
}
