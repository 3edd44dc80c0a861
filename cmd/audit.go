package cmd

import (
	"os"
	"strconv"
	"time"

	"github.com/emrgen/docflow/internal/audit"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "audit trail commands",
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	auditCmd.AddCommand(listAuditCmd())
	auditCmd.AddCommand(statsCmd())
}

func listAuditCmd() *cobra.Command {
	var filter audit.Filter
	var kind string

	command := &cobra.Command{
		Use:   "list",
		Short: "list audit entries, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			filter.Kind = audit.Kind(kind)

			ctx, cancel := cmdContext()
			defer cancel()
			entries, err := newClient().AuditLog(ctx, filter)
			if err != nil {
				printError(err)
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Seq", "At", "Action", "Actor", "Document", "Title"})
			for _, e := range entries {
				table.Append([]string{
					strconv.FormatInt(e.Seq, 10),
					e.At.Format(time.RFC3339),
					string(e.Action),
					e.Actor,
					e.DocumentID,
					e.DocumentTitle,
				})
			}
			table.Render()
		},
	}

	command.Flags().StringVarP(&filter.DocumentID, "doc-id", "d", "", "entries of one document")
	command.Flags().StringVar(&filter.Actor, "actor", "", "entries of one actor")
	command.Flags().StringVarP(&kind, "kind", "k", "", "entries of one kind")
	command.Flags().BoolVar(&filter.Ascending, "asc", false, "oldest first")
	command.Flags().IntVarP(&filter.Limit, "limit", "l", 100, "maximum number of entries")

	return command
}

func statsCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "stats",
		Short: "show dashboard statistics",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := cmdContext()
			defer cancel()
			stats, err := newClient().Stats(ctx)
			if err != nil {
				printError(err)
				return
			}

			printField("Documents", strconv.Itoa(stats.DocumentCount))
			printField("Audit Entries", strconv.FormatInt(stats.AuditCount, 10))
			printField("Pending Approvals", strconv.Itoa(stats.PendingApprovals))

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Category", "Documents"})
			for category, n := range stats.DocumentsByCategory {
				table.Append([]string{category, strconv.Itoa(n)})
			}
			table.Render()
		},
	}

	return command
}
