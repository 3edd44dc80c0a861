package cmd

import (
	"os"
	"strconv"
	"time"

	"github.com/emrgen/docflow/internal/approval"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var approvalCmd = &cobra.Command{
	Use:   "approval",
	Short: "approval commands",
}

func init() {
	rootCmd.AddCommand(approvalCmd)
	approvalCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	approvalCmd.AddCommand(setupApprovalCmd())
	approvalCmd.AddCommand(submitApprovalCmd())
	approvalCmd.AddCommand(approvalStatusCmd())
	approvalCmd.AddCommand(pendingApprovalsCmd())
	approvalCmd.AddCommand(verifyApprovalCmd())
}

func setupApprovalCmd() *cobra.Command {
	var docID string
	var flowType string
	var roles []string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "setup",
		Short:   "configure the approval flow of a document",
		Example: "docflow approval setup -d <doc-id> --type multi --level Staff --level Admin",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			levels := make([]approval.Level, len(roles))
			for i, role := range roles {
				levels[i] = approval.Level{Role: role, Order: i + 1}
			}

			ctx, cancel := cmdContext()
			defer cancel()
			flow, err := newClient().SetupApproval(ctx, docID, approval.Type(flowType), levels)
			if err != nil {
				printError(err)
				return
			}

			printFlow(flow)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().StringVar(&flowType, "type", string(approval.Single), "single or multi")
	command.Flags().StringArrayVar(&roles, "level", nil, "role of the next approval level, repeat in order")

	return command
}

func submitApprovalCmd() *cobra.Command {
	var docID string
	var reject bool
	var comment string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:   "submit",
		Short: "approve or reject a document",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			decision := approval.Approved
			if reject {
				decision = approval.Rejected
			}

			ctx, cancel := cmdContext()
			defer cancel()
			record, complete, err := newClient().SubmitApproval(ctx, docID, decision, comment)
			if err != nil {
				printError(err)
				return
			}

			printField("Decision", string(record.Decision))
			printField("Level", strconv.Itoa(record.Level))
			printField("Signature", record.Signature)
			if complete {
				color.Green("approval flow complete")
			}
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().BoolVar(&reject, "reject", false, "reject instead of approve")
	command.Flags().StringVarP(&comment, "comment", "m", "", "comment for the decision")

	return command
}

func approvalStatusCmd() *cobra.Command {
	var docID string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:   "status",
		Short: "show the approval flow of a document",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx, cancel := cmdContext()
			defer cancel()
			status, err := newClient().ApprovalStatus(ctx, docID)
			if err != nil {
				printError(err)
				return
			}

			printField("Title", status.Title)
			printField("Complete", strconv.FormatBool(status.Complete))
			printFlow(status.Flow)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")

	return command
}

func pendingApprovalsCmd() *cobra.Command {
	var role string

	var required = []string{"for"}

	command := &cobra.Command{
		Use:   "pending",
		Short: "list documents waiting for a role",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx, cancel := cmdContext()
			defer cancel()
			pending, err := newClient().PendingApprovals(ctx, role)
			if err != nil {
				printError(err)
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"ID", "Title", "Level"})
			for _, p := range pending {
				table.Append([]string{p.DocumentID, p.Title, strconv.Itoa(p.Flow.CurrentLevel)})
			}
			table.Render()
		},
	}

	command.Flags().StringVar(&role, "for", "", "approver role (required)")

	return command
}

func verifyApprovalCmd() *cobra.Command {
	var docID, approver, signature string

	var required = []string{"doc-id", "approver", "signature"}

	command := &cobra.Command{
		Use:   "verify",
		Short: "verify an approval signature",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx, cancel := cmdContext()
			defer cancel()
			record, err := newClient().VerifySignature(ctx, docID, approver, signature)
			if err != nil {
				printError(err)
				return
			}

			color.Green("signature valid")
			printField("Decision", string(record.Decision))
			printField("Signed At", record.At.Format(time.RFC3339))
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().StringVar(&approver, "approver", "", "approver username (required)")
	command.Flags().StringVar(&signature, "signature", "", "signature to check (required)")

	return command
}

func printFlow(flow *approval.Flow) {
	if flow == nil {
		return
	}

	printField("Type", string(flow.Type))
	printField("Current Level", strconv.Itoa(flow.CurrentLevel))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Level", "Approver", "Role", "Decision", "At"})
	for _, r := range flow.Approvals {
		table.Append([]string{strconv.Itoa(r.Level), r.Approver, r.Role, string(r.Decision), r.At.Format(time.RFC3339)})
	}
	table.Render()
}
