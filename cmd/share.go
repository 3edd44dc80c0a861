package cmd

import (
	"os"
	"strconv"
	"time"

	"github.com/emrgen/docflow/internal/share"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "share link commands",
}

func init() {
	rootCmd.AddCommand(shareCmd)
	shareCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	shareCmd.AddCommand(createShareCmd())
	shareCmd.AddCommand(listShareCmd())
	shareCmd.AddCommand(revokeShareCmd())
	shareCmd.AddCommand(openShareCmd())
}

func createShareCmd() *cobra.Command {
	var docID string
	var access string
	var expiresIn time.Duration

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "create",
		Short:   "create a share link",
		Example: "docflow share create -d <doc-id> -a download -e 24h",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			level, err := share.ParseAccess(access)
			if err != nil {
				printError(err)
				return
			}

			var expiresAt *time.Time
			if expiresIn > 0 {
				at := time.Now().Add(expiresIn)
				expiresAt = &at
			}

			ctx, cancel := cmdContext()
			defer cancel()
			link, err := newClient().CreateShareLink(ctx, docID, level, expiresAt)
			if err != nil {
				printError(err)
				return
			}

			printField("Token", link.Token)
			printField("URL", link.URL)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().StringVarP(&access, "access", "a", string(share.View), "view or download")
	command.Flags().DurationVarP(&expiresIn, "expires-in", "e", 0, "lifetime of the link, 0 never expires")

	return command
}

func listShareCmd() *cobra.Command {
	var docID string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:   "list",
		Short: "list share links of a document",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx, cancel := cmdContext()
			defer cancel()
			links, err := newClient().ShareLinks(ctx, docID)
			if err != nil {
				printError(err)
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Token", "Access", "Active", "Expires", "Created By"})
			for _, l := range links {
				expires := "never"
				if l.ExpiresAt != nil {
					expires = l.ExpiresAt.Format(time.RFC3339)
				}
				table.Append([]string{l.Token, string(l.Access), strconv.FormatBool(l.Active), expires, l.CreatedBy})
			}
			table.Render()
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")

	return command
}

func revokeShareCmd() *cobra.Command {
	var docID, token string

	var required = []string{"doc-id", "token"}

	command := &cobra.Command{
		Use:   "revoke",
		Short: "deactivate a share link",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx, cancel := cmdContext()
			defer cancel()
			if err := newClient().DeactivateShareLink(ctx, docID, token); err != nil {
				printError(err)
				return
			}

			color.Green("share link deactivated")
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().StringVarP(&token, "token", "t", "", "share token (required)")

	return command
}

func openShareCmd() *cobra.Command {
	var token, out string

	var required = []string{"token"}

	command := &cobra.Command{
		Use:   "open",
		Short: "open a shared document",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx, cancel := cmdContext()
			defer cancel()
			view, err := newClient().OpenShared(ctx, token)
			if err != nil {
				printError(err)
				return
			}

			printField("Title", view.Title)
			printField("Category", view.Category)
			printField("Access", string(view.Access))
			printField("Uploaded By", view.UploadedBy)

			if out != "" && len(view.File) > 0 {
				if err := os.WriteFile(out, view.File, 0o644); err != nil {
					printError(err)
					return
				}
				color.Green("%s written to %s", view.FileName, out)
			}
		},
	}

	command.Flags().StringVarP(&token, "token", "t", "", "share token (required)")
	command.Flags().StringVarP(&out, "out", "o", "", "save the file of a download link here")

	return command
}
