package cmd

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/emrgen/docflow"
	"github.com/emrgen/docflow/internal/document"
	"github.com/emrgen/docflow/internal/store"
	"github.com/emrgen/docflow/internal/version"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "document commands",
}

func init() {
	rootCmd.AddCommand(docCmd)
	docCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	docCmd.AddCommand(createDocCmd())
	docCmd.AddCommand(getDocCmd())
	docCmd.AddCommand(listDocCmd())
	docCmd.AddCommand(updateDocCmd())
	docCmd.AddCommand(deleteDocCmd())
	docCmd.AddCommand(visibilityDocCmd())
	docCmd.AddCommand(downloadDocCmd())
	docCmd.AddCommand(listDocVersionsCmd())
	docCmd.AddCommand(diffDocCmd())
	docCmd.AddCommand(revertDocCmd())
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Minute)
}

func readUpload(path string) (*docflow.FileUpload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return &docflow.FileUpload{Name: filepath.Base(path), ContentType: contentType, Data: data}, nil
}

func createDocCmd() *cobra.Command {
	var req docflow.CreateRequest
	var path string

	var required = []string{"title", "category"}

	command := &cobra.Command{
		Use:     "create",
		Short:   "create a document",
		Long:    `create a document at version 1, optionally with a file`,
		Example: "docflow doc create -t <title> -c <category> -f <path> --tags a,b",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			if path != "" {
				upload, err := readUpload(path)
				if err != nil {
					logrus.Error(err)
					return
				}
				req.File = upload
			}

			ctx, cancel := cmdContext()
			defer cancel()
			doc, rev, err := newClient().CreateDocument(ctx, req)
			if err != nil {
				printError(err)
				return
			}

			logrus.Infof("document created with id: %s", doc.ID)
			printDocument(doc, rev)
		},
	}

	command.Flags().StringVarP(&req.Title, "title", "t", "", "title of the document (required)")
	command.Flags().StringVarP(&req.Category, "category", "c", "", "category of the document (required)")
	command.Flags().StringVarP(&req.Description, "description", "D", "", "description of the document")
	command.Flags().StringVarP(&req.Status, "status", "s", "", "workflow status")
	command.Flags().StringSliceVar(&req.Tags, "tags", nil, "comma separated tags")
	command.Flags().StringVarP(&path, "file", "f", "", "path of the file to attach")

	command.Flags().SortFlags = false

	return command
}

func getDocCmd() *cobra.Command {
	var docID string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "get",
		Short:   "get a document",
		Example: "docflow doc get -d <doc-id>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx, cancel := cmdContext()
			defer cancel()
			doc, rev, err := newClient().GetDocument(ctx, docID)
			if err != nil {
				printError(err)
				return
			}

			printDocument(doc, rev)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")

	command.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	command.Flags().SortFlags = false

	return command
}

func listDocCmd() *cobra.Command {
	var filter store.DocumentFilter

	command := &cobra.Command{
		Use:   "list",
		Short: "list documents",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := cmdContext()
			defer cancel()
			docs, err := newClient().ListDocuments(ctx, filter)
			if err != nil {
				printError(err)
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"ID", "Title", "Category", "Status", "Version", "Public", "Uploaded By"})
			for _, doc := range docs {
				table.Append([]string{
					doc.ID,
					doc.Title,
					doc.Category,
					doc.Status,
					strconv.Itoa(doc.CurrentVersion()),
					strconv.FormatBool(doc.Public),
					doc.UploadedBy,
				})
			}
			table.Render()
		},
	}

	command.Flags().StringVarP(&filter.Category, "category", "c", "", "filter by category")
	command.Flags().StringVarP(&filter.Status, "status", "s", "", "filter by status")
	command.Flags().StringSliceVar(&filter.Tags, "tags", nil, "documents carrying any of the tags")
	command.Flags().StringVarP(&filter.Search, "search", "q", "", "search title and description")
	command.Flags().IntVarP(&filter.Limit, "limit", "l", 0, "maximum number of documents")

	command.Flags().SortFlags = false

	return command
}

func updateDocCmd() *cobra.Command {
	var docID string
	var revision int64
	var title, category, description, status string
	var tags, logs []string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "update",
		Short:   "update a document",
		Example: "docflow doc update -d <doc-id> -t <title> -v <revision>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			var patch document.Patch
			if cmd.Flag("title").Changed {
				patch.Title = &title
			}
			if cmd.Flag("category").Changed {
				patch.Category = &category
			}
			if cmd.Flag("description").Changed {
				patch.Description = &description
			}
			if cmd.Flag("status").Changed {
				patch.Status = &status
			}
			if cmd.Flag("tags").Changed {
				patch.Tags = &tags
			}
			if cmd.Flag("logs").Changed {
				patch.Logs = &logs
			}

			ctx, cancel := cmdContext()
			defer cancel()
			doc, rev, err := newClient().UpdateDocument(ctx, docID, store.Revision(revision), patch)
			if err != nil {
				printError(err)
				return
			}

			printDocument(doc, rev)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().Int64VarP(&revision, "revision", "v", 0, "revision the update is based on, 0 for any")
	command.Flags().StringVarP(&title, "title", "t", "", "new title")
	command.Flags().StringVarP(&category, "category", "c", "", "new category")
	command.Flags().StringVarP(&description, "description", "D", "", "new description")
	command.Flags().StringVarP(&status, "status", "s", "", "new workflow status")
	command.Flags().StringSliceVar(&tags, "tags", nil, "new tags")
	command.Flags().StringSliceVar(&logs, "logs", nil, "new change logs")

	command.Flags().SortFlags = false

	return command
}

func deleteDocCmd() *cobra.Command {
	var docID string
	var revision int64

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:   "delete",
		Short: "delete a document",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx, cancel := cmdContext()
			defer cancel()
			if err := newClient().DeleteDocument(ctx, docID, store.Revision(revision)); err != nil {
				printError(err)
				return
			}

			color.Green("document %s deleted", docID)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().Int64VarP(&revision, "revision", "v", 0, "revision the delete is based on, 0 for any")

	return command
}

func visibilityDocCmd() *cobra.Command {
	var docID string
	var public bool

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:   "visibility",
		Short: "make a document public or private",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx, cancel := cmdContext()
			defer cancel()
			rev, err := newClient().SetVisibility(ctx, docID, public)
			if err != nil {
				printError(err)
				return
			}

			printField("Public", strconv.FormatBool(public))
			printField("Revision", strconv.FormatInt(int64(rev), 10))
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().BoolVar(&public, "public", false, "make the document public")

	return command
}

func downloadDocCmd() *cobra.Command {
	var docID string
	var out string

	var required = []string{"doc-id", "out"}

	command := &cobra.Command{
		Use:   "download",
		Short: "download the file of a document",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx, cancel := cmdContext()
			defer cancel()
			data, err := newClient().File(ctx, docID)
			if err != nil {
				printError(err)
				return
			}

			if err := os.WriteFile(out, data, 0o644); err != nil {
				logrus.Error(err)
				return
			}
			color.Green("%d bytes written to %s", len(data), out)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().StringVarP(&out, "out", "o", "", "output path (required)")

	return command
}

func listDocVersionsCmd() *cobra.Command {
	var docID string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:   "versions",
		Short: "list versions of a document",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx, cancel := cmdContext()
			defer cancel()
			versions, err := newClient().Versions(ctx, docID)
			if err != nil {
				printError(err)
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Version", "By", "Date", "Title", "Status", "Summary"})
			for _, v := range versions {
				table.Append([]string{
					strconv.Itoa(v.Number),
					v.Author,
					v.At.Format(time.RFC3339),
					v.Snapshot.Title,
					v.Snapshot.Status,
					v.Summary,
				})
			}
			table.Render()
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")

	return command
}

func diffDocCmd() *cobra.Command {
	var docID string
	var from, to int

	var required = []string{"doc-id", "from", "to"}

	command := &cobra.Command{
		Use:     "diff",
		Short:   "compare two versions of a document",
		Example: "docflow doc diff -d <doc-id> --from 1 --to 3",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx, cancel := cmdContext()
			defer cancel()
			diff, err := newClient().Diff(ctx, docID, from, to)
			if err != nil {
				printError(err)
				return
			}

			if diff.Empty() {
				color.Yellow("versions %d and %d are identical", from, to)
				return
			}
			printDiff(diff)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().IntVar(&from, "from", 0, "older version (required)")
	command.Flags().IntVar(&to, "to", 0, "newer version (required)")

	return command
}

func revertDocCmd() *cobra.Command {
	var docID string
	var target int

	var required = []string{"doc-id", "version"}

	command := &cobra.Command{
		Use:   "revert",
		Short: "revert a document to an earlier version",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx, cancel := cmdContext()
			defer cancel()
			doc, rev, err := newClient().Revert(ctx, docID, target)
			if err != nil {
				printError(err)
				return
			}

			printDocument(doc, rev)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().IntVarP(&target, "version", "n", 0, "version to restore (required)")

	return command
}

func printDocument(doc *document.Document, rev store.Revision) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Version", "Revision", "Status", "Public"})
	table.Append([]string{
		doc.ID,
		strconv.Itoa(doc.CurrentVersion()),
		strconv.FormatInt(int64(rev), 10),
		doc.Status,
		strconv.FormatBool(doc.Public),
	})
	table.Render()

	printField("Title", doc.Title)
	printField("Category", doc.Category)
	if doc.Description != "" {
		printField("Description", doc.Description)
	}
	if len(doc.Tags) > 0 {
		printField("Tags", strings.Join(doc.Tags, ", "))
	}
	if doc.File != nil {
		printField("File", fmt.Sprintf("%s (%s, %d bytes)", doc.File.Name, doc.File.ContentType, doc.File.Size))
	}
	printField("Last Modified", doc.LastModified.Format(time.RFC3339)+" by "+doc.LastModifiedBy)
}

func printDiff(diff version.Diff) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Old", "New"})
	for _, row := range []struct {
		field string
		c     *version.FieldChange[string]
	}{
		{"title", diff.Title},
		{"description", diff.Description},
		{"category", diff.Category},
		{"status", diff.Status},
	} {
		if row.c != nil {
			table.Append([]string{row.field, row.c.Old, row.c.New})
		}
	}
	if diff.Tags != nil {
		table.Append([]string{"tags", strings.Join(diff.Tags.Old, ", "), strings.Join(diff.Tags.New, ", ")})
	}
	table.Render()
}

func printField(label, value string) {
	color.Set(color.FgCyan)
	fmt.Print(label)
	color.Unset()
	fmt.Printf(": %s\n", value)
}

func printError(err error) {
	color.Red("%v", err)
}

// checkMissingFlags checks if the required flags are set and returns true if any is missing
func checkMissingFlags(cmd *cobra.Command, flags []string) bool {
	var missingFlags []string
	var providedFlags []string
	for _, required := range flags {
		if !cmd.Flag(required).Changed {
			missingFlags = append(missingFlags, required)
		} else {
			value := cmd.Flag(required).Value.String()
			providedFlags = append(providedFlags, fmt.Sprintf("--%s=%s", required, value))
		}
	}

	if len(missingFlags) > 0 {
		var msg string
		for _, f := range missingFlags {
			msg += fmt.Sprintf("--%s ", f)
		}

		color.Red("missing: %s\n", msg)
		if len(providedFlags) > 0 {
			provided := strings.Join(providedFlags, " ")
			color.Green("provide: %s\n", provided)
		}

		cmd.Println("")
		_ = cmd.Usage()
		return true
	}

	return false
}
