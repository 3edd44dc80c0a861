package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docflow",
	Short: "document lifecycle tool",
	Example: `docflow serve
docflow context set -u ada -r Admin -s http://localhost:4021
docflow doc create -t <title> -c <category> -f <path>
docflow doc update -d <doc-id> -t <title> -v <revision>
docflow doc versions -d <doc-id>
docflow approval setup -d <doc-id> --type multi --level Staff --level Admin
docflow share create -d <doc-id> -a download -e 24h
docflow audit list -d <doc-id>`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(contextCommand)
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	bindContextFlags(rootCmd)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}
