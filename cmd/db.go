package cmd

import (
	"context"

	"github.com/emrgen/docflow/internal/config"
	"github.com/emrgen/docflow/internal/server"
	"github.com/emrgen/docflow/internal/store"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "db commands",
}

func init() {
	dbCmd.AddCommand(Migrate())
}

// Migrate prepares the configured store, creating tables and indexes.
func Migrate() *cobra.Command {
	command := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the configured store",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.LoadConfig()
			provided, err := store.Open(context.Background(), cfg)
			if err != nil {
				logrus.Fatal(err)
			}
			if err := provided.Close(); err != nil {
				logrus.Error(err)
			}
			color.Green("%s store migrated", cfg.Store)
		},
	}

	return command
}

func serveCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "serve",
		Short: "start the grpc and http servers",
		Run: func(cmd *cobra.Command, args []string) {
			server.NewServer(config.LoadConfig()).Start()
		},
	}

	return command
}
