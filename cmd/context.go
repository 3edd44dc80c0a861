package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/emrgen/docflow"
	"github.com/emrgen/docflow/internal/document"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	contextDir      = "./.tmp"
	contextFileName = "docflow-context"
	defaultServer   = "http://localhost:4021"
)

// flag overrides of the saved context
var (
	User   string
	Role   string
	Server string
)

var contextCommand = &cobra.Command{
	Use:   "context",
	Short: "context commands",
}

func init() {
	contextCommand.AddCommand(setContextCommand())
	contextCommand.AddCommand(currentContextCommand())
	contextCommand.AddCommand(resetContextCommand())
}

// Context is who the cli acts as and which server it talks to.
type Context struct {
	User   string `mapstructure:"user"`
	Role   string `mapstructure:"role"`
	Server string `mapstructure:"server"`
}

// saves the context info to the config file in ./.tmp
func setContextCommand() *cobra.Command {
	var user, role, server string
	command := &cobra.Command{
		Use:   "set",
		Short: "set context",
		Run: func(cmd *cobra.Command, args []string) {
			if user == "" || role == "" {
				color.Red(`missing: --user and --role`)
				return
			}
			if _, err := document.ParseRole(role); err != nil {
				color.Red("%v", err)
				return
			}

			if err := writeContext(Context{User: user, Role: role, Server: server}); err != nil {
				fmt.Println("error writing config file: ", err)
				return
			}
			fmt.Println("context saved")
		},
	}

	command.Flags().StringVarP(&user, "user", "u", "", "username")
	command.Flags().StringVarP(&role, "role", "r", "", "role: Admin, Staff or Viewer")
	command.Flags().StringVarP(&server, "server", "s", defaultServer, "http address of the server")

	return command
}

func currentContextCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "current",
		Short: "current context",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := readContext()
			printField("User", ctx.User)
			printField("Role", ctx.Role)
			printField("Server", ctx.Server)
		},
	}

	return command
}

func resetContextCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "reset",
		Short: "reset context",
		Run: func(cmd *cobra.Command, args []string) {
			err := os.Remove(contextFile())
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				fmt.Println("error removing config file: ", err)
				return
			}
			fmt.Println("context reset")
		},
	}

	return command
}

func contextFile() string {
	return filepath.Join(contextDir, contextFileName+".yml")
}

func contextViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(contextFileName)
	v.AddConfigPath(contextDir)
	v.SetConfigType("yml")
	return v
}

func writeContext(ctx Context) error {
	if err := os.MkdirAll(contextDir, 0o755); err != nil {
		return err
	}

	v := contextViper()
	v.Set("context.user", ctx.User)
	v.Set("context.role", ctx.Role)
	v.Set("context.server", ctx.Server)

	return v.WriteConfigAs(contextFile())
}

func readContext() Context {
	ctx := Context{Server: defaultServer}

	v := contextViper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Println("error reading config file: ", err)
		}
		return ctx
	}

	if err := v.UnmarshalKey("context", &ctx); err != nil {
		fmt.Println("error unmarshalling config file: ", err)
	}
	if ctx.Server == "" {
		ctx.Server = defaultServer
	}

	return ctx
}

func bindContextFlags(command *cobra.Command) {
	command.PersistentFlags().StringVar(&User, "as", "", "act as this user instead of the saved context")
	command.PersistentFlags().StringVar(&Role, "role", "", "act with this role instead of the saved context")
	command.PersistentFlags().StringVar(&Server, "server", "", "server address instead of the saved context")
}

// newClient builds an api client from the saved context and the flag overrides.
func newClient() *docflow.Client {
	ctx := readContext()
	if User != "" {
		ctx.User = User
	}
	if Role != "" {
		ctx.Role = Role
	}
	if Server != "" {
		ctx.Server = Server
	}

	return docflow.NewClient(ctx.Server, ctx.User, ctx.Role)
}
