package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RealZimboGuy/approvalflow/internal/auth"
	"github.com/RealZimboGuy/approvalflow/internal/config"
	"github.com/RealZimboGuy/approvalflow/internal/repository"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

var (
	configFile string
	logLevel   string

	escalateOnce bool

	importTenant string

	userTenant  string
	userName    string
	userManager string
	userRoles   []string
)

var rootCmd = &cobra.Command{
	Use:   "approvalflow",
	Short: "Multi-step approval workflow engine",
	Long: `approvalflow runs approval workflows: definitions with ordered steps,
instances that move through them as approvers decide, and a scheduler that
escalates steps nobody acted on in time.

Examples:
  approvalflow serve --config approvalflow.yaml
  approvalflow definitions import purchase.yaml --tenant acme
  approvalflow users create --tenant acme --username alice --role admin`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(configFile); err != nil {
			return fmt.Errorf("load config %s: %w", configFile, err)
		}
		level := logLevel
		if level == "" {
			level = config.GetSystemSettingString(config.LOG_LEVEL)
		}
		approvalflow.SetupLogger(level)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, escalation scheduler and stats projection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return approvalflow.Start(ctx, nil)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return repository.Migrate(repository.DatabaseSettingsFromConfig())
	},
}

var escalateCmd = &cobra.Command{
	Use:   "escalate",
	Short: "Escalate overdue steps",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := approvalflow.Open()
		if err != nil {
			return err
		}
		defer app.Close()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if !escalateOnce {
			return app.Scheduler.Start(ctx)
		}
		res, err := app.Scheduler.Tick(ctx)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var definitionsCmd = &cobra.Command{
	Use:   "definitions",
	Short: "Manage workflow definitions",
}

var definitionsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Create definitions from a YAML file (multiple documents allowed)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		app, err := approvalflow.Open()
		if err != nil {
			return err
		}
		defer app.Close()
		created, err := app.Definitions.Import(cmd.Context(), cliPrincipal(importTenant), f)
		for _, def := range created {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tv%d\n", def.ID, def.Name, def.Version)
		}
		return err
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users and API keys",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user and print its API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := approvalflow.Open()
		if err != nil {
			return err
		}
		defer app.Close()
		out, err := auth.CreateUser(cmd.Context(), app.Store.Users, userTenant, models.CreateUserRequest{
			Username: userName,
			Manager:  userManager,
			Roles:    userRoles,
		})
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

// cliPrincipal acts as a tenant administrator for local commands.
func cliPrincipal(tenant string) core.Principal {
	return core.Principal{Username: "cli", TenantID: tenant, Roles: []string{core.RoleAdmin}}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	escalateCmd.Flags().BoolVar(&escalateOnce, "once", false, "run a single scan and exit")

	definitionsImportCmd.Flags().StringVar(&importTenant, "tenant", "", "tenant owning the definitions")
	_ = definitionsImportCmd.MarkFlagRequired("tenant")
	definitionsCmd.AddCommand(definitionsImportCmd)

	usersCreateCmd.Flags().StringVar(&userTenant, "tenant", "", "tenant of the user")
	usersCreateCmd.Flags().StringVar(&userName, "username", "", "username")
	usersCreateCmd.Flags().StringVar(&userManager, "manager", "", "username of the user's manager")
	usersCreateCmd.Flags().StringSliceVar(&userRoles, "role", nil, "role to assign (repeatable)")
	_ = usersCreateCmd.MarkFlagRequired("tenant")
	_ = usersCreateCmd.MarkFlagRequired("username")
	usersCmd.AddCommand(usersCreateCmd)

	rootCmd.AddCommand(serveCmd, migrateCmd, escalateCmd, definitionsCmd, usersCmd)
}
