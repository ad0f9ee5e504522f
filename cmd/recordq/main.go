// Package main implements recordq, the record checkout queue server and
// its operator commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qcsys/recordq/internal/config"
	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/platform/postgres"
	"github.com/qcsys/recordq/internal/service/auth"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Each subcommand loads configuration
// on its own so --config applies uniformly.
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "recordq",
		Short:         "Record checkout queue",
		Long:          "recordq leases pooled record tasks to operators and archives their submissions.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ./config.yaml)")

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.LoadFrom(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		log, err := logger.Setup(cfg.Server)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
		}
		return cfg, log, nil
	}

	rootCmd.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		newImportCmd(load),
		newUserCmd(load),
		newTokenCmd(load),
	)
	return rootCmd
}

type loadFunc func() (*config.Config, *slog.Logger, error)

func newServeCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Start the HTTP server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			app, err := newApplication(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return app.Run(ctx)
		},
	}
}

func newMigrateCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version]",
		Short:     "Run postgres schema migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{postgres.MigrateUp, postgres.MigrateDown, postgres.MigrateStatus, postgres.MigrateVersion},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate requires the %s driver, configured: %s", config.DriverPostgres, cfg.Store.Driver)
			}

			db, err := setupAppDatabase(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			return postgres.Migrate(cmd.Context(), db, args[0], log)
		},
	}
}

// importRecord is one line item of an import file.
type importRecord struct {
	Session string         `json:"session"`
	Number  int64          `json:"number"`
	Payload domain.Payload `json:"payload"`
}

func newImportCmd(load loadFunc) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk insert tasks from a JSON array file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			tasks, err := readImportFile(file)
			if err != nil {
				return err
			}

			app, err := newApplication(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer app.cleanup()

			if err := app.importTasks(cmd.Context(), tasks); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d tasks\n", len(tasks))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON file holding an array of {session, number, payload}")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readImportFile(path string) ([]*domain.Task, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	var records []importRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to parse import file: %w", err)
	}

	tasks := make([]*domain.Task, 0, len(records))
	for i, rec := range records {
		task, err := domain.NewTask(rec.Session, rec.Number, rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func newUserCmd(load loadFunc) *cobra.Command {
	userCmd := &cobra.Command{Use: "user", Short: "Manage operator accounts"}

	var username, password, role string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create an operator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			app, err := newApplication(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer app.cleanup()

			user, err := app.loginService.Register(cmd.Context(), username, password, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	addCmd.Flags().StringVar(&username, "username", "", "login name, used as lease identity")
	addCmd.Flags().StringVar(&password, "password", "", "password (8 to 72 characters)")
	addCmd.Flags().StringVar(&role, "role", "recorder", "operator role")
	_ = addCmd.MarkFlagRequired("username")
	_ = addCmd.MarkFlagRequired("password")

	userCmd.AddCommand(addCmd)
	return userCmd
}

func newTokenCmd(load loadFunc) *cobra.Command {
	var identity, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an access token for an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			jwtSvc, err := auth.NewJWTService(cfg.Auth)
			if err != nil {
				return err
			}
			token, err := jwtSvc.GenerateToken(context.Background(), identity, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "token subject")
	cmd.Flags().StringVar(&role, "role", "recorder", "role claim")
	_ = cmd.MarkFlagRequired("identity")
	return cmd
}
