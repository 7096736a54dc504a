package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/firerestore-dev/firerestore/internal/cli/commands"
	"github.com/firerestore-dev/firerestore/internal/config"
	"github.com/firerestore-dev/firerestore/internal/gcloud"
	"github.com/firerestore-dev/firerestore/internal/logger"
	"github.com/firerestore-dev/firerestore/internal/wizard"
)

var version = "dev" // Will be set during build

// NewRootCmd builds the command tree. A pre-filled env (tests) skips configuration loading.
func NewRootCmd(env *commands.Env) *cobra.Command {
	var (
		jsonOutput bool
		logLevel   string
	)

	rootCmd := &cobra.Command{
		Use:   "firerestore",
		Short: "Firerestore - Restore Firestore databases from Cloud Storage backups",
		Long: `Firerestore CLI - Restore Firestore databases from backups.

Firerestore drives the gcloud and gsutil command line tools to list projects,
databases and backups, then starts and follows a Firestore import.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			env.JSON = jsonOutput
			if env.Out == nil {
				env.Out = cmd.OutOrStdout()
			}
			if env.Gateway != nil {
				return nil
			}
			return setupEnv(env, logLevel)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "firerestore version %s\n", version)
		},
	})

	rootCmd.AddCommand(commands.NewAuthCmd(env))
	rootCmd.AddCommand(commands.NewProjectsCmd(env))
	rootCmd.AddCommand(commands.NewDatabasesCmd(env))
	rootCmd.AddCommand(commands.NewBackupsCmd(env))
	rootCmd.AddCommand(commands.NewOperationsCmd(env))
	rootCmd.AddCommand(commands.NewRestoreCmd(env))
	rootCmd.AddCommand(commands.NewHistoryCmd(env))

	return rootCmd
}

// setupEnv loads configuration and wires the gateway. Logs go to stderr.
func setupEnv(env *commands.Env, logLevel string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel == "" {
		logLevel = cfg.Logging.Level
	}
	logger.InitWithWriter(os.Stderr, logLevel, "console")
	log := logger.GetLogger()

	env.Logger = log
	env.Gateway = gcloud.New(gcloud.ExecRunner{}, gcloud.Options{
		GcloudBinary:  cfg.Gcloud.Binary,
		GsutilBinary:  cfg.Gcloud.GsutilBinary,
		StorageSuffix: cfg.Gcloud.StorageSuffix,
	}, log)
	env.Options = wizard.Options{
		PollInterval:    cfg.Poll.Interval,
		MaxPollFailures: cfg.Poll.MaxFailures,
	}
	env.DatabaseURL = cfg.Database.URL
	return nil
}

// Execute runs the root command until it finishes or the process is interrupted
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(&commands.Env{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
