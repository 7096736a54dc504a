package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firerestore-dev/firerestore/internal/gcloud"
)

// NewProjectsCmd creates the projects command
func NewProjectsCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects visible to the active account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjects(cmd.Context(), env)
		},
	}
}

func runProjects(ctx context.Context, env *Env) error {
	projects := env.Gateway.ListProjects(ctx)
	if env.JSON {
		return env.printJSON(projects)
	}
	if len(projects) == 0 {
		fmt.Fprintln(env.Out, "No projects found.")
		return nil
	}
	for _, p := range projects {
		fmt.Fprintln(env.Out, p)
	}
	return nil
}

// NewDatabasesCmd creates the databases command
func NewDatabasesCmd(env *Env) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "databases",
		Short: "List Firestore databases of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatabases(cmd.Context(), env, project)
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Project ID (defaults to the gcloud configured project)")

	return cmd
}

func runDatabases(ctx context.Context, env *Env, project string) error {
	project, err := resolveProject(ctx, env, project)
	if err != nil {
		return err
	}
	databases, err := env.Gateway.ListDatabases(ctx, project)
	if err != nil {
		return err
	}
	if env.JSON {
		return env.printJSON(databases)
	}
	for _, d := range databases {
		fmt.Fprintln(env.Out, d)
	}
	return nil
}

// NewBackupsCmd creates the backups command
func NewBackupsCmd(env *Env) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List backups in the project's default storage bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackups(cmd.Context(), env, project)
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Project ID (defaults to the gcloud configured project)")

	return cmd
}

func runBackups(ctx context.Context, env *Env, project string) error {
	project, err := resolveProject(ctx, env, project)
	if err != nil {
		return err
	}
	backups, err := env.Gateway.ListBackups(ctx, project)
	if err != nil {
		return err
	}
	if env.JSON {
		return env.printJSON(backups)
	}
	if len(backups) == 0 {
		fmt.Fprintf(env.Out, "No backups found in gs://%s/\n", env.Gateway.BackupBucket(project))
		return nil
	}

	w := env.table("NAME", "PATH", "LOCATION")
	for _, b := range backups {
		fmt.Fprintf(w, "%s\t%s\t%s\n", b.Name, b.Path, valueOr(b.Location, "-"))
	}
	return w.Flush()
}

// NewOperationsCmd creates the operations command
func NewOperationsCmd(env *Env) *cobra.Command {
	var (
		project  string
		database string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "operations",
		Short: "List recent long-running operations on a database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperations(cmd.Context(), env, project, database, limit)
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Project ID (defaults to the gcloud configured project)")
	cmd.Flags().StringVarP(&database, "database", "d", gcloud.DefaultDatabaseID, "Database ID")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of operations")

	return cmd
}

func runOperations(ctx context.Context, env *Env, project, database string, limit int) error {
	project, err := resolveProject(ctx, env, project)
	if err != nil {
		return err
	}
	ops, err := env.Gateway.ListOperations(ctx, project, database, limit)
	if err != nil {
		return err
	}
	if env.JSON {
		return env.printJSON(ops)
	}
	if len(ops) == 0 {
		fmt.Fprintln(env.Out, "No operations found.")
		return nil
	}

	w := env.table("NAME", "TYPE", "STATE", "DONE", "STARTED")
	for _, op := range ops {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
			op.Name,
			valueOr(op.OperationType, "-"),
			valueOr(op.State, "-"),
			op.Done,
			valueOr(op.StartTime, "-"),
		)
	}
	return w.Flush()
}
