package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firerestore-dev/firerestore/internal/gcloud"
)

// NewAuthCmd creates the auth command
func NewAuthCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Show gcloud installation and login status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuth(cmd.Context(), env)
		},
	}
}

func runAuth(ctx context.Context, env *Env) error {
	status := env.Gateway.AuthStatus(ctx)
	if env.JSON {
		return env.printJSON(status)
	}

	fmt.Fprintf(env.Out, "Installed:     %t\n", status.Installed)
	fmt.Fprintf(env.Out, "Authenticated: %t\n", status.Authenticated)
	fmt.Fprintf(env.Out, "Account:       %s\n", valueOr(status.Account, "-"))
	fmt.Fprintf(env.Out, "Project:       %s\n", valueOr(status.Project, "-"))

	return env.requireAuth(status)
}

// resolveProject returns project, or the gcloud configured project when empty
func resolveProject(ctx context.Context, env *Env, project string) (string, error) {
	if project != "" {
		return project, nil
	}
	status := env.Gateway.AuthStatus(ctx)
	if err := env.requireAuth(status); err != nil {
		return "", err
	}
	if status.Project == "" {
		return "", fmt.Errorf("no project configured. Pass --project or run 'gcloud config set project <id>'")
	}
	if !gcloud.ValidProjectID(status.Project) {
		return "", fmt.Errorf("configured project %q is not a valid project id", status.Project)
	}
	return status.Project, nil
}
