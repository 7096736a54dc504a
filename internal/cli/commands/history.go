package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/firerestore-dev/firerestore/internal/history"
)

// NewHistoryCmd creates the history command
func NewHistoryCmd(env *Env) *cobra.Command {
	var (
		project string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded restore attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), env, project, limit)
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Only show restores of this project")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records")

	return cmd
}

func runHistory(ctx context.Context, env *Env, project string, limit int) error {
	svc, closeHistory, err := env.openHistory()
	if err != nil {
		return err
	}
	defer closeHistory()
	if svc == nil {
		return fmt.Errorf("restore history is disabled. Set DATABASE_URL to enable it")
	}

	records, err := svc.List(ctx, history.ListOptions{Project: project, Limit: limit})
	if err != nil {
		return err
	}
	if env.JSON {
		return env.printJSON(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(env.Out, "No restores recorded.")
		return nil
	}

	w := env.table("STARTED", "PROJECT", "DATABASE", "BACKUP", "STATUS")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime),
			r.Project,
			r.Database,
			r.BackupPath,
			r.Status,
		)
	}
	return w.Flush()
}
