package commands

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/firerestore-dev/firerestore/internal/gcloud"
	"github.com/firerestore-dev/firerestore/internal/wizard"
)

// RestoreOptions are the flags of the restore command
type RestoreOptions struct {
	Project  string
	Database string
	Backup   string // catalog path, catalog folder name, or any gs:// path
	Wait     bool
}

// NewRestoreCmd creates the restore command
func NewRestoreCmd(env *Env) *cobra.Command {
	var opts RestoreOptions

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a Firestore database from a backup",
		Long: `Restore a Firestore database from a backup in Cloud Storage.

The backup may be a folder name from 'firerestore backups', a full path from
that listing, or any gs:// path. With --wait the command polls until the
import finishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(cmd.Context(), env, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Project, "project", "p", "", "Project ID (defaults to the gcloud configured project)")
	cmd.Flags().StringVarP(&opts.Database, "database", "d", gcloud.DefaultDatabaseID, "Target database ID")
	cmd.Flags().StringVarP(&opts.Backup, "backup", "b", "", "Backup folder name or gs:// path")
	cmd.Flags().BoolVarP(&opts.Wait, "wait", "w", false, "Wait for the restore to finish")
	_ = cmd.MarkFlagRequired("backup")

	return cmd
}

func runRestore(ctx context.Context, env *Env, opts RestoreOptions) error {
	recorder, closeHistory, err := env.openHistory()
	if err != nil {
		return err
	}
	defer closeHistory()

	var rec wizard.Recorder
	if recorder != nil {
		rec = recorder
	}
	session := wizard.NewSession("cli-"+uuid.NewString(), env.Gateway, rec, env.Options, env.Logger)
	defer session.Close()

	st, err := session.CheckAuth(ctx)
	if err != nil {
		return err
	}
	if st.Auth == nil {
		return fmt.Errorf("gcloud auth status unavailable")
	}
	if err := env.requireAuth(*st.Auth); err != nil {
		return err
	}
	if _, err := session.Advance(ctx); err != nil {
		return err
	}

	if opts.Project != "" {
		if st, err = session.SelectProject(ctx, opts.Project); err != nil {
			return err
		}
	}
	if st.Selection.Project == "" {
		return fmt.Errorf("no project configured. Pass --project or run 'gcloud config set project <id>'")
	}
	if _, err := session.SelectDatabase(opts.Database); err != nil {
		return err
	}
	if st, err = session.Advance(ctx); err != nil {
		return err
	}

	if err := chooseBackup(session, st, opts.Backup); err != nil {
		return err
	}
	if st, err = session.Advance(ctx); err != nil {
		return err
	}

	printReview(env, st)

	st, err = session.Confirm(ctx)
	if err != nil {
		printFailure(env, st.Failure)
		return fmt.Errorf("restore failed to start")
	}
	fmt.Fprintf(env.Out, "\nRestore started: %s\n", st.Handle)

	if !opts.Wait {
		printStatus(env, st)
		return nil
	}
	return waitForRestore(ctx, env, session)
}

// chooseBackup selects a catalog entry by path or folder name, falling back to a manual path
func chooseBackup(session *wizard.Session, st wizard.State, backup string) error {
	backup = strings.TrimSpace(backup)
	idx := slices.IndexFunc(st.Backups, func(b gcloud.BackupDescriptor) bool {
		return b.Path == backup || b.Name == strings.TrimSuffix(backup, "/")
	})
	if idx >= 0 {
		_, err := session.SelectBackup(st.Backups[idx].Path)
		return err
	}
	if !strings.HasPrefix(backup, "gs://") {
		return fmt.Errorf("backup %q not found in the project bucket. Pass a full gs:// path instead", backup)
	}
	_, err := session.SetManualPath(backup)
	return err
}

// waitForRestore follows the session's own poller until the restore ends
func waitForRestore(ctx context.Context, env *Env, session *wizard.Session) error {
	interval := env.Options.PollInterval
	if interval <= 0 {
		interval = wizard.DefaultOptions().PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastProgress := ""
	for {
		st := session.Snapshot()
		if progress := progressLine(st.Operation); progress != lastProgress {
			fmt.Fprintln(env.Out, progress)
			lastProgress = progress
		}

		switch {
		case st.Terminal():
			printStatus(env, st)
			if !st.Operation.Succeeded() {
				return fmt.Errorf("restore failed")
			}
			return nil
		case st.PollAbandoned:
			printFailure(env, st.Failure)
			return fmt.Errorf("gave up waiting; check the operation with 'firerestore operations'")
		}

		select {
		case <-ctx.Done():
			fmt.Fprintf(env.Out, "Stopped waiting. The restore continues in the background: %s\n", st.Handle)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printReview(env *Env, st wizard.State) {
	sel := st.Selection
	fmt.Fprintln(env.Out, "Restore summary")
	fmt.Fprintf(env.Out, "  Project:  %s\n", sel.Project)
	fmt.Fprintf(env.Out, "  Database: %s (%s)\n", sel.Database, valueOr(st.DatabaseLocation, "location unknown"))
	fmt.Fprintf(env.Out, "  Backup:   %s (%s)\n", sel.BackupPath(), valueOr(st.BucketLocation, "location unknown"))
}

func printStatus(env *Env, st wizard.State) {
	op := st.Operation
	if op == nil {
		return
	}
	switch {
	case op.Succeeded():
		fmt.Fprintln(env.Out, "Restore completed successfully.")
	case op.Error != nil:
		printFailure(env, st.Failure)
	default:
		fmt.Fprintf(env.Out, "Status: %s\n", valueOr(op.State, "PROCESSING"))
	}
}

func printFailure(env *Env, failure *wizard.Failure) {
	if failure == nil {
		return
	}
	fmt.Fprintf(env.Out, "Error (%s): %s\n", failure.Class, failure.Message)
	for i, step := range failure.Guidance {
		fmt.Fprintf(env.Out, "  %d. %s\n", i+1, step)
	}
}

// progressLine renders document progress, or the state when no counters are reported
func progressLine(op *gcloud.RestoreOperation) string {
	if op == nil {
		return ""
	}
	if w := op.ProgressDocuments; w != nil && w.EstimatedWork != "" {
		return fmt.Sprintf("Progress: %s / %s documents", valueOr(string(w.CompletedWork), "0"), w.EstimatedWork)
	}
	return fmt.Sprintf("Status: %s", valueOr(op.State, "PROCESSING"))
}
