// Package gcloud wraps the gcloud and gsutil command line tools. Every call
// maps tool output into typed values; read-only listings degrade to empty
// results while mutating and status calls return *GatewayError.
package gcloud

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/firerestore-dev/firerestore/internal/metrics"
)

// Options configures binaries and the backup bucket naming
type Options struct {
	GcloudBinary  string
	GsutilBinary  string
	StorageSuffix string
}

// DefaultOptions matches a stock Cloud SDK install and Firebase default buckets
func DefaultOptions() Options {
	return Options{
		GcloudBinary:  "gcloud",
		GsutilBinary:  "gsutil",
		StorageSuffix: "firebasestorage.app",
	}
}

// Gateway issues CLI invocations and owns no state
type Gateway struct {
	runner   Runner
	opts     Options
	validate *validator.Validate
	logger   zerolog.Logger
}

// New creates a gateway
func New(runner Runner, opts Options, logger zerolog.Logger) *Gateway {
	return &Gateway{
		runner:   runner,
		opts:     opts,
		validate: NewValidator(),
		logger:   logger.With().Str("component", "gcloud_gateway").Logger(),
	}
}

// BackupBucket returns the default Firebase storage bucket for a project
func (g *Gateway) BackupBucket(project string) string {
	return fmt.Sprintf("%s.%s", project, g.opts.StorageSuffix)
}

// IsInstalled reports whether the gcloud CLI can be executed
func (g *Gateway) IsInstalled(ctx context.Context) bool {
	if _, err := g.runner.LookPath(g.opts.GcloudBinary); err != nil {
		g.logger.Debug().Err(err).Msg("gcloud binary not found on PATH")
		return false
	}
	if _, err := g.exec(ctx, "version", g.opts.GcloudBinary, "--version"); err != nil {
		g.logger.Debug().Err(err).Msg("gcloud --version failed")
		return false
	}
	return true
}

// AuthStatus checks installation, active account and configured project.
// Failures after the install check are reported as not authenticated.
func (g *Gateway) AuthStatus(ctx context.Context) AuthStatus {
	if !g.IsInstalled(ctx) {
		return AuthStatus{Installed: false}
	}

	accountOut, err := g.exec(ctx, "auth list", g.opts.GcloudBinary,
		"auth", "list", "--filter=status:ACTIVE", "--format=value(account)")
	if err != nil {
		g.logger.Info().Err(err).Msg("gcloud auth check failed, treating as not authenticated")
		return AuthStatus{Installed: true}
	}

	projectOut, err := g.exec(ctx, "config get-value", g.opts.GcloudBinary,
		"config", "get-value", "project")
	if err != nil {
		g.logger.Info().Err(err).Msg("gcloud project lookup failed, treating as not authenticated")
		return AuthStatus{Installed: true}
	}

	account := firstLine(accountOut)
	return AuthStatus{
		Installed:     true,
		Authenticated: account != "",
		Account:       account,
		Project:       parseConfigValue(projectOut),
	}
}

// ListProjects returns the project ids visible to the active account
func (g *Gateway) ListProjects(ctx context.Context) []string {
	out, err := g.exec(ctx, "projects list", g.opts.GcloudBinary,
		"projects", "list", "--format=value(projectId)")
	if err != nil {
		g.logger.Warn().Err(err).Msg("Failed to list projects")
		return []string{}
	}
	return nonEmptyLines(out)
}

// ListDatabases returns the Firestore database ids of a project.
// The result is never empty: tool failures fall back to "(default)".
func (g *Gateway) ListDatabases(ctx context.Context, project string) ([]string, error) {
	if err := g.check("project id", project, TagProjectID); err != nil {
		return nil, err
	}

	out, err := g.exec(ctx, "firestore databases list", g.opts.GcloudBinary,
		"firestore", "databases", "list", "--project="+project, "--format=value(name)")
	if err != nil {
		g.logger.Warn().Err(err).Str("project", project).Msg("Failed to list databases, using default")
		return []string{DefaultDatabaseID}, nil
	}
	return parseDatabases(out), nil
}

// ListBackups lists the export folders at the top of the project's default bucket
func (g *Gateway) ListBackups(ctx context.Context, project string) ([]BackupDescriptor, error) {
	if err := g.check("project id", project, TagProjectID); err != nil {
		return nil, err
	}

	bucket := g.BackupBucket(project)
	out, err := g.exec(ctx, "gsutil ls", g.opts.GsutilBinary, "ls", "gs://"+bucket+"/")
	if err != nil {
		g.logger.Warn().Err(err).Str("bucket", bucket).Msg("Failed to list backups")
		return []BackupDescriptor{}, nil
	}

	backups := parseBackups(out)
	if len(backups) == 0 {
		return backups, nil
	}

	location, err := g.BucketLocation(ctx, bucket)
	if err != nil {
		g.logger.Debug().Err(err).Str("bucket", bucket).Msg("Bucket location unavailable")
		return backups, nil
	}
	for i := range backups {
		backups[i].Location = location
	}
	return backups, nil
}

// BucketLocation returns the location of a storage bucket, e.g. "US-CENTRAL1"
func (g *Gateway) BucketLocation(ctx context.Context, bucket string) (string, error) {
	if !ValidBucket(bucket) {
		return "", invalidInput("bucket", bucket)
	}
	out, err := g.exec(ctx, "storage buckets describe", g.opts.GcloudBinary,
		"storage", "buckets", "describe", "gs://"+bucket, "--format=value(location)")
	if err != nil {
		return "", err
	}
	location := firstLine(out)
	if location == "" {
		return "", &GatewayError{Kind: KindMalformedOutput, Message: "bucket location missing from output"}
	}
	return location, nil
}

// DatabaseLocation returns the location id of a Firestore database, e.g. "nam5"
func (g *Gateway) DatabaseLocation(ctx context.Context, project, database string) (string, error) {
	if err := g.checkTarget(project, database); err != nil {
		return "", err
	}
	out, err := g.exec(ctx, "firestore databases describe", g.opts.GcloudBinary,
		"firestore", "databases", "describe",
		"--database="+database, "--project="+project, "--format=value(locationId)")
	if err != nil {
		return "", err
	}
	location := firstLine(out)
	if location == "" {
		return "", &GatewayError{Kind: KindMalformedOutput, Message: "database location missing from output"}
	}
	return location, nil
}

// StartRestore starts an asynchronous Firestore import and returns its handle
func (g *Gateway) StartRestore(ctx context.Context, backupPath, project, database string) (RestoreOperation, error) {
	if err := g.check("backup path", backupPath, TagBackupPath); err != nil {
		return RestoreOperation{}, err
	}
	if err := g.checkTarget(project, database); err != nil {
		return RestoreOperation{}, err
	}

	res, err := g.execResult(ctx, "firestore import", g.opts.GcloudBinary,
		"firestore", "import", backupPath,
		"--database="+database, "--project="+project, "--async")
	if err != nil {
		return RestoreOperation{}, err
	}

	name := parseOperationName(string(res.Stdout))
	if name == "" {
		name = parseOperationName(string(res.Stderr))
	}
	if name == "" {
		return RestoreOperation{}, &GatewayError{
			Kind:    KindMalformedOutput,
			Message: "import started but no operation name was reported",
		}
	}

	g.logger.Info().
		Str("operation", name).
		Str("project", project).
		Str("database", database).
		Str("backup_path", backupPath).
		Msg("Firestore import started")

	return RestoreOperation{
		Name:          name,
		Done:          false,
		OperationType: "IMPORT_DOCUMENTS",
	}, nil
}

// OperationStatus fetches the current state of an operation
func (g *Gateway) OperationStatus(ctx context.Context, name, project, database string) (RestoreOperation, error) {
	if err := g.check("operation name", name, TagOperationName); err != nil {
		return RestoreOperation{}, err
	}
	if err := g.checkTarget(project, database); err != nil {
		return RestoreOperation{}, err
	}

	out, err := g.exec(ctx, "firestore operations describe", g.opts.GcloudBinary,
		"firestore", "operations", "describe", name,
		"--database="+database, "--project="+project, "--format=json")
	if err != nil {
		return RestoreOperation{}, err
	}

	op, err := parseOperation(out)
	if err != nil {
		return RestoreOperation{}, &GatewayError{Kind: KindMalformedOutput, Message: err.Error(), Err: err}
	}
	return op, nil
}

// ListOperations returns recent operations on a database, newest first as reported
func (g *Gateway) ListOperations(ctx context.Context, project, database string, limit int) ([]RestoreOperation, error) {
	if err := g.checkTarget(project, database); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	out, err := g.exec(ctx, "firestore operations list", g.opts.GcloudBinary,
		"firestore", "operations", "list",
		"--database="+database, "--project="+project,
		"--limit="+strconv.Itoa(limit), "--format=json")
	if err != nil {
		g.logger.Warn().Err(err).Str("project", project).Msg("Failed to list operations")
		return []RestoreOperation{}, nil
	}

	ops, err := parseOperations(out)
	if err != nil {
		g.logger.Warn().Err(err).Str("project", project).Msg("Unparseable operations list")
		return []RestoreOperation{}, nil
	}
	return ops, nil
}

func (g *Gateway) check(field, value, tag string) error {
	if err := g.validate.Var(value, "required,"+tag); err != nil {
		return invalidInput(field, value)
	}
	return nil
}

func (g *Gateway) checkTarget(project, database string) error {
	if err := g.check("project id", project, TagProjectID); err != nil {
		return err
	}
	return g.check("database id", database, TagDatabaseID)
}

func (g *Gateway) exec(ctx context.Context, label, bin string, args ...string) (string, error) {
	res, err := g.execResult(ctx, label, bin, args...)
	if err != nil {
		return "", err
	}
	return string(res.Stdout), nil
}

func (g *Gateway) execResult(ctx context.Context, label, bin string, args ...string) (Result, error) {
	start := time.Now()
	res, err := g.runner.Run(ctx, bin, args...)
	elapsed := time.Since(start)
	metrics.ObserveCommand(label, err, elapsed)

	g.logger.Debug().
		Str("command", label).
		Dur("duration", elapsed).
		Bool("ok", err == nil).
		Msg("CLI invocation")

	if err == nil {
		return res, nil
	}

	if errors.Is(err, ErrNotFound) {
		return res, &GatewayError{Kind: KindToolMissing, Message: bin + " not found", Err: err}
	}

	message := strings.TrimSpace(string(res.Stderr))
	if message == "" {
		message = err.Error()
	}
	return res, &GatewayError{Kind: KindCommandFailed, Message: message, Err: err}
}
