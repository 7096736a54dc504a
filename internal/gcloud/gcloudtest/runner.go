// Package gcloudtest provides a scripted Runner for exercising the gateway
// without the Cloud SDK installed.
package gcloudtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/firerestore-dev/firerestore/internal/gcloud"
)

// Response is one scripted command result
type Response struct {
	Stdout string
	Stderr string
	Err    error
	// Delay holds the command open before it answers
	Delay time.Duration
}

// OK returns a successful response with the given stdout
func OK(stdout string) Response {
	return Response{Stdout: stdout}
}

// Slow delays resp by d, like a command waiting on the network
func Slow(d time.Duration, resp Response) Response {
	resp.Delay = d
	return resp
}

// Fail returns a non-zero exit with the given stderr
func Fail(stderr string) Response {
	return Response{Stderr: stderr, Err: errors.New("exit status 1")}
}

// Runner replays scripted responses keyed by the full command line.
// Multiple responses for one command are consumed in order; the last repeats.
type Runner struct {
	// Missing simulates binaries absent from PATH
	Missing bool

	mu        sync.Mutex
	responses map[string][]Response
	calls     []string
}

// NewRunner creates an empty scripted runner
func NewRunner() *Runner {
	return &Runner{responses: make(map[string][]Response)}
}

// On scripts the responses for a command line such as "gcloud projects list --format=value(projectId)"
func (r *Runner) On(command string, responses ...Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[command] = append(r.responses[command], responses...)
	return r
}

// Calls returns the command lines executed so far
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// LookPath implements gcloud.Runner
func (r *Runner) LookPath(file string) (string, error) {
	if r.Missing {
		return "", fmt.Errorf("%s: %w", file, gcloud.ErrNotFound)
	}
	return "/usr/bin/" + file, nil
}

// Run implements gcloud.Runner
func (r *Runner) Run(ctx context.Context, name string, args ...string) (gcloud.Result, error) {
	command := strings.Join(append([]string{name}, args...), " ")

	r.mu.Lock()
	r.calls = append(r.calls, command)

	if r.Missing {
		r.mu.Unlock()
		return gcloud.Result{}, fmt.Errorf("%s: %w", name, gcloud.ErrNotFound)
	}
	if err := ctx.Err(); err != nil {
		r.mu.Unlock()
		return gcloud.Result{}, err
	}

	queue, ok := r.responses[command]
	if !ok || len(queue) == 0 {
		r.mu.Unlock()
		return gcloud.Result{Stderr: []byte("unexpected command: " + command)}, errors.New("exit status 2")
	}

	resp := queue[0]
	if len(queue) > 1 {
		r.responses[command] = queue[1:]
	}
	r.mu.Unlock()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return gcloud.Result{}, ctx.Err()
		}
	}
	return gcloud.Result{Stdout: []byte(resp.Stdout), Stderr: []byte(resp.Stderr)}, resp.Err
}

// Command lines issued by the gateway with default options, for scripting.

const (
	VersionCommand  = "gcloud --version"
	AccountCommand  = "gcloud auth list --filter=status:ACTIVE --format=value(account)"
	ProjectCommand  = "gcloud config get-value project"
	ProjectsCommand = "gcloud projects list --format=value(projectId)"
)

// DatabasesCommand is the database listing for a project
func DatabasesCommand(project string) string {
	return fmt.Sprintf("gcloud firestore databases list --project=%s --format=value(name)", project)
}

// BackupsCommand is the default bucket listing for a project
func BackupsCommand(project string) string {
	return fmt.Sprintf("gsutil ls gs://%s.firebasestorage.app/", project)
}

// BucketLocationCommand is the location lookup of the project's default bucket
func BucketLocationCommand(project string) string {
	return fmt.Sprintf("gcloud storage buckets describe gs://%s.firebasestorage.app --format=value(location)", project)
}

// ImportCommand is the asynchronous import invocation
func ImportCommand(backupPath, project, database string) string {
	return fmt.Sprintf("gcloud firestore import %s --database=%s --project=%s --async", backupPath, database, project)
}

// DescribeCommand is the operation status invocation
func DescribeCommand(name, project, database string) string {
	return fmt.Sprintf("gcloud firestore operations describe %s --database=%s --project=%s --format=json", name, database, project)
}

// Authenticated scripts an installed, logged-in SDK
func (r *Runner) Authenticated(account, project string) *Runner {
	return r.On(VersionCommand, OK("Google Cloud SDK 480.0.0\n")).
		On(AccountCommand, OK(account+"\n")).
		On(ProjectCommand, OK(project+"\n"))
}
