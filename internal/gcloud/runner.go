package gcloud

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result holds the captured output of one command
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes external commands. Arguments are passed as an argv vector,
// never through a shell.
type Runner interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ErrNotFound is returned by runners when the binary does not exist
var ErrNotFound = exec.ErrNotFound

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// LookPath resolves a binary on PATH
func (ExecRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// Run executes the command and captures stdout and stderr separately
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return res, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return res, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return res, nil
}
