package gcloud

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies gateway failures
type Kind string

const (
	// KindToolMissing means the CLI binary could not be found
	KindToolMissing Kind = "tool_missing"

	// KindInvalidInput means an identifier failed validation before any command ran
	KindInvalidInput Kind = "invalid_input"

	// KindCommandFailed means the CLI exited non-zero
	KindCommandFailed Kind = "command_failed"

	// KindMalformedOutput means the CLI succeeded but its output could not be parsed
	KindMalformedOutput Kind = "malformed_output"
)

// GatewayError is returned by every gateway call that surfaces failures
type GatewayError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a gateway error, or "" for other errors
func KindOf(err error) Kind {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return ""
}

// MessageOf returns the tool-facing message of err
func MessageOf(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func invalidInput(field, value string) *GatewayError {
	return &GatewayError{
		Kind:    KindInvalidInput,
		Message: fmt.Sprintf("invalid %s %q", field, value),
	}
}

// IsLocationMismatch reports whether a failure message describes a backup
// bucket in a different region than the target database. The tool reports
// this as a generic INVALID_ARGUMENT, so the message text is all there is.
func IsLocationMismatch(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "location") && strings.Contains(lower, "bucket")
}

// LocationMismatchGuidance lists the remediation steps shown for a location mismatch
var LocationMismatchGuidance = []string{
	"The backup bucket is in a different region than the target Firestore database.",
	"Check the database region in the Firebase console.",
	"Create a storage bucket in the same region as the database.",
	"Copy the backup folder into the new bucket.",
	"Start the restore again using the new bucket path.",
}
