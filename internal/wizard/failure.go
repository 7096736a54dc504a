package wizard

import (
	"errors"
	"fmt"

	"github.com/firerestore-dev/firerestore/internal/gcloud"
)

// FailureClass tells the UI which explanation to render
type FailureClass string

const (
	FailureLocationMismatch  FailureClass = "location_mismatch"
	FailureRestoreStart      FailureClass = "restore_start"
	FailureOperationReported FailureClass = "operation_reported"
	FailurePollAbandoned     FailureClass = "poll_abandoned"
	FailureInvalidInput      FailureClass = "invalid_input"
)

// Failure is the user-facing error of the current session
type Failure struct {
	Class    FailureClass `json:"class"`
	Message  string       `json:"message"`
	Guidance []string     `json:"guidance,omitempty"`
}

// Refused transitions wrap ErrRefused; rejected identifiers wrap ErrInvalidInput.
var (
	ErrRefused      = errors.New("transition refused")
	ErrInvalidInput = errors.New("invalid input")
)

func refused(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRefused, fmt.Sprintf(format, args...))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// classify applies the location mismatch check before falling back
func classify(message string, fallback FailureClass) *Failure {
	if gcloud.IsLocationMismatch(message) {
		return &Failure{
			Class:    FailureLocationMismatch,
			Message:  message,
			Guidance: append([]string(nil), gcloud.LocationMismatchGuidance...),
		}
	}
	return &Failure{Class: fallback, Message: message}
}

// ClassifyStartError turns a StartRestore error into a Failure
func ClassifyStartError(err error) *Failure {
	if gcloud.KindOf(err) == gcloud.KindInvalidInput {
		return &Failure{Class: FailureInvalidInput, Message: gcloud.MessageOf(err)}
	}
	return classify(gcloud.MessageOf(err), FailureRestoreStart)
}

// ClassifyOperationError turns an error reported by a finished operation into a Failure
func ClassifyOperationError(opErr *gcloud.OperationError) *Failure {
	return classify(opErr.String(), FailureOperationReported)
}
