package gcloud

import (
	"bytes"
	"encoding/json"
)

// DefaultDatabaseID is the id of the database every Firestore project starts with
const DefaultDatabaseID = "(default)"

// AuthStatus describes the local gcloud installation and its active account
type AuthStatus struct {
	Installed     bool   `json:"installed"`
	Authenticated bool   `json:"authenticated"`
	Account       string `json:"account,omitempty"`
	Project       string `json:"project,omitempty"`
}

// BackupDescriptor is one export folder found in the project's storage bucket
type BackupDescriptor struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     string `json:"size,omitempty"`
	Created  string `json:"created,omitempty"`
	Location string `json:"location,omitempty"`
}

// Work is a progress counter reported in operation metadata.
// gcloud renders int64 values as JSON strings, json.Number accepts both forms.
type Work struct {
	CompletedWork json.Number `json:"completedWork,omitempty"`
	EstimatedWork json.Number `json:"estimatedWork,omitempty"`
}

// RestoreOperation is the state of a Firestore import long-running operation
type RestoreOperation struct {
	Name              string          `json:"name"`
	Done              bool            `json:"done"`
	OperationType     string          `json:"operationType,omitempty"`
	State             string          `json:"state,omitempty"`
	StartTime         string          `json:"startTime,omitempty"`
	EndTime           string          `json:"endTime,omitempty"`
	ProgressDocuments *Work           `json:"progressDocuments,omitempty"`
	ProgressBytes     *Work           `json:"progressBytes,omitempty"`
	Error             *OperationError `json:"error"`
}

// Terminal reports whether the operation will not change anymore.
// A reported error is terminal even when done is still false.
func (o RestoreOperation) Terminal() bool {
	return o.Done || o.Error != nil
}

// Succeeded reports terminal success
func (o RestoreOperation) Succeeded() bool {
	return o.Done && o.Error == nil
}

// OperationError is the error payload of a failed operation. The tool reports
// either a google.rpc.Status object or, occasionally, a bare string; both are
// preserved so the payload can be shown verbatim.
type OperationError struct {
	Code    int             `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`

	text string
}

// NewTextError builds an OperationError carrying a plain string payload
func NewTextError(text string) *OperationError {
	return &OperationError{text: text}
}

type operationErrorFields OperationError

// UnmarshalJSON accepts both string and object payloads
func (e *OperationError) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.text)
	}
	var fields operationErrorFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*e = OperationError(fields)
	return nil
}

// MarshalJSON emits the payload in the shape it was received
func (e OperationError) MarshalJSON() ([]byte, error) {
	if e.text != "" {
		return json.Marshal(e.text)
	}
	return json.Marshal(operationErrorFields(e))
}

// empty reports whether the payload carries nothing, such as "error": ""
func (e *OperationError) empty() bool {
	return e.text == "" && e.Code == 0 && e.Message == "" && len(e.Details) == 0
}

// IsText reports whether the payload was a bare string
func (e *OperationError) IsText() bool {
	return e.text != ""
}

// String renders the payload for display
func (e *OperationError) String() string {
	if e == nil {
		return ""
	}
	if e.text != "" {
		return e.text
	}
	if e.Message != "" {
		return e.Message
	}
	data, err := json.Marshal(e)
	if err != nil {
		return "unknown operation error"
	}
	return string(data)
}
