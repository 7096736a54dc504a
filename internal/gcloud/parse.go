package gcloud

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	databaseNamePattern    = regexp.MustCompile(`/databases/(.+)$`)
	topLevelNamePattern    = regexp.MustCompile(`(?m)^name:\s*(.+)$`)
	anyNamePattern         = regexp.MustCompile(`name:\s*(.+)`)
	unsetConfigValueMarker = "(unset)"
)

func lines(out string) []string {
	return strings.Split(strings.TrimSpace(out), "\n")
}

func nonEmptyLines(out string) []string {
	result := []string{}
	for _, line := range lines(out) {
		if line = strings.TrimSpace(line); line != "" {
			result = append(result, line)
		}
	}
	return result
}

func firstLine(out string) string {
	for _, line := range lines(out) {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func parseConfigValue(out string) string {
	value := firstLine(out)
	if value == unsetConfigValueMarker {
		return ""
	}
	return value
}

// parseDatabases maps "projects/p/databases/<id>" lines to ids. Empty output
// yields the default database so the result is never empty.
func parseDatabases(out string) []string {
	result := []string{}
	for _, line := range nonEmptyLines(out) {
		if m := databaseNamePattern.FindStringSubmatch(line); m != nil {
			result = append(result, m[1])
			continue
		}
		result = append(result, DefaultDatabaseID)
	}
	if len(result) == 0 {
		return []string{DefaultDatabaseID}
	}
	return result
}

// parseBackups keeps "gs://bucket/folder/" entries and names them by folder
func parseBackups(out string) []BackupDescriptor {
	result := []BackupDescriptor{}
	for _, line := range lines(out) {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "gs://") || !strings.HasSuffix(line, "/") {
			continue
		}
		result = append(result, BackupDescriptor{
			Name: backupName(line),
			Path: line,
		})
	}
	return result
}

func backupName(path string) string {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(path, "gs://"), "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return path
	}
	return trimmed[idx+1:]
}

// parseOperationName finds the operation handle in the YAML-ish import output.
// A top-level "name:" wins over nested ones.
func parseOperationName(out string) string {
	if m := topLevelNamePattern.FindStringSubmatch(out); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := anyNamePattern.FindStringSubmatch(out); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

type rawOperation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Metadata struct {
		OperationType     string `json:"operationType"`
		State             string `json:"operationState"`
		StartTime         string `json:"startTime"`
		EndTime           string `json:"endTime"`
		ProgressDocuments *Work  `json:"progressDocuments"`
		ProgressBytes     *Work  `json:"progressBytes"`
	} `json:"metadata"`
	Error *OperationError `json:"error"`
}

func (r rawOperation) operation() RestoreOperation {
	if r.Error != nil && r.Error.empty() {
		r.Error = nil
	}
	return RestoreOperation{
		Name:              r.Name,
		Done:              r.Done,
		OperationType:     r.Metadata.OperationType,
		State:             r.Metadata.State,
		StartTime:         r.Metadata.StartTime,
		EndTime:           r.Metadata.EndTime,
		ProgressDocuments: r.Metadata.ProgressDocuments,
		ProgressBytes:     r.Metadata.ProgressBytes,
		Error:             r.Error,
	}
}

func parseOperation(out string) (RestoreOperation, error) {
	var raw rawOperation
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &raw); err != nil {
		return RestoreOperation{}, fmt.Errorf("failed to decode operation: %w", err)
	}
	if raw.Name == "" {
		return RestoreOperation{}, fmt.Errorf("operation has no name")
	}
	return raw.operation(), nil
}

func parseOperations(out string) ([]RestoreOperation, error) {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return []RestoreOperation{}, nil
	}
	var raws []rawOperation
	if err := json.Unmarshal([]byte(trimmed), &raws); err != nil {
		return nil, fmt.Errorf("failed to decode operations: %w", err)
	}
	ops := make([]RestoreOperation, 0, len(raws))
	for _, raw := range raws {
		ops = append(ops, raw.operation())
	}
	return ops, nil
}
