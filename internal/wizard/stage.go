package wizard

import (
	"encoding/json"
	"fmt"
)

// Stage is a step of the restore wizard, in order
type Stage int

const (
	StageAuthentication Stage = iota
	StageDatabaseSelection
	StageBackupSelection
	StageReviewConfirm
	StageRestoreProgress
)

var stageNames = map[Stage]string{
	StageAuthentication:    "authentication",
	StageDatabaseSelection: "database_selection",
	StageBackupSelection:   "backup_selection",
	StageReviewConfirm:     "review_confirm",
	StageRestoreProgress:   "restore_progress",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ParseStage converts a stage name back to its value
func ParseStage(name string) (Stage, error) {
	for stage, n := range stageNames {
		if n == name {
			return stage, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Stage) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	stage, err := ParseStage(name)
	if err != nil {
		return err
	}
	*s = stage
	return nil
}
