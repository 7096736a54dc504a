// Package wizard sequences a Firestore restore: authentication, target and
// backup selection, confirmation and progress monitoring.
//
// State transitions are pure functions over State. A Session owns one State,
// calls the gateway outside its lock and applies results through the same
// functions, discarding any result that no longer matches the active project
// or operation handle.
package wizard

import (
	"slices"
	"strings"

	"github.com/firerestore-dev/firerestore/internal/gcloud"
)

// Selection is the restore target chosen by the user
type Selection struct {
	Project       string `json:"project"`
	Database      string `json:"database"`
	CatalogBackup string `json:"catalogBackup,omitempty"`
	ManualPath    string `json:"manualPath,omitempty"`
	UseManualPath bool   `json:"useManualPath"`
}

// BackupPath returns the single path that will be submitted for restore
func (s Selection) BackupPath() string {
	if s.UseManualPath {
		return s.ManualPath
	}
	return s.CatalogBackup
}

// HasTarget reports whether project and database are both chosen
func (s Selection) HasTarget() bool {
	return s.Project != "" && s.Database != ""
}

// Ready reports whether the selection can be submitted
func (s Selection) Ready() bool {
	return s.HasTarget() && s.BackupPath() != ""
}

// State is a snapshot of one wizard session
type State struct {
	Stage     Stage                     `json:"stage"`
	Auth      *gcloud.AuthStatus        `json:"auth,omitempty"`
	Projects  []string                  `json:"projects"`
	Databases []string                  `json:"databases"`
	Backups   []gcloud.BackupDescriptor `json:"backups"`
	Selection Selection                 `json:"selection"`

	// Locations shown on the review step, when they could be resolved
	BucketLocation   string `json:"bucketLocation,omitempty"`
	DatabaseLocation string `json:"databaseLocation,omitempty"`

	Starting      bool                     `json:"starting"`
	Handle        string                   `json:"handle,omitempty"`
	Operation     *gcloud.RestoreOperation `json:"operation,omitempty"`
	PollFailures  int                      `json:"pollFailures"`
	PollAbandoned bool                     `json:"pollAbandoned"`
	Failure       *Failure                 `json:"failure,omitempty"`
}

// NewState returns the initial state of a session
func NewState() State {
	return State{
		Stage:     StageAuthentication,
		Projects:  []string{},
		Databases: []string{},
		Backups:   []gcloud.BackupDescriptor{},
	}
}

// Terminal reports whether the active operation has finished
func (s State) Terminal() bool {
	return s.Operation != nil && s.Operation.Terminal()
}

// Polling reports whether the operation still needs status checks
func (s State) Polling() bool {
	return s.Stage == StageRestoreProgress && s.Handle != "" && !s.Terminal() && !s.PollAbandoned
}

// ApplyAuthStatus records an auth check. A configured project is pre-selected
// when nothing is selected yet; the stage never changes here.
func ApplyAuthStatus(s State, status gcloud.AuthStatus) (State, error) {
	if s.Stage != StageAuthentication {
		return s, refused("auth check only runs during %s", StageAuthentication)
	}
	s.Auth = &status
	if status.Authenticated && status.Project != "" && s.Selection.Project == "" && gcloud.ValidProjectID(status.Project) {
		s.Selection.Project = status.Project
	}
	return s, nil
}

// ApplyProjects stores the visible project list
func ApplyProjects(s State, projects []string) State {
	if projects == nil {
		projects = []string{}
	}
	s.Projects = projects
	return s
}

// Advance moves to the next stage when its prerequisites hold
func Advance(s State) (State, error) {
	switch s.Stage {
	case StageAuthentication:
		if s.Auth == nil || !s.Auth.Installed {
			return s, refused("gcloud CLI is not installed")
		}
		if !s.Auth.Authenticated {
			return s, refused("gcloud CLI is not authenticated")
		}
		s.Stage = StageDatabaseSelection
	case StageDatabaseSelection:
		if !s.Selection.HasTarget() {
			return s, refused("select a project and a database first")
		}
		s.Stage = StageBackupSelection
	case StageBackupSelection:
		if s.Selection.BackupPath() == "" {
			return s, refused("select a backup or enter a backup path first")
		}
		s.Stage = StageReviewConfirm
		s.BucketLocation = ""
		s.DatabaseLocation = ""
	case StageReviewConfirm:
		return s, refused("confirm the restore to continue")
	default:
		return s, refused("cannot advance from %s", s.Stage)
	}
	s.Failure = nil
	return s, nil
}

// Back returns to the previous stage from backup selection or review
func Back(s State) (State, error) {
	switch s.Stage {
	case StageBackupSelection:
		s.Stage = StageDatabaseSelection
	case StageReviewConfirm:
		if s.Starting {
			return s, refused("restore is being started")
		}
		s.Stage = StageBackupSelection
	default:
		return s, refused("cannot go back from %s", s.Stage)
	}
	s.Failure = nil
	return s, nil
}

// SelectProject changes the project and clears everything derived from it
func SelectProject(s State, project string) (State, error) {
	if s.Stage != StageAuthentication && s.Stage != StageDatabaseSelection {
		return s, refused("project can only change before backup selection")
	}
	if !gcloud.ValidProjectID(project) {
		return s, invalid("project id %q", project)
	}
	if project == s.Selection.Project {
		return s, nil
	}
	s.Selection.Project = project
	s.Selection.Database = ""
	s.Selection.CatalogBackup = ""
	s.Databases = []string{}
	s.Backups = []gcloud.BackupDescriptor{}
	return s, nil
}

// ApplyDatabases stores the database list of project. The first database is
// selected when none is. Results for another project are ignored.
func ApplyDatabases(s State, project string, databases []string) State {
	if s.Selection.Project != project {
		return s
	}
	if len(databases) == 0 {
		databases = []string{gcloud.DefaultDatabaseID}
	}
	s.Databases = databases
	if s.Selection.Database == "" {
		s.Selection.Database = databases[0]
	}
	return s
}

// ApplyBackups stores the backup catalog of project. Results for another project are ignored.
func ApplyBackups(s State, project string, backups []gcloud.BackupDescriptor) State {
	if s.Selection.Project != project {
		return s
	}
	if backups == nil {
		backups = []gcloud.BackupDescriptor{}
	}
	s.Backups = backups
	if s.Selection.CatalogBackup != "" && !slices.ContainsFunc(backups, func(b gcloud.BackupDescriptor) bool {
		return b.Path == s.Selection.CatalogBackup
	}) {
		s.Selection.CatalogBackup = ""
	}
	return s
}

// SelectDatabase sets the target database
func SelectDatabase(s State, database string) (State, error) {
	if s.Stage != StageDatabaseSelection {
		return s, refused("database can only change during %s", StageDatabaseSelection)
	}
	if s.Selection.Project == "" {
		return s, refused("select a project first")
	}
	if !gcloud.ValidDatabaseID(database) {
		return s, invalid("database id %q", database)
	}
	s.Selection.Database = database
	return s, nil
}

// SelectCatalogBackup picks a listed backup and leaves manual mode
func SelectCatalogBackup(s State, path string) (State, error) {
	if s.Stage != StageBackupSelection {
		return s, refused("backup can only change during %s", StageBackupSelection)
	}
	if !slices.ContainsFunc(s.Backups, func(b gcloud.BackupDescriptor) bool { return b.Path == path }) {
		return s, invalid("backup %q is not in the catalog", path)
	}
	s.Selection.CatalogBackup = path
	s.Selection.ManualPath = ""
	s.Selection.UseManualPath = false
	return s, nil
}

// SetManualPath enters manual mode with path. An empty path clears it.
func SetManualPath(s State, path string) (State, error) {
	if s.Stage != StageBackupSelection {
		return s, refused("backup can only change during %s", StageBackupSelection)
	}
	path = strings.TrimSpace(path)
	if path != "" && !gcloud.ValidBackupPath(path) {
		return s, invalid("backup path %q", path)
	}
	s.Selection.ManualPath = path
	s.Selection.UseManualPath = true
	s.Selection.CatalogBackup = ""
	return s, nil
}

// SetBackupSource switches between catalog and manual mode, clearing the other source
func SetBackupSource(s State, manual bool) (State, error) {
	if s.Stage != StageBackupSelection {
		return s, refused("backup can only change during %s", StageBackupSelection)
	}
	s.Selection.UseManualPath = manual
	if manual {
		s.Selection.CatalogBackup = ""
	} else {
		s.Selection.ManualPath = ""
	}
	return s, nil
}

// ApplyLocations stores review-step locations if the selection is unchanged
func ApplyLocations(s State, sel Selection, bucketLocation, databaseLocation string) State {
	if s.Stage != StageReviewConfirm || s.Selection != sel {
		return s
	}
	s.BucketLocation = bucketLocation
	s.DatabaseLocation = databaseLocation
	return s
}

// BeginRestore marks a start call in flight
func BeginRestore(s State) (State, error) {
	if s.Stage != StageReviewConfirm {
		return s, refused("restore can only be confirmed during %s", StageReviewConfirm)
	}
	if s.Starting {
		return s, refused("restore is already being started")
	}
	if !s.Selection.Ready() {
		return s, refused("selection is incomplete")
	}
	s.Starting = true
	s.Failure = nil
	return s, nil
}

// StartFailed records a failed start; the stage stays at review
func StartFailed(s State, err error) State {
	s.Starting = false
	s.Failure = ClassifyStartError(err)
	return s
}

// RestoreStarted stores the new operation and moves to progress
func RestoreStarted(s State, op gcloud.RestoreOperation) State {
	s.Starting = false
	s.Stage = StageRestoreProgress
	s.Handle = op.Name
	s.Operation = &op
	s.PollFailures = 0
	s.PollAbandoned = false
	s.Failure = nil
	return s
}

// ApplyOperationStatus replaces the operation with a fetched status. Results
// for a handle that is no longer active are ignored.
func ApplyOperationStatus(s State, handle string, op gcloud.RestoreOperation) State {
	if s.Stage != StageRestoreProgress || s.Handle != handle {
		return s
	}
	s.Operation = &op
	s.PollFailures = 0
	s.PollAbandoned = false
	s.Failure = nil
	if op.Error != nil {
		s.Failure = ClassifyOperationError(op.Error)
	}
	return s
}

// PollFailed counts a failed status fetch; the last known status is kept.
// Polling is abandoned after maxFailures consecutive failures (0 means never).
func PollFailed(s State, handle string, err error, maxFailures int) State {
	if s.Stage != StageRestoreProgress || s.Handle != handle {
		return s
	}
	s.PollFailures++
	if maxFailures > 0 && s.PollFailures >= maxFailures {
		s.PollAbandoned = true
		s.Failure = &Failure{
			Class:   FailurePollAbandoned,
			Message: "status checks keep failing: " + gcloud.MessageOf(err),
		}
	}
	return s
}

// Rearm clears an abandoned poll so status checks can resume
func Rearm(s State) State {
	if !s.PollAbandoned {
		return s
	}
	s.PollAbandoned = false
	s.PollFailures = 0
	if s.Failure != nil && s.Failure.Class == FailurePollAbandoned {
		s.Failure = nil
	}
	return s
}

// Reset returns a finished session to authentication. The auth status and
// project list survive; selection, listings and operation do not.
func Reset(s State) (State, error) {
	if s.Stage != StageRestoreProgress {
		return s, refused("nothing to reset during %s", s.Stage)
	}
	if !s.Terminal() && !s.PollAbandoned {
		return s, refused("restore is still running")
	}
	next := NewState()
	next.Auth = s.Auth
	next.Projects = s.Projects
	return next, nil
}
