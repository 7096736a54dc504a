package wizard

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firerestore-dev/firerestore/internal/gcloud"
)

func authenticated(project string) gcloud.AuthStatus {
	return gcloud.AuthStatus{Installed: true, Authenticated: true, Account: "a@x.com", Project: project}
}

func atStage(stage Stage) State {
	s := NewState()
	s.Stage = stage
	s.Auth = &gcloud.AuthStatus{Installed: true, Authenticated: true}
	return s
}

func TestApplyAuthStatus(t *testing.T) {
	t.Run("pre-populates configured project", func(t *testing.T) {
		s, err := ApplyAuthStatus(NewState(), authenticated("proj1"))
		require.NoError(t, err)
		assert.Equal(t, "proj1", s.Selection.Project)
		assert.Equal(t, StageAuthentication, s.Stage)
	})

	t.Run("keeps an existing selection", func(t *testing.T) {
		s := NewState()
		s.Selection.Project = "other"
		s, err := ApplyAuthStatus(s, authenticated("proj1"))
		require.NoError(t, err)
		assert.Equal(t, "other", s.Selection.Project)
	})

	t.Run("not authenticated stays put", func(t *testing.T) {
		s, err := ApplyAuthStatus(NewState(), gcloud.AuthStatus{Installed: true, Project: "proj1"})
		require.NoError(t, err)
		assert.Empty(t, s.Selection.Project)

		_, err = Advance(s)
		assert.ErrorIs(t, err, ErrRefused)
	})

	t.Run("refused outside authentication", func(t *testing.T) {
		_, err := ApplyAuthStatus(atStage(StageBackupSelection), authenticated(""))
		assert.ErrorIs(t, err, ErrRefused)
	})
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		name      string
		state     func() State
		wantStage Stage
		wantErr   bool
	}{
		{
			name:      "no auth check yet",
			state:     NewState,
			wantStage: StageAuthentication,
			wantErr:   true,
		},
		{
			name:      "authenticated",
			state:     func() State { return atStage(StageAuthentication) },
			wantStage: StageDatabaseSelection,
		},
		{
			name: "project without database",
			state: func() State {
				s := atStage(StageDatabaseSelection)
				s.Selection.Project = "proj1"
				return s
			},
			wantStage: StageDatabaseSelection,
			wantErr:   true,
		},
		{
			name: "database without project",
			state: func() State {
				s := atStage(StageDatabaseSelection)
				s.Selection.Database = "(default)"
				return s
			},
			wantStage: StageDatabaseSelection,
			wantErr:   true,
		},
		{
			name: "project and database",
			state: func() State {
				s := atStage(StageDatabaseSelection)
				s.Selection.Project = "proj1"
				s.Selection.Database = "(default)"
				return s
			},
			wantStage: StageBackupSelection,
		},
		{
			name: "manual mode without path",
			state: func() State {
				s := atStage(StageBackupSelection)
				s.Selection = Selection{Project: "p", Database: "(default)", UseManualPath: true}
				return s
			},
			wantStage: StageBackupSelection,
			wantErr:   true,
		},
		{
			name: "catalog backup chosen",
			state: func() State {
				s := atStage(StageBackupSelection)
				s.Selection = Selection{Project: "p", Database: "(default)", CatalogBackup: "gs://b/f/"}
				return s
			},
			wantStage: StageReviewConfirm,
		},
		{
			name:      "review needs confirmation",
			state:     func() State { return atStage(StageReviewConfirm) },
			wantStage: StageReviewConfirm,
			wantErr:   true,
		},
		{
			name:      "progress is final",
			state:     func() State { return atStage(StageRestoreProgress) },
			wantStage: StageRestoreProgress,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := Advance(tt.state())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrRefused)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantStage, next.Stage)
		})
	}
}

func TestBack(t *testing.T) {
	s, err := Back(atStage(StageBackupSelection))
	require.NoError(t, err)
	assert.Equal(t, StageDatabaseSelection, s.Stage)

	s, err = Back(atStage(StageReviewConfirm))
	require.NoError(t, err)
	assert.Equal(t, StageBackupSelection, s.Stage)

	for _, stage := range []Stage{StageAuthentication, StageDatabaseSelection, StageRestoreProgress} {
		s, err := Back(atStage(stage))
		assert.ErrorIs(t, err, ErrRefused, stage.String())
		assert.Equal(t, stage, s.Stage)
	}

	starting := atStage(StageReviewConfirm)
	starting.Starting = true
	_, err = Back(starting)
	assert.ErrorIs(t, err, ErrRefused)
}

func TestSelectProject(t *testing.T) {
	s := atStage(StageDatabaseSelection)
	s.Selection = Selection{Project: "proj1", Database: "db1", CatalogBackup: "gs://proj1.firebasestorage.app/b1/"}
	s.Databases = []string{"db1"}
	s.Backups = []gcloud.BackupDescriptor{{Name: "b1", Path: "gs://proj1.firebasestorage.app/b1/"}}

	same, err := SelectProject(s, "proj1")
	require.NoError(t, err)
	assert.Equal(t, "db1", same.Selection.Database)

	next, err := SelectProject(s, "proj2")
	require.NoError(t, err)
	assert.Equal(t, "proj2", next.Selection.Project)
	assert.Empty(t, next.Selection.Database)
	assert.Empty(t, next.Selection.CatalogBackup)
	assert.Empty(t, next.Databases)
	assert.Empty(t, next.Backups)

	_, err = SelectProject(s, "bad project; rm -rf /")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = SelectProject(atStage(StageReviewConfirm), "proj2")
	assert.ErrorIs(t, err, ErrRefused)
}

func TestApplyListings_DiscardsStaleProject(t *testing.T) {
	s := atStage(StageDatabaseSelection)
	s.Selection.Project = "proj2"

	s = ApplyDatabases(s, "proj1", []string{"old-db"})
	s = ApplyBackups(s, "proj1", []gcloud.BackupDescriptor{{Name: "old", Path: "gs://proj1.firebasestorage.app/old/"}})
	assert.Empty(t, s.Databases)
	assert.Empty(t, s.Backups)
	assert.Empty(t, s.Selection.Database)

	s = ApplyDatabases(s, "proj2", []string{"db-a", "db-b"})
	assert.Equal(t, []string{"db-a", "db-b"}, s.Databases)
	assert.Equal(t, "db-a", s.Selection.Database)

	s = ApplyDatabases(s, "proj2", []string{"db-b"})
	assert.Equal(t, "db-a", s.Selection.Database, "existing choice is kept")

	s = ApplyDatabases(s, "proj2", nil)
	assert.Equal(t, []string{gcloud.DefaultDatabaseID}, s.Databases)
}

func TestBackupSource_IsExclusive(t *testing.T) {
	catalogPath := "gs://proj1.firebasestorage.app/b1/"
	s := atStage(StageBackupSelection)
	s.Selection = Selection{Project: "proj1", Database: "(default)"}
	s.Backups = []gcloud.BackupDescriptor{{Name: "b1", Path: catalogPath}}

	s, err := SelectCatalogBackup(s, catalogPath)
	require.NoError(t, err)
	assert.Equal(t, catalogPath, s.Selection.BackupPath())

	s, err = SetManualPath(s, "  gs://b/f  ")
	require.NoError(t, err)
	assert.Empty(t, s.Selection.CatalogBackup)
	assert.True(t, s.Selection.UseManualPath)
	assert.Equal(t, "gs://b/f", s.Selection.BackupPath())

	s, err = SelectCatalogBackup(s, catalogPath)
	require.NoError(t, err)
	assert.Empty(t, s.Selection.ManualPath)
	assert.False(t, s.Selection.UseManualPath)

	s, err = SetBackupSource(s, true)
	require.NoError(t, err)
	assert.Empty(t, s.Selection.CatalogBackup)
	assert.Empty(t, s.Selection.BackupPath())

	_, err = SelectCatalogBackup(s, "gs://elsewhere/b9/")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = SetManualPath(s, "gs://b/$(id)")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = SetManualPath(atStage(StageDatabaseSelection), "gs://b/f")
	assert.ErrorIs(t, err, ErrRefused)
}

func TestBeginRestore(t *testing.T) {
	s := atStage(StageReviewConfirm)
	s.Selection = Selection{Project: "proj1", Database: "(default)", ManualPath: "gs://b/f", UseManualPath: true}

	s, err := BeginRestore(s)
	require.NoError(t, err)
	assert.True(t, s.Starting)

	_, err = BeginRestore(s)
	assert.ErrorIs(t, err, ErrRefused, "second confirm while starting")

	_, err = BeginRestore(atStage(StageBackupSelection))
	assert.ErrorIs(t, err, ErrRefused)
}

func TestStartFailed_ClassifiesLocationMismatch(t *testing.T) {
	s := atStage(StageReviewConfirm)
	s.Starting = true

	err := &gcloud.GatewayError{
		Kind:    gcloud.KindCommandFailed,
		Message: "INVALID_ARGUMENT: Bucket b is in location us-central1",
	}
	s = StartFailed(s, err)

	assert.Equal(t, StageReviewConfirm, s.Stage)
	assert.False(t, s.Starting)
	require.NotNil(t, s.Failure)
	assert.Equal(t, FailureLocationMismatch, s.Failure.Class)
	assert.Equal(t, gcloud.LocationMismatchGuidance, s.Failure.Guidance)

	s = StartFailed(s, &gcloud.GatewayError{Kind: gcloud.KindCommandFailed, Message: "PERMISSION_DENIED"})
	assert.Equal(t, FailureRestoreStart, s.Failure.Class)
	assert.Empty(t, s.Failure.Guidance)

	s = StartFailed(s, errors.New("exec: killed"))
	assert.Equal(t, FailureRestoreStart, s.Failure.Class)
	assert.Equal(t, "exec: killed", s.Failure.Message)
}

func TestOperationStatus_GuardsHandle(t *testing.T) {
	s := atStage(StageReviewConfirm)
	s = RestoreStarted(s, gcloud.RestoreOperation{Name: "op-1"})
	assert.Equal(t, StageRestoreProgress, s.Stage)
	assert.True(t, s.Polling())

	stale := ApplyOperationStatus(s, "op-0", gcloud.RestoreOperation{Name: "op-0", Done: true})
	assert.False(t, stale.Terminal())

	running := ApplyOperationStatus(s, "op-1", gcloud.RestoreOperation{
		Name:              "op-1",
		State:             "PROCESSING",
		ProgressDocuments: &gcloud.Work{CompletedWork: "10"},
	})
	require.NotNil(t, running.Operation.ProgressDocuments)

	// full replace: fields missing from the new status do not linger
	done := ApplyOperationStatus(running, "op-1", gcloud.RestoreOperation{Name: "op-1", Done: true})
	assert.Nil(t, done.Operation.ProgressDocuments)
	assert.True(t, done.Terminal())
	assert.False(t, done.Polling())
	assert.Nil(t, done.Failure)
}

func TestOperationStatus_ReportedError(t *testing.T) {
	s := RestoreStarted(atStage(StageReviewConfirm), gcloud.RestoreOperation{Name: "op-1"})

	s = ApplyOperationStatus(s, "op-1", gcloud.RestoreOperation{
		Name:  "op-1",
		Error: gcloud.NewTextError("The bucket location does not match the database"),
	})

	assert.True(t, s.Terminal(), "error is terminal even without done")
	require.NotNil(t, s.Failure)
	assert.Equal(t, FailureLocationMismatch, s.Failure.Class)

	s = RestoreStarted(atStage(StageReviewConfirm), gcloud.RestoreOperation{Name: "op-2"})
	s = ApplyOperationStatus(s, "op-2", gcloud.RestoreOperation{
		Name:  "op-2",
		Done:  true,
		Error: &gcloud.OperationError{Code: 7, Message: "permission denied"},
	})
	assert.Equal(t, FailureOperationReported, s.Failure.Class)

	data, err := json.Marshal(s.Operation)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"op-2","done":true,"error":{"code":7,"message":"permission denied"}}`, string(data))
}

func TestPollFailed(t *testing.T) {
	s := RestoreStarted(atStage(StageReviewConfirm), gcloud.RestoreOperation{Name: "op-1", OperationType: "IMPORT_DOCUMENTS"})
	fetchErr := &gcloud.GatewayError{Kind: gcloud.KindCommandFailed, Message: "deadline exceeded"}

	s = PollFailed(s, "op-1", fetchErr, 3)
	s = PollFailed(s, "op-1", fetchErr, 3)
	assert.Equal(t, 2, s.PollFailures)
	assert.False(t, s.PollAbandoned)
	assert.Equal(t, "IMPORT_DOCUMENTS", s.Operation.OperationType, "previous status is kept")

	ignored := PollFailed(s, "op-0", fetchErr, 3)
	assert.Equal(t, 2, ignored.PollFailures)

	s = PollFailed(s, "op-1", fetchErr, 3)
	assert.True(t, s.PollAbandoned)
	assert.False(t, s.Polling())
	require.NotNil(t, s.Failure)
	assert.Equal(t, FailurePollAbandoned, s.Failure.Class)
	assert.Contains(t, s.Failure.Message, "deadline exceeded")

	s = Rearm(s)
	assert.False(t, s.PollAbandoned)
	assert.Zero(t, s.PollFailures)
	assert.Nil(t, s.Failure)
	assert.True(t, s.Polling())

	unbounded := PollFailed(s, "op-1", fetchErr, 0)
	assert.False(t, unbounded.PollAbandoned)
}

func TestReset(t *testing.T) {
	running := RestoreStarted(atStage(StageReviewConfirm), gcloud.RestoreOperation{Name: "op-1"})
	running.Selection = Selection{Project: "proj1", Database: "(default)", CatalogBackup: "gs://b/f/"}
	running.Projects = []string{"proj1"}

	_, err := Reset(running)
	assert.ErrorIs(t, err, ErrRefused, "cannot reset a running restore")

	done := ApplyOperationStatus(running, "op-1", gcloud.RestoreOperation{Name: "op-1", Done: true})
	s, err := Reset(done)
	require.NoError(t, err)

	assert.Equal(t, StageAuthentication, s.Stage)
	assert.Equal(t, Selection{}, s.Selection)
	assert.Nil(t, s.Operation)
	assert.Empty(t, s.Handle)
	assert.Nil(t, s.Failure)
	assert.Equal(t, []string{"proj1"}, s.Projects)
	require.NotNil(t, s.Auth)

	_, err = Advance(s)
	assert.NoError(t, err)

	abandoned := PollFailed(running, "op-1", errors.New("boom"), 1)
	_, err = Reset(abandoned)
	assert.NoError(t, err)

	_, err = Reset(atStage(StageReviewConfirm))
	assert.ErrorIs(t, err, ErrRefused)
}

func TestStage_JSON(t *testing.T) {
	data, err := json.Marshal(StageReviewConfirm)
	require.NoError(t, err)
	assert.Equal(t, `"review_confirm"`, string(data))

	var stage Stage
	require.NoError(t, json.Unmarshal([]byte(`"restore_progress"`), &stage))
	assert.Equal(t, StageRestoreProgress, stage)

	assert.Error(t, json.Unmarshal([]byte(`"nowhere"`), &stage))
}
