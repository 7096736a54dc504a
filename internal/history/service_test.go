package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/firerestore-dev/firerestore/internal/models"
	"github.com/firerestore-dev/firerestore/internal/wizard"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := models.Open(filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = models.Close(db) })
	return NewService(db, zerolog.Nop()), db
}

var selection = wizard.Selection{
	Project:       "proj1",
	Database:      "(default)",
	ManualPath:    "gs://b/f",
	UseManualPath: true,
}

func TestService_RecordLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordStart(ctx, "sess-1", selection, "op-1"))

	records, err := svc.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.StatusRunning, records[0].Status)
	assert.Equal(t, "gs://b/f", records[0].BackupPath)
	assert.Len(t, records[0].ID, 26)
	assert.Nil(t, records[0].FinishedAt)

	require.NoError(t, svc.RecordFinish(ctx, "op-1", wizard.OutcomeAbandoned, "status checks keep failing"))
	require.NoError(t, svc.RecordFinish(ctx, "op-1", wizard.OutcomeSucceeded, ""))

	record, err := svc.Get(ctx, records[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, record.Status)
	assert.NotNil(t, record.FinishedAt)

	// finished records are not rewritten
	require.NoError(t, svc.RecordFinish(ctx, "op-1", wizard.OutcomeFailed, "late"))
	record, err = svc.Get(ctx, records[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, record.Status)

	assert.Error(t, svc.RecordFinish(ctx, "op-1", wizard.Outcome("exploded"), ""))
}

func TestService_RecordStartFailure(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	failure := wizard.Failure{Class: wizard.FailureLocationMismatch, Message: "bucket location mismatch"}
	require.NoError(t, svc.RecordStartFailure(ctx, "sess-1", selection, failure))

	records, err := svc.List(ctx, ListOptions{Project: "proj1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.StatusRejected, records[0].Status)
	assert.Equal(t, "location_mismatch", records[0].FailureClass)
	assert.Empty(t, records[0].OperationName)

	records, err = svc.List(ctx, ListOptions{Project: "other"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestService_ListNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, handle := range []string{"op-1", "op-2", "op-3"} {
		require.NoError(t, svc.RecordStart(ctx, "sess-1", selection, handle))
		time.Sleep(2 * time.Millisecond)
	}

	records, err := svc.List(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "op-3", records[0].OperationName)
	assert.Equal(t, "op-2", records[1].OperationName)
}

func TestService_Prune(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	rows := []models.RestoreRecord{
		{BaseModel: models.BaseModel{CreatedAt: old}, Project: "proj1", Database: "(default)", BackupPath: "gs://b/1", Status: models.StatusSucceeded},
		{BaseModel: models.BaseModel{CreatedAt: old}, Project: "proj1", Database: "(default)", BackupPath: "gs://b/2", Status: models.StatusRunning},
		{Project: "proj1", Database: "(default)", BackupPath: "gs://b/3", Status: models.StatusFailed},
	}
	require.NoError(t, db.Create(&rows).Error)

	deleted, err := svc.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	records, err := svc.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestService_GetNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}
