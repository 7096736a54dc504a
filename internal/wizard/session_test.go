package wizard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firerestore-dev/firerestore/internal/gcloud"
	"github.com/firerestore-dev/firerestore/internal/gcloud/gcloudtest"
	"github.com/firerestore-dev/firerestore/internal/wizard"
)

const (
	backupPath   = "gs://proj1.firebasestorage.app/2024-05-01T02:00:00_1/"
	operationOne = "projects/proj1/databases/(default)/operations/OP1"
	databaseLoc  = "gcloud firestore databases describe --database=(default) --project=proj1 --format=value(locationId)"
)

type recorder struct {
	mu       sync.Mutex
	started  []string
	failures []wizard.Failure
	finished map[string]wizard.Outcome
	finishes int
}

func newRecorder() *recorder {
	return &recorder{finished: make(map[string]wizard.Outcome)}
}

func (r *recorder) RecordStart(ctx context.Context, sessionID string, sel wizard.Selection, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, handle)
	return nil
}

func (r *recorder) RecordStartFailure(ctx context.Context, sessionID string, sel wizard.Selection, failure wizard.Failure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failure)
	return nil
}

func (r *recorder) RecordFinish(ctx context.Context, handle string, outcome wizard.Outcome, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[handle] = outcome
	r.finishes++
	return nil
}

func (r *recorder) outcome(handle string) (wizard.Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.finished[handle]
	return o, ok
}

// scriptedProject scripts a logged-in SDK with one project, one database and one backup
func scriptedProject() *gcloudtest.Runner {
	return gcloudtest.NewRunner().
		Authenticated("a@x.com", "proj1").
		On(gcloudtest.ProjectsCommand, gcloudtest.OK("proj1\nproj2\n")).
		On(gcloudtest.DatabasesCommand("proj1"), gcloudtest.OK("projects/proj1/databases/(default)\n")).
		On(gcloudtest.BackupsCommand("proj1"), gcloudtest.OK(backupPath)).
		On(gcloudtest.BucketLocationCommand("proj1"), gcloudtest.OK("US-CENTRAL1\n")).
		On(databaseLoc, gcloudtest.OK("nam5\n"))
}

func newSession(r *gcloudtest.Runner, rec wizard.Recorder, maxFailures int) *wizard.Session {
	gw := gcloud.New(r, gcloud.DefaultOptions(), zerolog.Nop())
	opts := wizard.Options{PollInterval: 5 * time.Millisecond, MaxPollFailures: maxFailures}
	return wizard.NewSession("test", gw, rec, opts, zerolog.Nop())
}

// toReview walks a session to the review step with the catalog backup selected
func toReview(t *testing.T, s *wizard.Session) wizard.State {
	t.Helper()
	ctx := context.Background()

	_, err := s.CheckAuth(ctx)
	require.NoError(t, err)
	_, err = s.Advance(ctx)
	require.NoError(t, err)
	_, err = s.Advance(ctx)
	require.NoError(t, err)
	_, err = s.SelectBackup(backupPath)
	require.NoError(t, err)
	st, err := s.Advance(ctx)
	require.NoError(t, err)
	require.Equal(t, wizard.StageReviewConfirm, st.Stage)
	return st
}

func TestSession_CheckAuthPrepopulatesProject(t *testing.T) {
	s := newSession(scriptedProject(), nil, 20)

	st, err := s.CheckAuth(context.Background())

	require.NoError(t, err)
	assert.Equal(t, wizard.StageAuthentication, st.Stage, "stage waits for the user to advance")
	assert.Equal(t, "proj1", st.Selection.Project)
	assert.Equal(t, "a@x.com", st.Auth.Account)
	assert.Equal(t, []string{"proj1", "proj2"}, st.Projects)
	assert.Equal(t, []string{"(default)"}, st.Databases)
	assert.Equal(t, "(default)", st.Selection.Database)
	require.Len(t, st.Backups, 1)
	assert.Equal(t, "US-CENTRAL1", st.Backups[0].Location)
}

func TestSession_NotInstalled(t *testing.T) {
	r := gcloudtest.NewRunner()
	r.Missing = true
	s := newSession(r, nil, 20)

	st, err := s.CheckAuth(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Auth.Installed)
	assert.Empty(t, r.Calls())

	_, err = s.Advance(context.Background())
	assert.ErrorIs(t, err, wizard.ErrRefused)
}

func TestSession_SelectProjectLoadsListings(t *testing.T) {
	r := scriptedProject().
		On(gcloudtest.DatabasesCommand("proj2"), gcloudtest.OK("projects/proj2/databases/eu\nprojects/proj2/databases/us\n")).
		On(gcloudtest.BackupsCommand("proj2"), gcloudtest.Fail("AccessDeniedException: 403"))
	s := newSession(r, nil, 20)
	ctx := context.Background()

	_, err := s.CheckAuth(ctx)
	require.NoError(t, err)
	_, err = s.Advance(ctx)
	require.NoError(t, err)

	st, err := s.SelectProject(ctx, "proj2")
	require.NoError(t, err)
	assert.Equal(t, "proj2", st.Selection.Project)
	assert.Equal(t, []string{"eu", "us"}, st.Databases)
	assert.Equal(t, "eu", st.Selection.Database)
	assert.Empty(t, st.Backups)

	st, err = s.SelectDatabase("us")
	require.NoError(t, err)
	assert.Equal(t, "us", st.Selection.Database)

	_, err = s.SelectProject(ctx, "Not-Valid")
	assert.ErrorIs(t, err, wizard.ErrInvalidInput)
}

func TestSession_ReviewResolvesLocations(t *testing.T) {
	s := newSession(scriptedProject(), nil, 20)

	st := toReview(t, s)

	assert.Equal(t, "US-CENTRAL1", st.BucketLocation)
	assert.Equal(t, "nam5", st.DatabaseLocation)
	assert.Equal(t, backupPath, st.Selection.BackupPath())
}

func TestSession_LocationMismatchStaysInReview(t *testing.T) {
	msg := "ERROR: (gcloud.firestore.import) INVALID_ARGUMENT: Bucket b is in location us-central1. " +
		"This database can only operate on buckets spanning location asia-northeast1."
	r := scriptedProject().
		On(gcloudtest.ImportCommand("gs://b/f", "proj1", "(default)"), gcloudtest.Fail(msg))
	rec := newRecorder()
	s := newSession(r, rec, 20)
	ctx := context.Background()

	toReview(t, s)
	_, err := s.Back()
	require.NoError(t, err)
	_, err = s.SetManualPath("gs://b/f")
	require.NoError(t, err)
	_, err = s.Advance(ctx)
	require.NoError(t, err)

	st, err := s.Confirm(ctx)

	require.Error(t, err)
	assert.Equal(t, wizard.StageReviewConfirm, st.Stage)
	assert.False(t, st.Starting)
	assert.Nil(t, st.Operation)
	require.NotNil(t, st.Failure)
	assert.Equal(t, wizard.FailureLocationMismatch, st.Failure.Class)
	assert.Equal(t, msg, st.Failure.Message)
	assert.NotEmpty(t, st.Failure.Guidance)
	assert.False(t, s.Polling())

	require.Len(t, rec.failures, 1)
	assert.Equal(t, wizard.FailureLocationMismatch, rec.failures[0].Class)
}

func TestSession_PollsThroughFailuresToSuccess(t *testing.T) {
	done := `{"name":"` + operationOne + `","done":true,"metadata":{"operationType":"IMPORT_DOCUMENTS","endTime":"2024-05-01T10:05:00Z"}}`
	r := scriptedProject().
		On(gcloudtest.ImportCommand(backupPath, "proj1", "(default)"),
			gcloudtest.OK("name: "+operationOne+"\n")).
		On(gcloudtest.DescribeCommand(operationOne, "proj1", "(default)"),
			gcloudtest.Fail("ERROR: backend unavailable"),
			gcloudtest.Fail("ERROR: backend unavailable"),
			gcloudtest.Fail("ERROR: backend unavailable"),
			gcloudtest.OK(done))
	rec := newRecorder()
	s := newSession(r, rec, 20)
	toReview(t, s)

	st, err := s.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wizard.StageRestoreProgress, st.Stage)
	assert.Equal(t, operationOne, st.Handle)
	require.NotNil(t, st.Operation)
	assert.False(t, st.Terminal())

	require.Eventually(t, func() bool {
		return s.Snapshot().Terminal() && !s.Polling()
	}, 2*time.Second, 5*time.Millisecond)

	final := s.Snapshot()
	assert.True(t, final.Operation.Succeeded())
	assert.Equal(t, "2024-05-01T10:05:00Z", final.Operation.EndTime)
	assert.Zero(t, final.PollFailures)
	assert.Nil(t, final.Failure)

	outcome, ok := rec.outcome(operationOne)
	require.True(t, ok)
	assert.Equal(t, wizard.OutcomeSucceeded, outcome)
	assert.Equal(t, []string{operationOne}, rec.started)
}

func TestSession_ReportedErrorIsTerminal(t *testing.T) {
	failed := `{"name":"` + operationOne + `","error":{"code":3,"message":"bucket location mismatch"}}`
	r := scriptedProject().
		On(gcloudtest.ImportCommand(backupPath, "proj1", "(default)"), gcloudtest.OK("name: "+operationOne+"\n")).
		On(gcloudtest.DescribeCommand(operationOne, "proj1", "(default)"), gcloudtest.OK(failed))
	rec := newRecorder()
	s := newSession(r, rec, 20)
	toReview(t, s)

	st, err := s.Confirm(context.Background())

	require.NoError(t, err)
	assert.True(t, st.Terminal())
	assert.False(t, s.Polling(), "no poll task for an already finished operation")
	require.NotNil(t, st.Failure)
	assert.Equal(t, wizard.FailureLocationMismatch, st.Failure.Class)

	outcome, ok := rec.outcome(operationOne)
	require.True(t, ok)
	assert.Equal(t, wizard.OutcomeFailed, outcome)
}

func TestSession_AbandonsAndRearms(t *testing.T) {
	describe := gcloudtest.DescribeCommand(operationOne, "proj1", "(default)")
	r := scriptedProject().
		On(gcloudtest.ImportCommand(backupPath, "proj1", "(default)"), gcloudtest.OK("name: "+operationOne+"\n")).
		On(describe, gcloudtest.Fail("ERROR: unavailable"), gcloudtest.Fail("ERROR: unavailable"), gcloudtest.Fail("ERROR: unavailable"),
			gcloudtest.OK(`{"name":"`+operationOne+`","done":true}`))
	rec := newRecorder()
	s := newSession(r, rec, 3)
	toReview(t, s)

	_, err := s.Confirm(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.Snapshot().PollAbandoned && !s.Polling()
	}, 2*time.Second, 5*time.Millisecond)

	st := s.Snapshot()
	require.NotNil(t, st.Failure)
	assert.Equal(t, wizard.FailurePollAbandoned, st.Failure.Class)
	assert.False(t, st.Terminal())
	outcome, _ := rec.outcome(operationOne)
	assert.Equal(t, wizard.OutcomeAbandoned, outcome)

	st, err = s.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, st.PollAbandoned)
	assert.True(t, st.Operation.Succeeded())
	assert.False(t, s.Polling())

	outcome, _ = rec.outcome(operationOne)
	assert.Equal(t, wizard.OutcomeSucceeded, outcome)
}

func TestSession_RefreshDuringPolling(t *testing.T) {
	processing := `{"name":"` + operationOne + `","metadata":{"operationState":"PROCESSING","progressDocuments":{"completedWork":"10","estimatedWork":"100"}}}`
	done := `{"name":"` + operationOne + `","done":true,"metadata":{"operationState":"SUCCESSFUL"}}`
	describe := gcloudtest.DescribeCommand(operationOne, "proj1", "(default)")

	responses := make([]gcloudtest.Response, 0, 41)
	for i := 0; i < 40; i++ {
		responses = append(responses, gcloudtest.Slow(2*time.Millisecond, gcloudtest.OK(processing)))
	}
	responses = append(responses, gcloudtest.OK(done))

	r := scriptedProject().
		On(gcloudtest.ImportCommand(backupPath, "proj1", "(default)"), gcloudtest.OK("name: "+operationOne+"\n")).
		On(describe, responses...)
	rec := newRecorder()
	s := newSession(r, rec, 20)
	toReview(t, s)

	_, err := s.Confirm(context.Background())
	require.NoError(t, err)
	require.True(t, s.Polling())

	var wg sync.WaitGroup
	states := make([]wizard.State, 20)
	errs := make([]error, 20)
	for i := range states {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			states[i], errs[i] = s.Refresh(context.Background())
		}(i)
	}
	wg.Wait()

	for i, st := range states {
		require.NoError(t, errs[i])
		assert.Equal(t, wizard.StageRestoreProgress, st.Stage)
		assert.Equal(t, operationOne, st.Handle)
		require.NotNil(t, st.Operation)
		assert.Equal(t, operationOne, st.Operation.Name)
		if !st.Operation.Done {
			assert.Equal(t, "PROCESSING", st.Operation.State)
			require.NotNil(t, st.Operation.ProgressDocuments)
		}
	}

	require.Eventually(t, func() bool {
		return s.Snapshot().Terminal() && !s.Polling()
	}, 5*time.Second, 5*time.Millisecond)

	final := s.Snapshot()
	assert.True(t, final.Operation.Succeeded())
	assert.Equal(t, "SUCCESSFUL", final.Operation.State)

	calls := len(r.Calls())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, len(r.Calls()), "no poll task outlives the finished operation")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.finishes, "outcome recorded once")
	assert.Equal(t, wizard.OutcomeSucceeded, rec.finished[operationOne])
}

func TestSession_ResetAfterCompletion(t *testing.T) {
	processing := `{"name":"` + operationOne + `","metadata":{"operationState":"PROCESSING"}}`
	r := scriptedProject().
		On(gcloudtest.ImportCommand(backupPath, "proj1", "(default)"), gcloudtest.OK("name: "+operationOne+"\n")).
		On(gcloudtest.DescribeCommand(operationOne, "proj1", "(default)"),
			gcloudtest.OK(processing), gcloudtest.OK(processing), gcloudtest.OK(processing),
			gcloudtest.OK(`{"name":"`+operationOne+`","done":true}`))
	s := newSession(r, nil, 20)
	toReview(t, s)

	_, err := s.Confirm(context.Background())
	require.NoError(t, err)

	_, err = s.Reset()
	assert.ErrorIs(t, err, wizard.ErrRefused, "reset waits for completion")

	require.Eventually(t, func() bool { return s.Snapshot().Terminal() }, 2*time.Second, 5*time.Millisecond)

	st, err := s.Reset()
	require.NoError(t, err)
	assert.Equal(t, wizard.StageAuthentication, st.Stage)
	assert.Equal(t, wizard.Selection{}, st.Selection)
	assert.Nil(t, st.Operation)
	assert.Empty(t, st.Handle)
	assert.False(t, s.Polling())
}

func TestSession_RefreshOutsideProgress(t *testing.T) {
	s := newSession(scriptedProject(), nil, 20)

	_, err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, wizard.ErrRefused)

	_, err = s.Confirm(context.Background())
	assert.ErrorIs(t, err, wizard.ErrRefused)
}
