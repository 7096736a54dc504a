package wizard

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/firerestore-dev/firerestore/internal/assert"
	"github.com/firerestore-dev/firerestore/internal/gcloud"
	"github.com/firerestore-dev/firerestore/internal/metrics"
	"github.com/firerestore-dev/firerestore/internal/poller"
)

// Gateway is the subset of *gcloud.Gateway a session needs
type Gateway interface {
	AuthStatus(ctx context.Context) gcloud.AuthStatus
	ListProjects(ctx context.Context) []string
	ListDatabases(ctx context.Context, project string) ([]string, error)
	ListBackups(ctx context.Context, project string) ([]gcloud.BackupDescriptor, error)
	BucketLocation(ctx context.Context, bucket string) (string, error)
	DatabaseLocation(ctx context.Context, project, database string) (string, error)
	StartRestore(ctx context.Context, backupPath, project, database string) (gcloud.RestoreOperation, error)
	OperationStatus(ctx context.Context, name, project, database string) (gcloud.RestoreOperation, error)
}

// Recorder keeps an audit trail of restores. Recording errors are logged, never surfaced.
type Recorder interface {
	RecordStart(ctx context.Context, sessionID string, sel Selection, handle string) error
	RecordStartFailure(ctx context.Context, sessionID string, sel Selection, failure Failure) error
	RecordFinish(ctx context.Context, handle string, outcome Outcome, message string) error
}

// Outcome is how a started restore ended
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

// Options tune polling
type Options struct {
	PollInterval    time.Duration
	MaxPollFailures int
}

// DefaultOptions polls every 3s and gives up after 20 consecutive failures
func DefaultOptions() Options {
	return Options{
		PollInterval:    poller.DefaultInterval,
		MaxPollFailures: 20,
	}
}

// Session is one user's walk through the wizard
type Session struct {
	id       string
	gateway  Gateway
	recorder Recorder
	poller   *poller.Poller
	opts     Options
	logger   zerolog.Logger

	mu       sync.Mutex
	state    State
	lastSeen time.Time

	// serializes status checks from the poller and manual refreshes
	checkMu sync.Mutex
}

// NewSession creates a session in the authentication stage. recorder may be nil.
func NewSession(id string, gateway Gateway, recorder Recorder, opts Options, logger zerolog.Logger) *Session {
	logger = logger.With().Str("component", "wizard").Str("session_id", id).Logger()
	return &Session{
		id:       id,
		gateway:  gateway,
		recorder: recorder,
		poller:   poller.New(opts.PollInterval, logger),
		opts:     opts,
		logger:   logger,
		state:    NewState(),
		lastSeen: time.Now(),
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns the current state
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Touch marks the session as used now
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen returns when the session was last used
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Polling reports whether a status poll task is running
func (s *Session) Polling() bool {
	return s.poller.Active()
}

// Close stops polling
func (s *Session) Close() {
	s.poller.Stop()
}

func (s *Session) update(fn func(State) (State, error)) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.state)
	if err != nil {
		return s.state, err
	}
	s.state = next
	return next, nil
}

func (s *Session) apply(fn func(State) State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn(s.state)
	return s.state
}

// CheckAuth queries the CLI auth state. When authenticated, projects are
// loaded along with the listings of a pre-selected project.
func (s *Session) CheckAuth(ctx context.Context) (State, error) {
	if st := s.Snapshot(); st.Stage != StageAuthentication {
		return st, refused("auth check only runs during %s", StageAuthentication)
	}

	status := s.gateway.AuthStatus(ctx)
	st, err := s.update(func(st State) (State, error) {
		return ApplyAuthStatus(st, status)
	})
	if err != nil {
		return st, err
	}

	s.logger.Info().
		Bool("installed", status.Installed).
		Bool("authenticated", status.Authenticated).
		Str("account", status.Account).
		Msg("Auth status checked")

	if !status.Authenticated {
		return st, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		projects := s.gateway.ListProjects(gctx)
		s.apply(func(st State) State { return ApplyProjects(st, projects) })
		return nil
	})
	if project := st.Selection.Project; project != "" {
		g.Go(func() error {
			return s.loadProject(gctx, project)
		})
	}
	err = g.Wait()
	return s.Snapshot(), err
}

// Advance moves to the next stage. Entering review resolves bucket and
// database locations on a best-effort basis.
func (s *Session) Advance(ctx context.Context) (State, error) {
	st, err := s.update(Advance)
	if err != nil {
		return st, err
	}
	if st.Stage == StageReviewConfirm {
		s.loadLocations(ctx, st)
	}
	return s.Snapshot(), nil
}

// Back returns to the previous stage
func (s *Session) Back() (State, error) {
	return s.update(Back)
}

// SelectProject changes the project and loads its databases and backups concurrently
func (s *Session) SelectProject(ctx context.Context, project string) (State, error) {
	st, err := s.update(func(st State) (State, error) {
		return SelectProject(st, project)
	})
	if err != nil {
		return st, err
	}
	if err := s.loadProject(ctx, project); err != nil {
		return s.Snapshot(), err
	}
	return s.Snapshot(), nil
}

// SelectDatabase sets the target database
func (s *Session) SelectDatabase(database string) (State, error) {
	return s.update(func(st State) (State, error) {
		return SelectDatabase(st, database)
	})
}

// SelectBackup picks a backup from the catalog
func (s *Session) SelectBackup(path string) (State, error) {
	return s.update(func(st State) (State, error) {
		return SelectCatalogBackup(st, path)
	})
}

// SetManualPath enters a backup path by hand
func (s *Session) SetManualPath(path string) (State, error) {
	return s.update(func(st State) (State, error) {
		return SetManualPath(st, path)
	})
}

// SetBackupSource switches between catalog and manual backup entry
func (s *Session) SetBackupSource(manual bool) (State, error) {
	return s.update(func(st State) (State, error) {
		return SetBackupSource(st, manual)
	})
}

// Confirm starts the restore. On failure the session stays in review with a
// classified Failure and the gateway error is returned. On success the first
// status check runs before polling takes over.
func (s *Session) Confirm(ctx context.Context) (State, error) {
	st, err := s.update(BeginRestore)
	if err != nil {
		return st, err
	}
	sel := st.Selection

	// the import must not be torn down with the request that started it
	startCtx := context.WithoutCancel(ctx)
	op, err := s.gateway.StartRestore(startCtx, sel.BackupPath(), sel.Project, sel.Database)
	if err != nil {
		st = s.apply(func(st State) State { return StartFailed(st, err) })
		metrics.RestoreStarted(string(st.Failure.Class))
		s.logger.Warn().
			Err(err).
			Str("failure_class", string(st.Failure.Class)).
			Str("project", sel.Project).
			Str("database", sel.Database).
			Msg("Restore failed to start")
		if s.recorder != nil {
			if rerr := s.recorder.RecordStartFailure(startCtx, s.id, sel, *st.Failure); rerr != nil {
				s.logger.Error().Err(rerr).Msg("Failed to record restore start failure")
			}
		}
		return st, err
	}

	assert.NotEmpty(op.Name, "operation handle")
	s.apply(func(st State) State { return RestoreStarted(st, op) })
	metrics.RestoreStarted("started")
	s.logger.Info().
		Str("operation", op.Name).
		Str("project", sel.Project).
		Str("database", sel.Database).
		Str("backup_path", sel.BackupPath()).
		Msg("Restore started")
	if s.recorder != nil {
		if rerr := s.recorder.RecordStart(startCtx, s.id, sel, op.Name); rerr != nil {
			s.logger.Error().Err(rerr).Msg("Failed to record restore start")
		}
	}

	if !s.check(startCtx, op.Name) {
		s.poller.Start(op.Name, s.tick)
	}
	return s.Snapshot(), nil
}

// Refresh checks the operation status now. An abandoned poll is re-armed.
func (s *Session) Refresh(ctx context.Context) (State, error) {
	st, err := s.update(func(st State) (State, error) {
		if st.Stage != StageRestoreProgress || st.Handle == "" {
			return st, refused("no restore in progress")
		}
		return Rearm(st), nil
	})
	if err != nil {
		return st, err
	}

	handle := st.Handle
	if !s.check(context.WithoutCancel(ctx), handle) && s.poller.Handle() != handle {
		s.poller.Start(handle, s.tick)
	}
	return s.Snapshot(), nil
}

// Reset returns a finished session to the start
func (s *Session) Reset() (State, error) {
	st, err := s.update(Reset)
	if err != nil {
		return st, err
	}
	s.poller.Stop()
	s.logger.Info().Msg("Session reset")
	return st, nil
}

func (s *Session) tick(ctx context.Context, handle string) bool {
	return s.check(context.WithoutCancel(ctx), handle)
}

// check fetches the status of handle and applies it. It reports whether
// polling for handle should stop.
func (s *Session) check(ctx context.Context, handle string) (stop bool) {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	before := s.Snapshot()
	if before.Stage != StageRestoreProgress || before.Handle != handle {
		return true
	}
	if before.Terminal() {
		return true
	}

	sel := before.Selection
	op, err := s.gateway.OperationStatus(ctx, handle, sel.Project, sel.Database)

	var after State
	if err != nil {
		metrics.PollFailed()
		after = s.apply(func(st State) State {
			return PollFailed(st, handle, err, s.opts.MaxPollFailures)
		})
		s.logger.Warn().
			Err(err).
			Str("operation", handle).
			Int("consecutive_failures", after.PollFailures).
			Msg("Failed to fetch operation status")
	} else {
		after = s.apply(func(st State) State {
			return ApplyOperationStatus(st, handle, op)
		})
	}

	if after.Handle != handle || after.Stage != StageRestoreProgress {
		return true
	}
	s.finished(ctx, before, after)
	return !after.Polling()
}

// finished reports the transition into a terminal or abandoned state once
func (s *Session) finished(ctx context.Context, before, after State) {
	var (
		outcome Outcome
		message string
	)
	switch {
	case !before.Terminal() && after.Terminal():
		if after.Operation.Succeeded() {
			outcome = OutcomeSucceeded
		} else {
			outcome = OutcomeFailed
			message = after.Operation.Error.String()
		}
	case !before.PollAbandoned && after.PollAbandoned:
		outcome = OutcomeAbandoned
		message = after.Failure.Message
	default:
		return
	}

	metrics.RestoreFinished(string(outcome))
	s.logger.Info().
		Str("operation", after.Handle).
		Str("outcome", string(outcome)).
		Str("message", message).
		Msg("Restore finished")

	if s.recorder != nil {
		if err := s.recorder.RecordFinish(ctx, after.Handle, outcome, message); err != nil {
			s.logger.Error().Err(err).Msg("Failed to record restore outcome")
		}
	}
}

// loadProject lists databases and backups of project concurrently
func (s *Session) loadProject(ctx context.Context, project string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		databases, err := s.gateway.ListDatabases(gctx, project)
		if err != nil {
			return err
		}
		s.apply(func(st State) State { return ApplyDatabases(st, project, databases) })
		return nil
	})
	g.Go(func() error {
		backups, err := s.gateway.ListBackups(gctx, project)
		if err != nil {
			return err
		}
		s.apply(func(st State) State { return ApplyBackups(st, project, backups) })
		return nil
	})
	return g.Wait()
}

// loadLocations resolves bucket and database locations for the review step
func (s *Session) loadLocations(ctx context.Context, st State) {
	sel := st.Selection
	var bucketLocation, databaseLocation string

	for _, b := range st.Backups {
		if !sel.UseManualPath && b.Path == sel.CatalogBackup {
			bucketLocation = b.Location
		}
	}

	var g errgroup.Group
	if bucket := bucketOf(sel.BackupPath()); bucketLocation == "" && bucket != "" {
		g.Go(func() error {
			loc, err := s.gateway.BucketLocation(ctx, bucket)
			if err != nil {
				s.logger.Debug().Err(err).Str("bucket", bucket).Msg("Bucket location unavailable")
				return nil
			}
			bucketLocation = loc
			return nil
		})
	}
	g.Go(func() error {
		loc, err := s.gateway.DatabaseLocation(ctx, sel.Project, sel.Database)
		if err != nil {
			s.logger.Debug().Err(err).Str("database", sel.Database).Msg("Database location unavailable")
			return nil
		}
		databaseLocation = loc
		return nil
	})
	_ = g.Wait()

	s.apply(func(st State) State {
		return ApplyLocations(st, sel, bucketLocation, databaseLocation)
	})
}

// bucketOf extracts the bucket from a gs:// path
func bucketOf(path string) string {
	rest, ok := strings.CutPrefix(path, "gs://")
	if !ok {
		return ""
	}
	bucket, _, _ := strings.Cut(rest, "/")
	return bucket
}
