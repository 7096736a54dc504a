// Package maintenance runs the periodic housekeeping jobs of the server.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SessionEvicter drops wizard sessions idle for longer than ttl
type SessionEvicter interface {
	EvictIdle(ttl time.Duration) int
}

// HistoryPruner deletes audit records older than retention
type HistoryPruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// Options configures job schedules (cron expression or "@every <duration>")
type Options struct {
	SessionTTL       time.Duration
	HistoryRetention time.Duration
	EvictSchedule    string
	PruneSchedule    string
}

// DefaultOptions evicts every five minutes and prunes hourly
func DefaultOptions() Options {
	return Options{
		SessionTTL:       12 * time.Hour,
		HistoryRetention: 30 * 24 * time.Hour,
		EvictSchedule:    "@every 5m",
		PruneSchedule:    "@hourly",
	}
}

// Scheduler owns the cron runner
type Scheduler struct {
	cron     *cron.Cron
	sessions SessionEvicter
	history  HistoryPruner
	opts     Options
	logger   zerolog.Logger
}

// New registers the jobs. history may be nil when no history store is configured.
func New(sessions SessionEvicter, history HistoryPruner, opts Options, logger zerolog.Logger) (*Scheduler, error) {
	logger = logger.With().Str("component", "maintenance").Logger()
	s := &Scheduler{
		cron: cron.New(cron.WithLogger(cronLogger{logger: logger}), cron.WithChain(
			cron.Recover(cronLogger{logger: logger}),
			cron.SkipIfStillRunning(cronLogger{logger: logger}),
		)),
		sessions: sessions,
		history:  history,
		opts:     opts,
		logger:   logger,
	}

	if _, err := s.cron.AddFunc(opts.EvictSchedule, s.EvictSessions); err != nil {
		return nil, fmt.Errorf("invalid session eviction schedule %q: %w", opts.EvictSchedule, err)
	}
	if history != nil && opts.HistoryRetention > 0 {
		if _, err := s.cron.AddFunc(opts.PruneSchedule, s.PruneHistory); err != nil {
			return nil, fmt.Errorf("invalid history prune schedule %q: %w", opts.PruneSchedule, err)
		}
	}
	return s, nil
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().
		Int("jobs", len(s.cron.Entries())).
		Dur("session_ttl", s.opts.SessionTTL).
		Dur("history_retention", s.opts.HistoryRetention).
		Msg("Maintenance scheduler started")
}

// Stop halts scheduling and waits for running jobs up to ctx
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("Maintenance jobs still running at shutdown")
	}
}

// EvictSessions drops idle wizard sessions
func (s *Scheduler) EvictSessions() {
	evicted := s.sessions.EvictIdle(s.opts.SessionTTL)
	s.logger.Debug().Int("evicted", evicted).Msg("Session eviction run")
}

// PruneHistory removes expired audit records
func (s *Scheduler) PruneHistory() {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := s.history.Prune(ctx, s.opts.HistoryRetention)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to prune restore history")
		return
	}
	s.logger.Debug().Int64("deleted", deleted).Msg("History prune run")
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
