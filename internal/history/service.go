// Package history keeps the audit log of restore attempts.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/firerestore-dev/firerestore/internal/models"
	"github.com/firerestore-dev/firerestore/internal/wizard"
)

// DefaultLimit caps List when no limit is given
const DefaultLimit = 50

var _ wizard.Recorder = (*Service)(nil)

// Service records restore attempts and serves them back
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a new history service
func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "history_service").Logger(),
		now:    time.Now,
	}
}

// RecordStart stores a running restore
func (s *Service) RecordStart(ctx context.Context, sessionID string, sel wizard.Selection, handle string) error {
	record := models.RestoreRecord{
		SessionID:     sessionID,
		Project:       sel.Project,
		Database:      sel.Database,
		BackupPath:    sel.BackupPath(),
		OperationName: handle,
		Status:        models.StatusRunning,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to record restore start: %w", err)
	}
	return nil
}

// RecordStartFailure stores a restore whose start call failed
func (s *Service) RecordStartFailure(ctx context.Context, sessionID string, sel wizard.Selection, failure wizard.Failure) error {
	now := s.now()
	record := models.RestoreRecord{
		SessionID:    sessionID,
		Project:      sel.Project,
		Database:     sel.Database,
		BackupPath:   sel.BackupPath(),
		Status:       models.StatusRejected,
		FailureClass: string(failure.Class),
		Message:      failure.Message,
		FinishedAt:   &now,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to record restore start failure: %w", err)
	}
	return nil
}

// RecordFinish stores the outcome of the restore started under handle.
// An abandoned record may later be finished by a manual refresh.
func (s *Service) RecordFinish(ctx context.Context, handle string, outcome wizard.Outcome, message string) error {
	status, err := statusOf(outcome)
	if err != nil {
		return err
	}

	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.RestoreRecord{}).
		Where("operation_name = ?", handle).
		Where("status IN ?", []string{models.StatusRunning, models.StatusAbandoned}).
		Updates(map[string]interface{}{
			"status":      status,
			"message":     message,
			"finished_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record restore outcome: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		s.logger.Debug().Str("operation", handle).Msg("No running restore record to finish")
	}
	return nil
}

func statusOf(outcome wizard.Outcome) (string, error) {
	switch outcome {
	case wizard.OutcomeSucceeded:
		return models.StatusSucceeded, nil
	case wizard.OutcomeFailed:
		return models.StatusFailed, nil
	case wizard.OutcomeAbandoned:
		return models.StatusAbandoned, nil
	default:
		return "", fmt.Errorf("unknown restore outcome %q", outcome)
	}
}

// ListOptions filters List
type ListOptions struct {
	Project string
	Limit   int
}

// List returns the newest records first
func (s *Service) List(ctx context.Context, opts ListOptions) ([]models.RestoreRecord, error) {
	limit := opts.Limit
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}

	query := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if opts.Project != "" {
		query = query.Where("project = ?", opts.Project)
	}

	records := []models.RestoreRecord{}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list restore history: %w", err)
	}
	return records, nil
}

// Get returns one record by id
func (s *Service) Get(ctx context.Context, id string) (*models.RestoreRecord, error) {
	var record models.RestoreRecord
	if err := models.FindByID(s.db.WithContext(ctx), id, &record); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load restore record: %w", err)
	}
	return &record, nil
}

// ErrNotFound is returned by Get for unknown ids
var ErrNotFound = errors.New("restore record not found")

// Prune deletes finished records older than retention. Running records are kept.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Where("status <> ?", models.StatusRunning).
		Delete(&models.RestoreRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune restore history: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Info().
			Int64("deleted", result.RowsAffected).
			Dur("retention", retention).
			Msg("Pruned restore history")
	}
	return result.RowsAffected, nil
}
