package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/firerestore-dev/firerestore/internal/assert"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	assert.Length(b.ID, 26)
	return nil
}

// Restore record statuses
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
	// StatusRejected marks a restore whose start call failed
	StatusRejected = "rejected"
)

// RestoreRecord is the audit entry of one restore attempt.
// Records are written for history only; sessions are never rebuilt from them.
type RestoreRecord struct {
	BaseModel
	SessionID     string     `json:"session_id" gorm:"index"`
	Project       string     `json:"project" gorm:"not null;index"`
	Database      string     `json:"database" gorm:"not null"`
	BackupPath    string     `json:"backup_path" gorm:"type:text;not null"`
	OperationName string     `json:"operation_name,omitempty" gorm:"index"`
	Status        string     `json:"status" gorm:"not null;index"`
	FailureClass  string     `json:"failure_class,omitempty"`
	Message       string     `json:"message,omitempty" gorm:"type:text"`
	FinishedAt    *time.Time `json:"finished_at"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	models := []interface{}{
		&RestoreRecord{},
	}

	return db.AutoMigrate(models...)
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}
