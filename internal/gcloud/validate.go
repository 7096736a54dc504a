package gcloud

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	projectIDPattern   = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)
	bucketPattern      = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9._-]{0,220}[a-z0-9])?$`)
	backupPathPattern  = regexp.MustCompile(`^gs://[a-z0-9](?:[a-z0-9._-]{0,220}[a-z0-9])?(?:/[A-Za-z0-9._~:@+=,()/-]*)?$`)
	operationIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._~()/-]*$`)
)

// maxOperationNameLength bounds operation handles. RE2 caps repeat counts at 1000.
const maxOperationNameLength = 1024

// Validation tags registered by RegisterValidations
const (
	TagProjectID     = "gcpproject"
	TagDatabaseID    = "firestoredb"
	TagBackupPath    = "gcsuri"
	TagOperationName = "operationname"
)

// ValidProjectID reports whether id is a lowercase alphanumeric/hyphen project id
func ValidProjectID(id string) bool {
	return projectIDPattern.MatchString(id)
}

// ValidDatabaseID accepts "(default)" or a lowercase alphanumeric/hyphen id
func ValidDatabaseID(id string) bool {
	return id == DefaultDatabaseID || projectIDPattern.MatchString(id)
}

// ValidBucket reports whether name is a legal bucket name
func ValidBucket(name string) bool {
	return bucketPattern.MatchString(name)
}

// ValidBackupPath accepts gs://bucket[/path] without whitespace or shell metacharacters
func ValidBackupPath(path string) bool {
	return backupPathPattern.MatchString(path)
}

// ValidOperationName accepts path-like operation handles
func ValidOperationName(name string) bool {
	return len(name) <= maxOperationNameLength && operationIDPattern.MatchString(name)
}

// RegisterValidations adds the identifier tags to a validator instance
func RegisterValidations(v *validator.Validate) error {
	tags := map[string]func(string) bool{
		TagProjectID:     ValidProjectID,
		TagDatabaseID:    ValidDatabaseID,
		TagBackupPath:    ValidBackupPath,
		TagOperationName: ValidOperationName,
	}
	for tag, fn := range tags {
		check := fn
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return check(fl.Field().String())
		}); err != nil {
			return err
		}
	}
	return nil
}

// NewValidator returns a validator with the identifier tags registered
func NewValidator() *validator.Validate {
	v := validator.New()
	if err := RegisterValidations(v); err != nil {
		panic(err)
	}
	return v
}
