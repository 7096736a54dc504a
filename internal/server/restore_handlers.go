package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/firerestore-dev/firerestore/internal/gcloud"
	"github.com/firerestore-dev/firerestore/internal/metrics"
	"github.com/firerestore-dev/firerestore/internal/wizard"
)

// apiSessionID marks history records created through the stateless routes
const apiSessionID = "api"

// StartRestoreRequest represents the request body for starting a restore
type StartRestoreRequest struct {
	BackupPath string `json:"backupPath" binding:"required" validate:"required,gcsuri"`
	ProjectID  string `json:"projectId" binding:"required" validate:"required,gcpproject"`
	DatabaseID string `json:"databaseId" binding:"required" validate:"required,firestoredb"`
}

// RestoreStatusQuery selects the operation to describe
type RestoreStatusQuery struct {
	OperationName string `form:"operationName" validate:"required,operationname"`
	ProjectID     string `form:"projectId" validate:"required,gcpproject"`
	DatabaseID    string `form:"databaseId" validate:"required,firestoredb"`
}

// @Summary Start a restore
// @Description Starts an asynchronous Firestore import from a backup folder
// @Tags gateway
// @Accept json
// @Produce json
// @Param request body StartRestoreRequest true "Restore request"
// @Success 200 {object} map[string]gcloud.RestoreOperation
// @Failure 400 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/restore/start [post]
func (s *Server) startRestore(c *gin.Context) {
	var req StartRestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := s.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return
	}

	sel := wizard.Selection{
		Project:       req.ProjectID,
		Database:      req.DatabaseID,
		ManualPath:    req.BackupPath,
		UseManualPath: true,
	}

	// The import outlives the request once the CLI accepted it
	ctx := context.WithoutCancel(c.Request.Context())
	op, err := s.gateway.StartRestore(ctx, req.BackupPath, req.ProjectID, req.DatabaseID)
	if err != nil {
		failure := wizard.ClassifyStartError(err)
		metrics.RestoreStarted(string(failure.Class))
		if rerr := s.history.RecordStartFailure(ctx, apiSessionID, sel, *failure); rerr != nil {
			s.logger.Error().Err(rerr).Msg("Failed to record restore start failure")
		}

		s.logger.Warn().
			Err(err).
			Str("failure_class", string(failure.Class)).
			Str("project", req.ProjectID).
			Msg("Restore failed to start")

		status := http.StatusInternalServerError
		if failure.Class == wizard.FailureInvalidInput {
			status = http.StatusBadRequest
		}
		body := gin.H{"error": failure.Message, "failure_class": failure.Class}
		if len(failure.Guidance) > 0 {
			body["guidance"] = failure.Guidance
		}
		c.JSON(status, body)
		return
	}

	metrics.RestoreStarted("started")
	if rerr := s.history.RecordStart(ctx, apiSessionID, sel, op.Name); rerr != nil {
		s.logger.Error().Err(rerr).Msg("Failed to record restore start")
	}

	c.JSON(http.StatusOK, gin.H{"operation": op})
}

// @Summary Get restore status
// @Description Describes a restore operation
// @Tags gateway
// @Produce json
// @Param operationName query string true "Operation name"
// @Param projectId query string true "Project ID"
// @Param databaseId query string true "Database ID"
// @Success 200 {object} map[string]gcloud.RestoreOperation
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/restore/status [get]
func (s *Server) getRestoreStatus(c *gin.Context) {
	var query RestoreStatusQuery
	if !s.bindQuery(c, &query) {
		return
	}

	op, err := s.gateway.OperationStatus(c.Request.Context(), query.OperationName, query.ProjectID, query.DatabaseID)
	if err != nil {
		s.respondWithGatewayError(c, err, "Failed to fetch restore status")
		return
	}

	if op.Terminal() {
		s.recordOutcome(c.Request.Context(), op)
	}

	c.JSON(http.StatusOK, gin.H{"status": op})
}

// recordOutcome finishes the history record of a restore started through the stateless routes
func (s *Server) recordOutcome(ctx context.Context, op gcloud.RestoreOperation) {
	outcome, message := wizard.OutcomeSucceeded, ""
	if !op.Succeeded() {
		outcome, message = wizard.OutcomeFailed, op.Error.String()
	}
	if err := s.history.RecordFinish(ctx, op.Name, outcome, message); err != nil {
		s.logger.Error().Err(err).Str("operation", op.Name).Msg("Failed to record restore outcome")
	}
}
