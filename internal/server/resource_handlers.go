package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/firerestore-dev/firerestore/internal/gcloud"
)

// ProjectQuery selects a project
type ProjectQuery struct {
	ProjectID string `form:"projectId" validate:"required,gcpproject"`
}

// OperationsQuery selects a database and how many operations to list
type OperationsQuery struct {
	ProjectID  string `form:"projectId" validate:"required,gcpproject"`
	DatabaseID string `form:"databaseId" validate:"omitempty,firestoredb"`
	Limit      int    `form:"limit" validate:"omitempty,min=1,max=100"`
}

// bindQuery binds and validates query parameters, answering 400 on failure
func (s *Server) bindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return false
	}
	if err := s.validator.Struct(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return false
	}
	return true
}

// @Summary List projects
// @Description Lists the project ids visible to the active gcloud account
// @Tags gateway
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/projects [get]
func (s *Server) listProjects(c *gin.Context) {
	projects := s.gateway.ListProjects(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// @Summary List Firestore databases
// @Description Lists database ids of a project, falling back to (default)
// @Tags gateway
// @Produce json
// @Param projectId query string true "Project ID"
// @Success 200 {object} map[string][]string
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/databases [get]
func (s *Server) listDatabases(c *gin.Context) {
	var query ProjectQuery
	if !s.bindQuery(c, &query) {
		return
	}

	databases, err := s.gateway.ListDatabases(c.Request.Context(), query.ProjectID)
	if err != nil {
		s.respondWithGatewayError(c, err, "Failed to list databases")
		return
	}
	c.JSON(http.StatusOK, gin.H{"databases": databases})
}

// @Summary List backups
// @Description Lists export folders in the project's default storage bucket
// @Tags gateway
// @Produce json
// @Param projectId query string true "Project ID"
// @Success 200 {object} map[string][]gcloud.BackupDescriptor
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/backups [get]
func (s *Server) listBackups(c *gin.Context) {
	var query ProjectQuery
	if !s.bindQuery(c, &query) {
		return
	}

	backups, err := s.gateway.ListBackups(c.Request.Context(), query.ProjectID)
	if err != nil {
		s.respondWithGatewayError(c, err, "Failed to list backups")
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": backups})
}

// @Summary List recent operations
// @Description Lists recent long-running operations on a database
// @Tags gateway
// @Produce json
// @Param projectId query string true "Project ID"
// @Param databaseId query string false "Database ID, defaults to (default)"
// @Param limit query int false "Maximum number of operations"
// @Success 200 {object} map[string][]gcloud.RestoreOperation
// @Failure 400 {object} map[string]interface{}
// @Router /api/operations [get]
func (s *Server) listOperations(c *gin.Context) {
	var query OperationsQuery
	if !s.bindQuery(c, &query) {
		return
	}
	if query.DatabaseID == "" {
		query.DatabaseID = gcloud.DefaultDatabaseID
	}

	operations, err := s.gateway.ListOperations(c.Request.Context(), query.ProjectID, query.DatabaseID, query.Limit)
	if err != nil {
		s.respondWithGatewayError(c, err, "Failed to list operations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": operations})
}

// respondWithGatewayError maps rejected input to 400 and everything else to 500
func (s *Server) respondWithGatewayError(c *gin.Context, err error, message string) {
	if gcloud.KindOf(err) == gcloud.KindInvalidInput {
		c.JSON(http.StatusBadRequest, gin.H{"error": gcloud.MessageOf(err)})
		return
	}
	s.logger.Error().Err(err).Msg(message)
	c.JSON(http.StatusInternalServerError, gin.H{"error": gcloud.MessageOf(err)})
}
