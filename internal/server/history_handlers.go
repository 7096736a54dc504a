package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/firerestore-dev/firerestore/internal/history"
)

// HistoryQuery filters the restore history
type HistoryQuery struct {
	ProjectID string `form:"projectId" validate:"omitempty,gcpproject"`
	Limit     int    `form:"limit" validate:"omitempty,min=1,max=50"`
}

// @Summary List restore history
// @Description Lists recorded restore attempts, newest first
// @Tags history
// @Produce json
// @Param projectId query string false "Filter by project"
// @Param limit query int false "Maximum number of records"
// @Success 200 {object} map[string][]models.RestoreRecord
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/history [get]
func (s *Server) listHistory(c *gin.Context) {
	var query HistoryQuery
	if !s.bindQuery(c, &query) {
		return
	}

	records, err := s.history.List(c.Request.Context(), history.ListOptions{
		Project: query.ProjectID,
		Limit:   query.Limit,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list restore history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list restore history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": records})
}

// @Summary Get restore record
// @Description Get one recorded restore attempt by ID
// @Tags history
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} models.RestoreRecord
// @Failure 404 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/history/{id} [get]
func (s *Server) getHistoryRecord(c *gin.Context) {
	recordID := c.Param("id")

	record, err := s.history.Get(c.Request.Context(), recordID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Restore record not found"})
			return
		}
		s.logger.Error().Err(err).Str("record_id", recordID).Msg("Failed to get restore record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, record)
}
