package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/firerestore-dev/firerestore/internal/metrics"
	"github.com/firerestore-dev/firerestore/internal/models"
)

// SystemInfoResponse describes the running service
type SystemInfoResponse struct {
	Version         string `json:"version"`
	GoVersion       string `json:"go_version"`
	GcloudInstalled bool   `json:"gcloud_installed"`
	ActiveSessions  int    `json:"active_sessions"`
	DatabaseOK      bool   `json:"database_ok"`
}

// healthCheck handles health check requests
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "firerestore-server",
	})
}

// metrics serves the Prometheus registry
func (s *Server) metrics(c *gin.Context) {
	metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// @Summary Get system information
// @Description Returns the server version, gcloud availability and session count
// @Tags system
// @Produce json
// @Success 200 {object} SystemInfoResponse
// @Router /api/system/info [get]
func (s *Server) getSystemInfo(c *gin.Context) {
	response := SystemInfoResponse{
		Version:         s.version,
		GoVersion:       runtime.Version(),
		GcloudInstalled: s.gateway.IsInstalled(c.Request.Context()),
		ActiveSessions:  s.wizards.Len(),
		DatabaseOK:      models.Ping(c.Request.Context(), s.db) == nil,
	}
	c.JSON(http.StatusOK, response)
}
