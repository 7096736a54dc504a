package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ConfigResponse exposes the runtime settings the UI needs. Secrets are never included.
type ConfigResponse struct {
	StorageSuffix    string `json:"storage_suffix"`
	PollInterval     string `json:"poll_interval"`
	MaxPollFailures  int    `json:"max_poll_failures"`
	SessionTTL       string `json:"session_ttl"`
	HistoryRetention string `json:"history_retention"`
	RestoreRateLimit string `json:"restore_rate_limit"`
}

// @Summary Get configuration
// @Description Get the runtime configuration relevant to the UI
// @Tags config
// @Produce json
// @Success 200 {object} ConfigResponse
// @Router /api/config [get]
func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, ConfigResponse{
		StorageSuffix:    s.config.Gcloud.StorageSuffix,
		PollInterval:     s.config.Poll.Interval.String(),
		MaxPollFailures:  s.config.Poll.MaxFailures,
		SessionTTL:       s.config.Session.TTL.String(),
		HistoryRetention: s.config.History.Retention.String(),
		RestoreRateLimit: s.config.Server.RestoreRateLimit,
	})
}
