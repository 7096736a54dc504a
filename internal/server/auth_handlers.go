package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary Get gcloud authentication status
// @Description Reports whether the gcloud CLI is installed, the active account and the configured project
// @Tags gateway
// @Produce json
// @Success 200 {object} gcloud.AuthStatus
// @Router /api/auth/status [get]
func (s *Server) getAuthStatus(c *gin.Context) {
	status := s.gateway.AuthStatus(c.Request.Context())
	c.JSON(http.StatusOK, status)
}
