package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/firerestore-dev/firerestore/internal/gcloud"
	"github.com/firerestore-dev/firerestore/internal/wizard"
)

// SelectProjectRequest represents the request body for choosing a project
type SelectProjectRequest struct {
	ProjectID string `json:"projectId" binding:"required"`
}

// SelectDatabaseRequest represents the request body for choosing a database
type SelectDatabaseRequest struct {
	DatabaseID string `json:"databaseId" binding:"required"`
}

// SelectBackupRequest represents the request body for choosing a catalog backup
type SelectBackupRequest struct {
	Path string `json:"path" binding:"required"`
}

// BackupSourceRequest switches between catalog and manual backup entry
type BackupSourceRequest struct {
	Source     string `json:"source" binding:"required" validate:"oneof=catalog manual"`
	ManualPath string `json:"manualPath"`
}

// wizardHandler resolves the caller's session before running fn
func (s *Server) wizardHandler(fn func(c *gin.Context, session *wizard.Session) (wizard.State, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := getWizardSession(c)
		if err != nil {
			respondWithError(c, s.logger, http.StatusInternalServerError, err, "Wizard session unavailable")
			return
		}
		state, err := fn(c, session)
		if c.Writer.Written() {
			return
		}
		s.respondWithState(c, session, state, err)
	}
}

// respondWithState renders the session snapshot, with refused transitions as 409
func (s *Server) respondWithState(c *gin.Context, session *wizard.Session, state wizard.State, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"state": state})
	case errors.Is(err, wizard.ErrRefused):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": state})
	case errors.Is(err, wizard.ErrInvalidInput), gcloud.KindOf(err) == gcloud.KindInvalidInput:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "state": state})
	default:
		s.logger.Error().Err(err).Str("session_id", session.ID()).Msg("Wizard action failed")
		body := gin.H{"error": gcloud.MessageOf(err), "state": state}
		if state.Failure != nil {
			body["failure_class"] = state.Failure.Class
			if len(state.Failure.Guidance) > 0 {
				body["guidance"] = state.Failure.Guidance
			}
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}

// @Summary Get wizard state
// @Description Returns the snapshot of the caller's wizard session
// @Tags wizard
// @Produce json
// @Success 200 {object} map[string]wizard.State
// @Router /api/wizard [get]
func (s *Server) getWizard(c *gin.Context) {
	s.wizardHandler(func(c *gin.Context, session *wizard.Session) (wizard.State, error) {
		return session.Snapshot(), nil
	})(c)
}

// @Summary Check authentication
// @Description Runs the gcloud auth check and loads projects when authenticated
// @Tags wizard
// @Produce json
// @Success 200 {object} map[string]wizard.State
// @Failure 409 {object} map[string]interface{}
// @Router /api/wizard/auth/check [post]
func (s *Server) checkWizardAuth(c *gin.Context) {
	s.wizardHandler(func(c *gin.Context, session *wizard.Session) (wizard.State, error) {
		return session.CheckAuth(c.Request.Context())
	})(c)
}

// @Summary Advance wizard
// @Description Moves to the next stage when the current one is complete
// @Tags wizard
// @Produce json
// @Success 200 {object} map[string]wizard.State
// @Failure 409 {object} map[string]interface{}
// @Router /api/wizard/advance [post]
func (s *Server) advanceWizard(c *gin.Context) {
	s.wizardHandler(func(c *gin.Context, session *wizard.Session) (wizard.State, error) {
		return session.Advance(c.Request.Context())
	})(c)
}

// @Summary Go back
// @Description Returns to the previous stage
// @Tags wizard
// @Produce json
// @Success 200 {object} map[string]wizard.State
// @Failure 409 {object} map[string]interface{}
// @Router /api/wizard/back [post]
func (s *Server) backWizard(c *gin.Context) {
	s.wizardHandler(func(c *gin.Context, session *wizard.Session) (wizard.State, error) {
		return session.Back()
	})(c)
}

// @Summary Select project
// @Description Sets the project and loads its databases and backups
// @Tags wizard
// @Accept json
// @Produce json
// @Param request body SelectProjectRequest true "Project"
// @Success 200 {object} map[string]wizard.State
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/wizard/project [put]
func (s *Server) selectWizardProject(c *gin.Context) {
	s.wizardHandler(func(c *gin.Context, session *wizard.Session) (wizard.State, error) {
		var req SelectProjectRequest
		if !s.bindBody(c, &req) {
			return wizard.State{}, nil
		}
		return session.SelectProject(c.Request.Context(), req.ProjectID)
	})(c)
}

// @Summary Select database
// @Description Sets the target database
// @Tags wizard
// @Accept json
// @Produce json
// @Param request body SelectDatabaseRequest true "Database"
// @Success 200 {object} map[string]wizard.State
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/wizard/database [put]
func (s *Server) selectWizardDatabase(c *gin.Context) {
	s.wizardHandler(func(c *gin.Context, session *wizard.Session) (wizard.State, error) {
		var req SelectDatabaseRequest
		if !s.bindBody(c, &req) {
			return wizard.State{}, nil
		}
		return session.SelectDatabase(req.DatabaseID)
	})(c)
}

// @Summary Select backup
// @Description Picks a backup from the listed catalog
// @Tags wizard
// @Accept json
// @Produce json
// @Param request body SelectBackupRequest true "Backup"
// @Success 200 {object} map[string]wizard.State
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/wizard/backup [put]
func (s *Server) selectWizardBackup(c *gin.Context) {
	s.wizardHandler(func(c *gin.Context, session *wizard.Session) (wizard.State, error) {
		var req SelectBackupRequest
		if !s.bindBody(c, &req) {
			return wizard.State{}, nil
		}
		return session.SelectBackup(req.Path)
	})(c)
}

// @Summary Set backup source
// @Description Switches between catalog selection and a manually entered path
// @Tags wizard
// @Accept json
// @Produce json
// @Param request body BackupSourceRequest true "Backup source"
// @Success 200 {object} map[string]wizard.State
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/wizard/backup-source [put]
func (s *Server) setWizardBackupSource(c *gin.Context) {
	s.wizardHandler(func(c *gin.Context, session *wizard.Session) (wizard.State, error) {
		var req BackupSourceRequest
		if !s.bindBody(c, &req) {
			return wizard.State{}, nil
		}
		if req.Source == "catalog" {
			return session.SetBackupSource(false)
		}
		if req.ManualPath != "" {
			return session.SetManualPath(req.ManualPath)
		}
		return session.SetBackupSource(true)
	})(c)
}

// @Summary Confirm restore
// @Description Starts the restore of the selected backup and begins polling
// @Tags wizard
// @Produce json
// @Success 200 {object} map[string]wizard.State
// @Failure 409 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/wizard/confirm [post]
func (s *Server) confirmWizard(c *gin.Context) {
	s.wizardHandler(func(c *gin.Context, session *wizard.Session) (wizard.State, error) {
		return session.Confirm(c.Request.Context())
	})(c)
}

// @Summary Refresh restore status
// @Description Checks the operation status now and re-arms abandoned polling
// @Tags wizard
// @Produce json
// @Success 200 {object} map[string]wizard.State
// @Failure 409 {object} map[string]interface{}
// @Router /api/wizard/refresh [post]
func (s *Server) refreshWizard(c *gin.Context) {
	s.wizardHandler(func(c *gin.Context, session *wizard.Session) (wizard.State, error) {
		return session.Refresh(c.Request.Context())
	})(c)
}

// @Summary Reset wizard
// @Description Returns a finished session to the first stage with an empty selection
// @Tags wizard
// @Produce json
// @Success 200 {object} map[string]wizard.State
// @Failure 409 {object} map[string]interface{}
// @Router /api/wizard/reset [post]
func (s *Server) resetWizard(c *gin.Context) {
	s.wizardHandler(func(c *gin.Context, session *wizard.Session) (wizard.State, error) {
		return session.Reset()
	})(c)
}

// bindBody binds and validates a JSON body, answering 400 on failure
func (s *Server) bindBody(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return false
	}
	if err := s.validator.Struct(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return false
	}
	return true
}
