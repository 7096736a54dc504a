package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/firerestore-dev/firerestore/internal/wizard"
)

const wizardContextKey = "wizard"

var ErrNoWizardSession = errors.New("no wizard session in context")

func respondWithError(c *gin.Context, log zerolog.Logger, statusCode int, err error, message string) {
	log.Warn().Err(err).Msg(message)
	c.JSON(statusCode, gin.H{"error": message})
	c.Abort()
}

// NewRateLimiter limits requests per client IP to requests per period
func NewRateLimiter(requests int64, period time.Duration) gin.HandlerFunc {
	rate := limiter.Rate{
		Period: period,
		Limit:  requests,
	}

	store := memory.NewStore()
	instance := limiter.New(store, rate)

	return mgin.NewMiddleware(instance)
}

// wizardSessionMiddleware resolves the caller's wizard session from the
// cookie, creating a new session and cookie when none is live
func (s *Server) wizardSessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, cookie := s.cookies.WizardID(c.Request)
		if id != "" {
			if session, ok := s.wizards.Get(id); ok {
				c.Set(wizardContextKey, session)
				c.Next()
				return
			}
			s.logger.Debug().Str("session_id", id).Msg("Wizard session expired, creating a new one")
		}

		session := s.wizards.Create()
		if err := s.cookies.SaveWizardID(c.Request, c.Writer, cookie, session.ID()); err != nil {
			s.wizards.Remove(session.ID())
			respondWithError(c, s.logger, http.StatusInternalServerError, err, "Failed to create session")
			return
		}

		c.Set(wizardContextKey, session)
		c.Next()
	}
}

func getWizardSession(c *gin.Context) (*wizard.Session, error) {
	value, exists := c.Get(wizardContextKey)
	if !exists {
		return nil, ErrNoWizardSession
	}
	session, ok := value.(*wizard.Session)
	if !ok {
		return nil, ErrNoWizardSession
	}
	return session, nil
}
