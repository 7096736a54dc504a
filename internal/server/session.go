package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
)

const (
	// SessionName is the name of the wizard session cookie
	SessionName = "firerestore_session"

	// WizardIDKey is the session key holding the wizard session id
	WizardIDKey = "wizard_id"
)

// SessionConfig holds cookie store configuration
type SessionConfig struct {
	Secret []byte // empty = random key, sessions do not survive a restart
	MaxAge time.Duration
	Secure bool
}

// SessionStore wraps a gorilla/sessions cookie store
type SessionStore struct {
	store  *sessions.CookieStore
	logger zerolog.Logger
}

// NewSessionStore creates the cookie store used to bind browsers to wizard sessions
func NewSessionStore(cfg SessionConfig, logger zerolog.Logger) (*SessionStore, error) {
	logger = logger.With().Str("component", "session").Logger()

	secret := cfg.Secret
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
		if secret == nil {
			return nil, fmt.Errorf("failed to generate session secret")
		}
		logger.Warn().Msg("SESSION_SECRET not set, using a random key")
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}

	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	logger.Info().
		Bool("secure", cfg.Secure).
		Dur("max_age", cfg.MaxAge).
		Msg("Session store initialized")

	return &SessionStore{store: store, logger: logger}, nil
}

// WizardID returns the wizard id stored in the request cookie, if any.
// Cookies that fail to decode (rotated secret, tampering) count as absent.
func (s *SessionStore) WizardID(r *http.Request) (string, *sessions.Session) {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Discarding undecodable session cookie")
	}
	if session == nil {
		session = sessions.NewSession(s.store, SessionName)
		session.Options = s.store.Options
		session.IsNew = true
	}
	id, _ := session.Values[WizardIDKey].(string)
	return id, session
}

// SaveWizardID writes id into the session cookie
func (s *SessionStore) SaveWizardID(r *http.Request, w http.ResponseWriter, session *sessions.Session, id string) error {
	session.Values[WizardIDKey] = id
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
