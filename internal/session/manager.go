package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"finfix/internal/cache"
	"finfix/internal/core"
	"finfix/internal/finance"
	"finfix/internal/log"
)

var ErrNoSession = errors.New("session not found")

// IdentityRegistrar is implemented by local backends that learn users from
// their first login instead of owning an account store.
type IdentityRegistrar interface {
	RegisterIdentity(ctx context.Context, id core.Identity) error
}

type Config struct {
	DefaultMode   Mode
	LogoutFlagTTL time.Duration
	IdleTTL       time.Duration
	MaxSessions   int
}

func DefaultConfig() Config {
	return Config{
		DefaultMode:   ModeAdmin,
		LogoutFlagTTL: 5 * time.Second,
		IdleTTL:       24 * time.Hour,
		MaxSessions:   10000,
	}
}

// Manager owns every live session. Sessions are kept in an LRU and expire
// after IdleTTL without requests.
type Manager struct {
	cfg        Config
	verifier   *TokenVerifier
	identities finance.IdentityReader
	flags      LogoutFlags
	logger     *log.Logger

	mu       sync.Mutex
	sessions *cache.LRUCache[Session]
}

func NewManager(cfg Config, verifier *TokenVerifier, identities finance.IdentityReader, flags LogoutFlags, logger *log.Logger) *Manager {
	def := DefaultConfig()
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = def.DefaultMode
	}
	if cfg.LogoutFlagTTL <= 0 {
		cfg.LogoutFlagTTL = def.LogoutFlagTTL
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if flags == nil {
		flags = NewMemoryLogoutFlags()
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Manager{
		cfg:        cfg,
		verifier:   verifier,
		identities: identities,
		flags:      flags,
		logger:     logger.WithComponent(log.ComponentSession),
		sessions:   cache.NewLRUCache[Session](cfg.MaxSessions, cfg.IdleTTL),
	}
}

// Cache exposes the session store so it can be registered for cleanup.
func (m *Manager) Cache() *cache.LRUCache[Session] { return m.sessions }

// New starts an anonymous session.
func (m *Manager) New() Session {
	s := Session{ID: uuid.NewString(), Mode: m.cfg.DefaultMode}
	m.sessions.Set(s.ID, s)
	return s
}

// Get returns the session and extends its idle timeout.
func (m *Manager) Get(id string) (Session, bool) {
	if id == "" {
		return Session{}, false
	}
	s, ok := m.sessions.Get(id)
	if !ok {
		return Session{}, false
	}
	m.sessions.Touch(id)
	return s.clone(), true
}

func (m *Manager) update(id string, fn func(*Session)) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions.Get(id)
	if !ok {
		return Session{}, ErrNoSession
	}
	fn(&s)
	m.sessions.Set(id, s)
	return s.clone(), nil
}

// Begin completes a login: the backend token is verified and the identity
// behind it is loaded into the session.
func (m *Manager) Begin(ctx context.Context, id, token string) (Session, error) {
	claims, err := m.verifier.Verify(token)
	if err != nil {
		m.logger.WarnContext(ctx, "Rejected login token", log.FieldSessionID, id, log.FieldError, err)
		return Session{}, err
	}
	if _, err := m.update(id, func(s *Session) { s.Loading = true }); err != nil {
		return Session{}, err
	}

	userID := claims.Subject
	identity, err := m.loadIdentity(finance.WithToken(ctx, token), claims)
	if err != nil {
		_, _ = m.update(id, func(s *Session) { s.Loading = false })
		m.logger.ErrorContext(ctx, "Failed to load identity", log.FieldSessionID, id, log.FieldUserID, userID, log.FieldError, err)
		return Session{}, fmt.Errorf("load identity: %w", err)
	}

	if err := m.flags.Clear(ctx, id); err != nil {
		m.logger.WarnContext(ctx, "Failed to clear logout flag", log.FieldSessionID, id, log.FieldError, err)
	}
	s, err := m.update(id, func(s *Session) {
		s.Identity = &identity
		s.Token = token
		s.Loading = false
	})
	if err != nil {
		return Session{}, err
	}
	m.logger.InfoContext(ctx, "Session started", log.FieldSessionID, id, log.FieldUserID, userID)
	return s, nil
}

// Refresh re-reads the identity from the backend. It does nothing while a
// logout flag is set, and drops the identity when the backend no longer
// accepts the token.
func (m *Manager) Refresh(ctx context.Context, id string) (Session, error) {
	s, ok := m.Get(id)
	if !ok {
		return Session{}, ErrNoSession
	}
	if m.suppressed(ctx, id) {
		m.logger.DebugContext(ctx, "Refresh suppressed after logout", log.FieldSessionID, id)
		return s, nil
	}
	if s.Token == "" || s.Identity == nil {
		return s, nil
	}

	identity, err := m.identities.Identity(finance.WithToken(ctx, s.Token), s.Identity.ID)
	if m.suppressed(ctx, id) {
		// logged out while the fetch was in flight
		return m.mustGet(id), nil
	}
	token := s.Token
	switch {
	case errors.Is(err, finance.ErrUnauthorized):
		m.logger.InfoContext(ctx, "Backend rejected session token", log.FieldSessionID, id)
		return m.update(id, func(s *Session) {
			if s.Token == token {
				s.Identity, s.Token = nil, ""
			}
		})
	case err != nil:
		m.logger.WarnContext(ctx, "Session refresh failed", log.FieldSessionID, id, log.FieldError, err)
		return s, fmt.Errorf("refresh identity: %w", err)
	}
	return m.update(id, func(s *Session) {
		if s.Token == token {
			s.Identity = &identity
		}
	})
}

// Logout clears the identity right away and suppresses refreshes for
// LogoutFlagTTL.
func (m *Manager) Logout(ctx context.Context, id string) (Session, error) {
	if err := m.flags.Set(ctx, id, m.cfg.LogoutFlagTTL); err != nil {
		m.logger.WarnContext(ctx, "Failed to set logout flag", log.FieldSessionID, id, log.FieldError, err)
	}
	s, err := m.update(id, func(s *Session) {
		s.Identity, s.Token, s.Loading = nil, "", false
	})
	if err != nil {
		return Session{}, err
	}
	m.logger.InfoContext(ctx, "Session logged out", log.FieldSessionID, id)
	return s, nil
}

func (m *Manager) SetMode(id string, mode Mode) (Session, error) {
	return m.update(id, func(s *Session) { s.Mode = mode })
}

// MarkOnboarded flips the onboarded flag without a backend round trip.
func (m *Manager) MarkOnboarded(id string) (Session, error) {
	return m.update(id, func(s *Session) {
		if s.Identity != nil {
			s.Identity.IsOnboarded = true
		}
	})
}

func (m *Manager) loadIdentity(ctx context.Context, claims Claims) (core.Identity, error) {
	identity, err := m.identities.Identity(ctx, claims.Subject)
	if err == nil || !errors.Is(err, finance.ErrNotFound) {
		return identity, err
	}
	reg, ok := m.identities.(IdentityRegistrar)
	if !ok {
		return identity, err
	}
	identity = core.Identity{ID: claims.Subject, Email: claims.Email, Name: claims.Name}
	if err := reg.RegisterIdentity(ctx, identity); err != nil {
		return core.Identity{}, fmt.Errorf("register identity: %w", err)
	}
	m.logger.InfoContext(ctx, "Registered identity on first login", log.FieldUserID, claims.Subject)
	return m.identities.Identity(ctx, claims.Subject)
}

func (m *Manager) suppressed(ctx context.Context, id string) bool {
	set, err := m.flags.IsSet(ctx, id)
	if err != nil {
		// an unreadable flag store must not resurrect a logged out identity
		m.logger.WarnContext(ctx, "Failed to read logout flag", log.FieldSessionID, id, log.FieldError, err)
		return true
	}
	return set
}

func (m *Manager) mustGet(id string) Session {
	s, _ := m.Get(id)
	return s
}
