// Package session holds the per-browser session state the BFF keeps for a
// user and the route guards that read it.
package session

import (
	"errors"
	"strings"

	"finfix/internal/core"
)

type Mode string

const (
	ModeAdmin Mode = "admin"
	ModePWA   Mode = "pwa"
)

const (
	RootPath       = "/"
	LoginPath      = "/login"
	OnboardingPath = "/onboarding"
	ProfilePath    = "/profile"
	AnalyticsPath  = "/analytics"
)

var ErrInvalidMode = errors.New("invalid mode")

// ParseMode accepts "admin" or "pwa", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAdmin:
		return ModeAdmin, nil
	case ModePWA:
		return ModePWA, nil
	}
	return "", ErrInvalidMode
}

// LandingPath is where an onboarded user lands in this mode.
func (m Mode) LandingPath() string {
	if m == ModePWA {
		return AnalyticsPath
	}
	return ProfilePath
}

// Session is what the server knows about one browser.
// Identity is nil for guests.
type Session struct {
	ID       string         `json:"-"`
	Identity *core.Identity `json:"identity,omitempty"`
	Mode     Mode           `json:"mode"`
	// Loading is set while the identity is being resolved.
	Loading bool   `json:"loading"`
	Token   string `json:"-"`
}

func (s Session) Authenticated() bool { return s.Identity != nil }

func (s Session) Onboarded() bool { return s.Identity != nil && s.Identity.IsOnboarded }

func (s Session) UserID() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.ID
}

// HomePath is where the root route sends this session.
func (s Session) HomePath() string {
	switch {
	case !s.Authenticated():
		return LoginPath
	case !s.Onboarded():
		return OnboardingPath
	default:
		return s.Mode.LandingPath()
	}
}

func (s Session) clone() Session {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	return s
}
