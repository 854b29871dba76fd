package session

import "net/url"

type DecisionKind int

const (
	Allow DecisionKind = iota
	Redirect
	Pending
)

// Decision is the outcome of a guard.
type Decision struct {
	Kind DecisionKind
	Path string
}

func (d Decision) Allowed() bool { return d.Kind == Allow }

func allow() Decision { return Decision{Kind: Allow} }

func redirect(path string) Decision { return Decision{Kind: Redirect, Path: path} }

func pending() Decision { return Decision{Kind: Pending} }

// Guard decides whether s may navigate to target.
type Guard func(s Session, target string) Decision

// RequireAuth lets authenticated sessions through and sends guests to the
// login page with the attempted path in "next".
func RequireAuth(s Session, target string) Decision {
	if s.Loading {
		return pending()
	}
	if s.Authenticated() {
		return allow()
	}
	if target == "" || target == LoginPath {
		return redirect(LoginPath)
	}
	return redirect(LoginPath + "?next=" + url.QueryEscape(target))
}

// RequireGuest sends authenticated sessions to their mode landing route.
func RequireGuest(s Session, _ string) Decision {
	if s.Loading {
		return pending()
	}
	if !s.Authenticated() {
		return allow()
	}
	return redirect(s.Mode.LandingPath())
}

// RequireOnboarded allows onboarded sessions and sends the rest to the
// wizard. Inverted, it allows only sessions still onboarding and sends
// onboarded ones to their landing route.
func RequireOnboarded(invert bool) Guard {
	return func(s Session, _ string) Decision {
		if s.Loading {
			return pending()
		}
		if s.Onboarded() != invert {
			return allow()
		}
		if invert {
			return redirect(s.Mode.LandingPath())
		}
		return redirect(OnboardingPath)
	}
}

// Chain runs guards in order and returns the first decision that is not
// Allow.
func Chain(guards ...Guard) Guard {
	return func(s Session, target string) Decision {
		for _, g := range guards {
			if d := g(s, target); !d.Allowed() {
				return d
			}
		}
		return allow()
	}
}

// SafeNext returns next when it is a local absolute path, else fallback.
func SafeNext(next, fallback string) string {
	if len(next) < 1 || next[0] != '/' || (len(next) > 1 && (next[1] == '/' || next[1] == '\\')) {
		return fallback
	}
	return next
}
