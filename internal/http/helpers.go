package http

import (
	"errors"
	"net/http"

	"finfix/internal/core"
	"finfix/internal/finance"
	"finfix/internal/log"
	"finfix/internal/onboarding"
	"finfix/internal/services"
	"finfix/internal/session"
)

const sessionCookieName = "finfix_session"

// currentSession returns the browser's session, starting an anonymous one
// when the cookie is missing or no longer known.
func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) session.Session {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		if sess, ok := s.sessions.Get(c.Value); ok {
			return sess
		}
	}
	sess := s.sessions.New()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	log.FromContext(r.Context()).DebugContext(r.Context(), "Started anonymous session", log.FieldSessionID, sess.ID)
	return sess
}

// guard runs g for the request target and writes the redirect or pending
// response when navigation is not allowed.
func (s *Server) guard(w http.ResponseWriter, r *http.Request, sess session.Session, g session.Guard) bool {
	d := g(sess, r.URL.RequestURI())
	switch d.Kind {
	case session.Allow:
		return true
	case session.Pending:
		NewJSONResponse().Status(http.StatusAccepted).Body(map[string]bool{"pending": true}).Write(w)
	default:
		NewJSONResponse().Redirect(d.Path).Write(w)
	}
	return false
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation  *onboarding.ValidationError
		persistence *onboarding.PersistenceError
		load        *onboarding.LoadError
	)
	switch {
	case errors.As(err, &validation):
		ValidationFailed(validation.Errors).Write(w)
	case errors.As(err, &persistence), errors.As(err, &load):
		BadGatewayError(err.Error()).Write(w)
	case errors.Is(err, onboarding.ErrRowNotFound):
		NotFoundError(err.Error()).Write(w)
	case errors.Is(err, onboarding.ErrUnknownField),
		errors.Is(err, onboarding.ErrRejectedInput),
		errors.Is(err, core.ErrInvalidCurrency),
		errors.Is(err, session.ErrInvalidMode),
		errors.Is(err, ErrEmptyBody):
		BadRequestError(err.Error()).Write(w)
	case errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrNoSubject),
		errors.Is(err, session.ErrNoSession),
		errors.Is(err, services.ErrNotAuthenticated),
		errors.Is(err, finance.ErrUnauthorized):
		UnauthorizedError(err.Error()).Write(w)
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path, log.FieldError, err)
		InternalServerError("internal error").Write(w)
	}
}
