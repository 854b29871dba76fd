package http

import (
	"net/http"
	"strings"

	"finfix/internal/log"
	"finfix/internal/session"
)

type sessionResponse struct {
	session.Session
	Authenticated bool   `json:"authenticated"`
	Onboarded     bool   `json:"onboarded"`
	Home          string `json:"home"`
	Redirect      string `json:"redirect,omitempty"`
}

func newSessionResponse(sess session.Session) sessionResponse {
	return sessionResponse{
		Session:       sess,
		Authenticated: sess.Authenticated(),
		Onboarded:     sess.Onboarded(),
		Home:          sess.HomePath(),
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(newSessionResponse(s.currentSession(w, r))).Write(w)
}

// handleLogin completes a login with a backend-issued token. The response
// carries where to go next: the "next" query parameter when it is a local
// path, else the session's home.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession(w, r)
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	sess, err := s.sessions.Begin(r.Context(), sess.ID, strings.TrimSpace(req.Token))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := newSessionResponse(sess)
	resp.Redirect = session.SafeNext(r.URL.Query().Get("next"), sess.HomePath())
	NewJSONResponse().Body(resp).Write(w)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession(w, r)
	sess, err := s.sessions.Refresh(r.Context(), sess.ID)
	if err != nil {
		BadGatewayError(err.Error()).Write(w)
		return
	}
	NewJSONResponse().Body(newSessionResponse(sess)).Write(w)
}

// handleLogout clears the identity and drops any wizard state of the session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession(w, r)
	sess, err := s.sessions.Logout(r.Context(), sess.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.onboarding.Discard(sess.ID)
	resp := newSessionResponse(sess)
	resp.Redirect = session.LoginPath
	NewJSONResponse().Body(resp).Write(w)
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession(w, r)
	var req modeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	mode, err := session.ParseMode(req.Mode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err = s.sessions.SetMode(sess.ID, mode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Mode changed", log.FieldSessionID, sess.ID, log.FieldMode, mode)
	NewJSONResponse().Body(newSessionResponse(sess)).Write(w)
}

type pageResponse struct {
	Page    string          `json:"page"`
	Session sessionResponse `json:"session"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession(w, r)
	if sess.Loading {
		NewJSONResponse().Status(http.StatusAccepted).Body(map[string]bool{"pending": true}).Write(w)
		return
	}
	NewJSONResponse().Redirect(sess.HomePath()).Write(w)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession(w, r)
	if !s.guard(w, r, sess, session.RequireGuest) {
		return
	}
	NewJSONResponse().Body(pageResponse{Page: "login", Session: newSessionResponse(sess)}).Write(w)
}

// handleLandingPage serves the profile and analytics routes. Reaching them
// means the user left the wizard, so its draft is dropped.
func (s *Server) handleLandingPage(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession(w, r)
	if !s.guard(w, r, sess, session.Chain(session.RequireAuth, session.RequireOnboarded(false))) {
		return
	}
	s.onboarding.Discard(sess.ID)
	page := strings.TrimPrefix(r.URL.Path, "/")
	NewJSONResponse().Body(pageResponse{Page: page, Session: newSessionResponse(sess)}).Write(w)
}
