package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finfix/internal/cache"
	"finfix/internal/log"
	"finfix/internal/middleware/ratelimit"
	"finfix/internal/middleware/security"
	"finfix/internal/middleware/trace"
	"finfix/internal/services"
	"finfix/internal/session"
)

// Deps are the collaborators the server needs. Limiter and Detector are
// created with defaults when nil.
type Deps struct {
	Sessions   *session.Manager
	Onboarding *services.OnboardingService
	Limiter    *ratelimit.Limiter
	Detector   *security.Detector
	Headers    *security.HeadersConfig
	Logger     *log.Logger

	// SecureCookies marks the session cookie Secure (HTTPS deployments)
	SecureCookies bool

	// CacheCleanupInterval is how often expired sessions and flows are
	// dropped (default: 10m)
	CacheCleanupInterval time.Duration

	// Ready reports whether downstream dependencies are reachable. nil
	// means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server

	sessions      *session.Manager
	onboarding    *services.OnboardingService
	limiter       *ratelimit.Limiter
	detector      *security.Detector
	tracer        *trace.Middleware
	logger        *log.Logger
	caches        *cache.Manager
	ready         func(ctx context.Context) error
	secureCookies bool

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}
	if deps.Detector == nil {
		deps.Detector = security.NewDetector()
	}
	headers := security.DefaultHeadersConfig()
	if deps.Headers != nil {
		headers = *deps.Headers
	}
	if deps.CacheCleanupInterval <= 0 {
		deps.CacheCleanupInterval = 10 * time.Minute
	}

	httpLogger := logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		sessions:      deps.Sessions,
		onboarding:    deps.Onboarding,
		limiter:       deps.Limiter,
		detector:      deps.Detector,
		tracer:        trace.NewMiddleware(logger, deps.Detector.ExtractClientIP),
		logger:        httpLogger,
		caches:        cache.NewManager(),
		ready:         deps.Ready,
		secureCookies: deps.SecureCookies,
	}

	s.caches.Register(s.sessions.Cache())
	for _, c := range s.onboarding.Caches() {
		s.caches.Register(c)
	}
	s.caches.StartCleanup(deps.CacheCleanupInterval)

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.rateLimitKey, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	})(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(headers).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/session", s.handleGetSession)
	mux.HandleFunc("POST /api/session/login", s.handleLogin)
	mux.HandleFunc("POST /api/session/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/session/logout", s.handleLogout)
	mux.HandleFunc("PUT /api/session/mode", s.handleSetMode)

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("GET /profile", s.handleLandingPage)
	mux.HandleFunc("GET /analytics", s.handleLandingPage)

	mux.HandleFunc("GET /onboarding", s.handleStep)
	mux.HandleFunc("GET /onboarding/{step}", s.handleStep)
	mux.HandleFunc("PUT /onboarding/currency", s.handleSetCurrency)
	mux.HandleFunc("PUT /onboarding/incomes", s.handleSetIncomes)
	mux.HandleFunc("POST /onboarding/{kind}/rows", s.handleAddRow)
	mux.HandleFunc("PATCH /onboarding/{kind}/rows/{id}", s.handleEditRow)
	mux.HandleFunc("DELETE /onboarding/{kind}/rows/{id}", s.handleRemoveRow)
	mux.HandleFunc("POST /onboarding/debts/rows/{id}/blur", s.handleDebtBlur)
	mux.HandleFunc("PUT /onboarding/installments/rows/{id}/date", s.handleInstallmentDate)
	mux.HandleFunc("POST /onboarding/installments/rows/{id}/date/blur", s.handleInstallmentDateBlur)
	mux.HandleFunc("POST /onboarding/{step}/next", s.handleNext)
	mux.HandleFunc("POST /onboarding/complete", s.handleComplete)
}

// rateLimitKey limits per session when the browser has one, else per client
// address.
func (s *Server) rateLimitKey(r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return "sid:" + c.Value
	}
	return "ip:" + s.detector.ExtractClientIP(r)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		s.logger.Info("HTTP server stopped",
			log.FieldOperation, log.OpShutdown,
			"requests_served", s.tracer.GetMetrics().TotalRequests)
	})
	return shutdownErr
}
