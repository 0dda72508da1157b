package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"blackout/internal/auth"
	"blackout/internal/core"
	"blackout/internal/log"
	"blackout/internal/metrics"
	"blackout/internal/middleware/ratelimit"
	"blackout/internal/middleware/security"
	"blackout/internal/middleware/trace"
	"blackout/internal/services"
)

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Finance *services.FinanceService
	Auth    *auth.Service
	Metrics *metrics.Metrics
	Logger  *log.Logger

	RateLimit ratelimit.Config
	// OpenAPI is served verbatim at /api/docs/openapi.yaml when set.
	OpenAPI []byte
}

type Server struct {
	http.Server

	finance  *services.FinanceService
	auth     *auth.Service
	metrics  *metrics.Metrics
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	openapi  []byte
	started  time.Time

	shutdownOnce sync.Once
}

func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		finance:  deps.Finance,
		auth:     deps.Auth,
		metrics:  deps.Metrics,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(deps.RateLimit),
		detector: security.NewDetector(),
		openapi:  deps.OpenAPI,
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	protected := auth.Middleware(deps.Auth.Tokens())

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	for _, kind := range []core.Kind{core.KindIncome, core.KindExpense} {
		base := "/api/" + kind.String()
		mux.Handle("POST "+base+"/create", protected(s.handleCreate(kind)))
		mux.Handle("GET "+base, protected(s.handleList(kind)))
		mux.Handle("PUT "+base+"/{id}", protected(s.handleUpdate(kind)))
		mux.Handle("DELETE "+base+"/{id}", protected(s.handleDelete(kind)))
	}
	mux.Handle("GET /api/finance", protected(http.HandlerFunc(s.handleTotals)))

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/docs/openapi.yaml", s.handleOpenAPI)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	var observe trace.Observer
	if s.metrics != nil {
		observe = s.metrics.ObserveHTTP
	}

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, s.rateLimited)(mux)
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbe(r.URL.Path) {
			mux.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = trace.NewMiddleware(logger, s.detector.ExtractClientIP, observe).Middleware(h)

	s.Handler = h
	return s
}

// Shutdown stops the limiter's cleanup loop, then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded", log.FieldPath, r.URL.Path)
	TooManyRequestsError().Write(w)
}

// isProbe reports paths that are never rate limited.
func isProbe(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/api/health", "/metrics":
		return true
	}
	return false
}
