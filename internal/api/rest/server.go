package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ParthasarathiMohanty986/healthcare-security/internal/engine"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/metrics"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/ratelimit"
	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// Server is the REST API server
type Server struct {
	engine        *engine.Engine
	repository    ResourceRepository
	authenticator *Authenticator
	rateLimit     *RateLimitMiddleware
	metrics       metrics.Metrics
	router        *mux.Router
	httpServer    *http.Server
	logger        *zap.Logger
	config        Config
	startTime     time.Time
}

// Config configures the REST API server
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MetricsPath  string
	Version      string
	MaxBodySize  int64
}

// DefaultConfig returns default REST server configuration
func DefaultConfig() Config {
	return Config{
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		MetricsPath:  "/metrics",
		Version:      "dev",
		MaxBodySize:  1 << 20,
	}
}

// Option configures a Server
type Option func(*Server)

// WithRateLimiter throttles authenticated requests
func WithRateLimiter(limiter ratelimit.Limiter) Option {
	return func(s *Server) {
		if limiter != nil {
			s.rateLimit = NewRateLimitMiddleware(limiter, s.logger)
		}
	}
}

// New creates a new REST API server
func New(cfg Config, eng *engine.Engine, repository ResourceRepository, authenticator *Authenticator, m metrics.Metrics, logger *zap.Logger, opts ...Option) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if repository == nil {
		return nil, fmt.Errorf("resource repository is required")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if m == nil {
		m = metrics.NewNoOpMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	s := &Server{
		engine:        eng,
		repository:    repository,
		authenticator: authenticator,
		metrics:       m,
		router:        mux.NewRouter(),
		logger:        logger,
		config:        cfg,
		startTime:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s, nil
}

// registerRoutes registers all REST API routes
func (s *Server) registerRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.maxBodySizeMiddleware)

	// Unauthenticated endpoints
	s.router.HandleFunc("/health", s.healthCheckHandler).Methods("GET")
	s.router.Handle(s.config.MetricsPath, s.metrics.HTTPHandler()).Methods("GET")

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.authenticator.Middleware)
	if s.rateLimit != nil {
		v1.Use(s.rateLimit.Handler)
	}

	emergency := v1.PathPrefix("/emergency").Subrouter()
	emergency.HandleFunc("/request", s.requestTokenHandler).Methods("POST")
	emergency.HandleFunc("/validate", s.validateTokenHandler).Methods("POST")
	emergency.HandleFunc("/revoke", s.revokeTokenHandler).Methods("POST")
	emergency.HandleFunc("/my-tokens", s.listTokensHandler).Methods("GET")

	patients := v1.PathPrefix("/patients").Subrouter()
	patients.HandleFunc("", s.listPatientsHandler).Methods("GET")
	patients.HandleFunc("/{patientID}/ehr", s.recordsHandler(types.ResourceEHR)).Methods("GET")
	patients.HandleFunc("/{patientID}/reports", s.recordsHandler(types.ResourceReport)).Methods("GET")
	patients.HandleFunc("/{patientID}/labs", s.recordsHandler(types.ResourceLab)).Methods("GET")
}

// Start starts the REST API server
func (s *Server) Start() error {
	s.logger.Info("Starting REST API server",
		zap.Int("port", s.config.Port),
		zap.String("metrics_path", s.config.MetricsPath),
	)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the REST API server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP implements http.Handler interface for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrappedWriter := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrappedWriter, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrappedWriter.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}

// recoveryMiddleware recovers from panics
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("Panic recovered",
					zap.Any("error", err),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				WriteError(w, http.StatusInternalServerError, "Internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// maxBodySizeMiddleware limits request body size
func (s *Server) maxBodySizeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)
		next.ServeHTTP(w, r)
	})
}

// healthCheckHandler handles health check requests
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   s.config.Version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
