package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/rowquery/logger"
	"github.com/kbukum/rowquery/observability"
	"github.com/kbukum/rowquery/query"
	"github.com/kbukum/rowquery/resilience"
	"github.com/kbukum/rowquery/server/middleware"
)

// Server serves row queries over HTTP/1.1 and h2c. Gin routes hang off a
// root ServeMux; middleware wraps the mux so every route is covered.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	mux        *http.ServeMux
	config     Config
	log        *logger.Logger

	cache    ResultCache
	cacheTTL time.Duration

	mu          sync.Mutex
	middlewares []middleware.Middleware
	listener    net.Listener
}

// New creates a Server. No middleware or routes are registered yet.
func New(cfg Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	if log.GetLogger().GetLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	mux := http.NewServeMux()
	mux.Handle("/", engine)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
			IdleTimeout:  time.Duration(cfg.IdleTimeout) * time.Second,
		},
		engine: engine,
		mux:    mux,
		config: cfg,
		log:    log.WithComponent("server"),
	}
}

// Engine returns the Gin engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Use appends middleware. The first registered is the outermost.
func (s *Server) Use(mw ...middleware.Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, mw...)
}

// Handler returns the full handler chain: h2c, middleware, mux.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	chain := middleware.Chain(s.middlewares...)
	s.mu.Unlock()

	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          time.Duration(s.config.IdleTimeout) * time.Second,
	}
	return h2c.NewHandler(chain(s.mux), h2s)
}

// ApplyMiddleware installs recovery, request id and request logging.
func (s *Server) ApplyMiddleware(metrics *observability.QueryMetrics) {
	s.Use(
		middleware.Recovery(s.log),
		middleware.RequestID(),
		middleware.RequestLogger(s.log, metrics),
	)
}

// RegisterDefaultEndpoints registers GET /health and GET /info.
func (s *Server) RegisterDefaultEndpoints(serviceName string, checkers ...observability.HealthChecker) {
	s.engine.GET("/health", Health(serviceName, checkers...))
	s.engine.GET("/info", Info(serviceName))
}

// SetResultCache makes GET /rows serve repeated requests from c for ttl.
// Call it before RegisterRows.
func (s *Server) SetResultCache(c ResultCache, ttl time.Duration) {
	s.cache = c
	s.cacheTTL = ttl
}

// RegisterRows registers GET /rows backed by load. Source opens are retried
// up to OpenAttempts times and at most MaxConcurrentQueries run at once.
func (s *Server) RegisterRows(load Loader, opts ...query.Option) {
	endpoint := &rowsEndpoint{
		load:  retryLoader(load, s.config.OpenAttempts, s.log),
		opts:  opts,
		cache: s.cache,
		ttl:   s.cacheTTL,
		log:   s.log,
	}
	handler := gin.HandlerFunc(endpoint.serve)
	if n := s.config.MaxConcurrentQueries; n > 0 {
		bh := resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          "query",
			MaxConcurrent: n,
			MaxWait:       time.Duration(s.config.QueueTimeout) * time.Millisecond,
			OnReject: func(name string, err error) {
				s.log.Warn("query rejected", map[string]interface{}{
					"bulkhead":        name,
					logger.FieldError: err.Error(),
				})
			},
		})
		handler = limitConcurrency(bh, handler)
	}
	s.engine.GET("/rows", handler)
}

// Start binds the port and serves in a goroutine. It returns once the
// listener is bound.
func (s *Server) Start(ctx context.Context) error {
	s.log.Info("starting HTTP server", map[string]interface{}{"addr": s.httpServer.Addr})

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.httpServer.Handler = s.Handler()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("server error", map[string]interface{}{logger.FieldError: err.Error()})
		}
	}()

	s.log.Info("HTTP server started", map[string]interface{}{"addr": listener.Addr().String()})
	return nil
}

// Stop gracefully shuts down the server with a 5-second deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("server shutdown error", map[string]interface{}{logger.FieldError: err.Error()})
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.log.Info("HTTP server shut down")
	return nil
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}
