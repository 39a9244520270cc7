// Package ipc serves the HTTP control surface and the websocket channel that
// carries frames out and control and input messages in.
package ipc

import (
	"context"
	stdliberrors "errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/odvcencio/browsercast/pkg/browser"
	"github.com/odvcencio/browsercast/pkg/input"
	"github.com/odvcencio/browsercast/pkg/session"
	"github.com/odvcencio/browsercast/pkg/stream"
)

// Config controls the server.
type Config struct {
	BindAddress     string
	AllowedOrigins  []string
	TrustProxy      bool
	MaxConnections  int
	ReadLimit       int64
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
	PingInterval    time.Duration

	// Per-connection inbound message budget.
	InboundRate  float64
	InboundBurst int

	// Per-client-IP start-session budget. Zero rate disables the limit.
	SessionCreateRate  float64
	SessionCreateBurst int

	// Stream is used for every start-stream request.
	Stream browser.StreamOptions
	Version string
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		BindAddress:        "127.0.0.1:3000",
		AllowedOrigins:     []string{"http://localhost", "http://127.0.0.1"},
		MaxConnections:     maxWSClients,
		ReadLimit:          maxWSReadBytes,
		MaxBodyBytes:       maxRequestBodyBytes,
		ShutdownTimeout:    10 * time.Second,
		PingInterval:       wsPingInterval,
		InboundRate:        defaultInboundRate,
		InboundBurst:       defaultInboundBurst,
		SessionCreateRate:  defaultSessionCreateRate,
		SessionCreateBurst: defaultSessionCreateBurst,
		Stream: browser.StreamOptions{
			Format:        browser.FrameFormatJPEG,
			Quality:       85,
			MaxWidth:      1080,
			MaxHeight:     1920,
			EveryNthFrame: 1,
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BindAddress == "" {
		c.BindAddress = d.BindAddress
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = d.AllowedOrigins
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = d.MaxConnections
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = d.ReadLimit
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.InboundRate <= 0 {
		c.InboundRate = d.InboundRate
	}
	if c.InboundBurst <= 0 {
		c.InboundBurst = d.InboundBurst
	}
	if c.Stream == (browser.StreamOptions{}) {
		c.Stream = d.Stream
	}
	return c
}

// BrowserStatus reports the live browser lease, or nil while relaunching.
type BrowserStatus interface {
	Current() *browser.Lease
}

// PlatformResolver maps an allow-listed platform name to its start URL.
type PlatformResolver interface {
	Lookup(name string) (string, bool)
}

// SessionOpener builds the factory for a new session.
type SessionOpener interface {
	Open(platform, url string) session.Factory
}

// Deps are the components the server drives.
type Deps struct {
	Registry  *session.Registry
	Opener    SessionOpener
	Pipeline  *stream.Pipeline
	Router    *input.Router
	Browser   BrowserStatus
	Platforms PlatformResolver
	Metrics   *browser.Metrics
	Logger    *zap.Logger
}

// Server hosts the session HTTP API and the websocket channel.
type Server struct {
	cfg       Config
	registry  *session.Registry
	opener    SessionOpener
	pipeline  *stream.Pipeline
	router    *input.Router
	browser   BrowserStatus
	platforms PlatformResolver
	metrics   *browser.Metrics
	logger    *zap.Logger

	origins       *originPolicy
	hub           *Hub
	wsLimiter     *connLimiter
	createLimiter *keyedLimiter

	handlerOnce sync.Once
	handler     http.Handler
	httpServer  *http.Server
}

// NewServer constructs a server.
func NewServer(cfg Config, deps Deps) *Server {
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	router := deps.Router
	if router == nil {
		router = input.NewRouter(logger, deps.Metrics)
	}
	return &Server{
		cfg:           cfg,
		registry:      deps.Registry,
		opener:        deps.Opener,
		pipeline:      deps.Pipeline,
		router:        router,
		browser:       deps.Browser,
		platforms:     deps.Platforms,
		metrics:       deps.Metrics,
		logger:        logger.Named("ipc"),
		origins:       newOriginPolicy(cfg.AllowedOrigins),
		hub:           NewHub(),
		wsLimiter:     newConnLimiter(cfg.MaxConnections),
		createLimiter: newKeyedLimiter(cfg.SessionCreateRate, cfg.SessionCreateBurst),
	}
}

// Handler returns the HTTP handler, wrapped for h2c.
func (s *Server) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		router := chi.NewRouter()
		if s.cfg.TrustProxy {
			router.Use(chimw.RealIP)
		}
		router.Use(chimw.RequestID)
		router.Use(chimw.Recoverer)
		router.Use(s.requestLogger)
		router.Use(s.corsMiddleware)
		router.Use(s.securityHeadersMiddleware)

		router.Post("/start-session", s.handleStartSession)
		router.Post("/end-session", s.handleEndSession)
		router.Get("/ws", s.handleWebSocket)
		router.Get("/healthz", s.handleHealthz)
		router.Get("/metrics", s.handleMetrics)

		// h2c lets the websocket ride HTTP/2 (RFC 8441) behind proxies
		// that strip HTTP/1.1 upgrade headers.
		s.handler = h2c.NewHandler(router, &http2.Server{})
	})
	return s.handler
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.BindAddress)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then drains.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("serving", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !stdliberrors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		s.Close()
		return err
	case err := <-serverErr:
		s.Close()
		return err
	}
}

// Close closes every websocket channel. Hijacked connections are not
// covered by http.Server.Shutdown.
func (s *Server) Close() {
	s.hub.CloseAll("server shutting down")
}

func normalizePlatform(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
