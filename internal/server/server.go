// Package server exposes the store over HTTP.
package server

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/goccy/go-json"
	fiber "github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/hyp3rd/ewrap"
	"go.uber.org/zap"

	"perfstore/internal/sentinel"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultBodyLimit    = 64 << 20

	headerRequestID = "X-Request-ID"
)

// Option configures the server.
type Option func(*Server)

// WithBasePath mounts every route under path.
func WithBasePath(path string) Option {
	return func(s *Server) { s.basePath = path }
}

// WithReadTimeout sets the read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { s.readTimeout = d }
}

// WithWriteTimeout sets the write timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// WithBodyLimit caps request bodies, payload uploads included.
func WithBodyLimit(n int) Option {
	return func(s *Server) { s.bodyLimit = n }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// Server holds the Fiber app and its listener.
type Server struct {
	addr         string
	basePath     string
	readTimeout  time.Duration
	writeTimeout time.Duration
	bodyLimit    int
	log          *zap.Logger

	store   Store
	app     *fiber.App
	ln      net.Listener
	started bool
}

// New builds the server and mounts the routes. Start listens.
func New(addr string, store Store, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		basePath:     "/",
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		bodyLimit:    defaultBodyLimit,
		log:          zap.NewNop(),
		store:        store,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		BodyLimit:    s.bodyLimit,
		UnescapePath: true,
		// Route params are kept by the stores, so they must not alias the request buffer.
		Immutable:    true,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ErrorHandler: s.handleError,
	})

	s.app.Use(s.requestID)
	s.mountRoutes(s.app.Group(strings.TrimSuffix(s.basePath, "/")))

	return s
}

// App exposes the Fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if s.started {
		return nil
	}

	lc := net.ListenConfig{}

	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return ewrap.Wrapf(err, "listen on %s", s.addr)
	}

	s.ln = ln

	go func() {
		if err := s.app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
			s.log.Error("http server stopped", zap.Error(err))
		}
	}()

	s.started = true
	s.log.Info("http server listening", zap.String("addr", ln.Addr().String()), zap.String("base", s.basePath))

	return nil
}

// Address returns the bound address, empty before Start.
func (s *Server) Address() string {
	if s.ln == nil {
		return ""
	}

	return s.ln.Addr().String()
}

// Shutdown stops the server, giving up when ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.started {
		return nil
	}

	ch := make(chan error, 1)

	go func() { ch <- s.app.Shutdown() }()

	select {
	case <-ctx.Done():
		return sentinel.ErrShutdownTimeout
	case err := <-ch:
		return err
	}
}

func (s *Server) requestID(c fiber.Ctx) error {
	id := c.Get(headerRequestID)
	if id == "" {
		id = uuid.NewString()
	}

	c.Set(headerRequestID, id)

	start := time.Now()
	err := c.Next()

	s.log.Debug("request",
		zap.String("id", id),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Duration("took", time.Since(start)),
		zap.Error(err))

	return err
}
