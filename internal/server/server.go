// Package server exposes the engine over HTTP.
//
// Routes:
//
//	POST /sparql                     query document + federation -> result envelope
//	GET  /federations/:id/molecules  RDF-MTs of a federation
//	GET  /metrics                    Prometheus metrics
//	GET  /healthz                    liveness
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/engine"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/queryir"
)

// SessionHeader names the header whose value groups queries of one
// client. A new query of a session supersedes the running one.
const SessionHeader = "X-Session-ID"

// QueryEngine answers queries. Implemented by *engine.Engine.
type QueryEngine interface {
	Query(ctx context.Context, federation string, q *queryir.Query) (*engine.Envelope, error)
	RunSession(ctx context.Context, session, federation string, q *queryir.Query) (*engine.Envelope, error)
}

// Server is the HTTP front end of one engine.
type Server struct {
	echo   *echo.Echo
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New builds the routes of a server answering queries with eng and
// listing molecules from catalogs.
func New(eng QueryEngine, catalogs engine.CatalogSource, opts ...Option) *Server {
	s := &Server{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		e.DefaultHTTPErrorHandler(err, c)
		s.logger.Error("request failed", "path", c.Request().URL.Path, "error", err)
	}
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(s.logRequests)

	e.POST("/sparql", QueryHandler(eng))
	e.GET("/federations/:id/molecules", MoleculesHandler(catalogs, "id"))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", HealthHandler())

	s.echo = e
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("serving", "addr", addr)
		errc <- s.echo.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdown); err != nil {
			return err
		}
		return nil
	}
}

// logRequests logs server-side latency of every request.
func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		begin := time.Now()
		err := next(c)
		s.logger.Debug("request",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", c.Response().Status,
			"duration", time.Since(begin),
			"error", err)
		return err
	}
}

// catalogMolecules is the body of GET /federations/:id/molecules.
type catalogMolecules struct {
	Federation string          `json:"federation"`
	Count      int             `json:"count"`
	Molecules  []*ir.Molecule  `json:"molecules"`
	Sources    []ir.DataSource `json:"sources"`
}

func moleculesOf(c *catalog.Catalog) catalogMolecules {
	return catalogMolecules{
		Federation: c.Federation(),
		Count:      c.Len(),
		Molecules:  c.Molecules(),
		Sources:    c.Sources(),
	}
}
