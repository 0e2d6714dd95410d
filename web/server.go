// Package web exposes the measurement controller over HTTP: a status page,
// JSON endpoints to drive measurements and a websocket live stream.
package web

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"maps"
	"net/http"
	"time"

	"github.com/anibaldeboni/zero-paper/sensormon/logging"
)

//go:embed templates/index.html
var indexTemplate string

// Server encapsulates the HTTP server configuration and dependencies
type Server struct {
	config          *Config
	ctrl            Controller
	hub             *Hub
	template        *template.Template
	server          *http.Server
	handler         http.Handler
	routes          map[string]string
	ctx             context.Context
	logger          *slog.Logger
	systemStartTime time.Time
}

// NewServer creates a server for ctrl. hub may be nil, in which case the
// live stream is unavailable. The server stops when ctx is cancelled.
func NewServer(ctx context.Context, ctrl Controller, config *Config, hub *Hub, logger *slog.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}

	tmpl, err := template.New("index").Funcs(template.FuncMap{
		"join": joinStrings,
	}).Parse(indexTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML template: %w", err)
	}

	s := &Server{
		config:          config,
		ctrl:            ctrl,
		hub:             hub,
		template:        tmpl,
		ctx:             ctx,
		logger:          logging.Or(logger, "web"),
		systemStartTime: time.Now(),
		routes: map[string]string{
			"GET /":                        "Status page",
			"GET /health":                  "Server and measurement health",
			"GET /sensors":                 "Status of every sensor (JSON)",
			"GET /sensors/{name}":          "Statistics of one sensor (JSON)",
			"POST /sensors/{name}/select":  "Select the displayed sensor",
			"POST /sensors/{name}/active":  "Enable or disable a sensor (?state=true|false)",
			"GET /measurement":             "Current or last run (JSON)",
			"POST /measurement/start":      "Start a run (?countdown=30s)",
			"POST /measurement/stop":       "Stop the run",
			"GET /live":                    "Websocket event stream",
		},
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)
	s.handler = s.loggingMiddleware(mux)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      s.handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /sensors", s.handleSensors)
	mux.HandleFunc("GET /sensors/{name}", s.handleSensor)
	mux.HandleFunc("POST /sensors/{name}/select", s.handleSelect)
	mux.HandleFunc("POST /sensors/{name}/active", s.handleActive)
	mux.HandleFunc("GET /measurement", s.handleMeasurement)
	mux.HandleFunc("POST /measurement/start", s.handleStart)
	mux.HandleFunc("POST /measurement/stop", s.handleStop)
	mux.HandleFunc("GET /live", s.handleLive)
}

// Handler returns the routed handler including the logging middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// GetRoutes returns the configured routes and their descriptions
func (s *Server) GetRoutes() map[string]string {
	routesCopy := make(map[string]string, len(s.routes))
	maps.Copy(routesCopy, s.routes)
	return routesCopy
}

// Start serves HTTP until the context is cancelled, then shuts down within
// the configured timeout and closes the live stream.
func (s *Server) Start() error {
	s.logger.Info("starting http server", "addr", s.server.Addr)

	serverErr := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("failed to start server: %w", err)
		} else {
			serverErr <- nil
		}
	}()

	select {
	case <-s.ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if s.hub != nil {
			s.hub.Close()
		}
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown failed", "error", err)
			return fmt.Errorf("failed to shutdown server: %w", err)
		}

		s.logger.Info("http server stopped")
		return nil

	case err := <-serverErr:
		return err
	}
}
