package server

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/eltrade/mnconfig/internal/config"
	"github.com/eltrade/mnconfig/internal/logging"
	"github.com/eltrade/mnconfig/internal/service"
)

// HTTPServer serves the configuration REST API
type HTTPServer struct {
	cfg     *config.Config
	logger  *logging.Logger
	svc     *service.Service
	decoder *schema.Decoder
	handler http.Handler
	server  *http.Server
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg *config.Config, logger *logging.Logger, svc *service.Service) (*HTTPServer, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}

	s := &HTTPServer{
		cfg:     cfg,
		logger:  logger,
		svc:     svc,
		decoder: schema.NewDecoder(),
	}
	s.decoder.IgnoreUnknownKeys(true)
	s.handler = s.createHandler()

	s.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	return s, nil
}

// Handler returns the fully wrapped handler, used by tests
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server and blocks until it stops
func (s *HTTPServer) Start() error {
	s.logger.Info("Starting HTTP server on %s", s.server.Addr)
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "failed to start HTTP server")
	}
	return nil
}

// Stop waits for in-flight requests up to the given timeout, then closes
// the remaining connections.
func (s *HTTPServer) Stop(timeout time.Duration) {
	if s.server == nil {
		return
	}
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warning("Graceful shutdown failed, closing connections: %v", err)
		s.server.Close()
	}
}

// createHandler builds the router and wraps it with the middleware chain
func (s *HTTPServer) createHandler() http.Handler {
	router := mux.NewRouter()

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("Failed Request: (%d:%s) for %s:'%s'", http.StatusNotFound, http.StatusText(http.StatusNotFound), r.Method, r.URL.String())
		writeDetail(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	router.Use(s.requestIDMiddleware, s.accessLogMiddleware, s.authMiddleware)

	s.registerConfigHandlers(router)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)

	if dir := s.cfg.Store.AssetsDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			s.logger.Info("Serving static assets from %s", dir)
			router.PathPrefix("/assets/").Handler(http.StripPrefix("/assets/", http.FileServer(http.Dir(dir))))
		} else {
			s.logger.Debug("Assets directory %s not found, static assets disabled", dir)
		}
	}

	if s.logger.Logrus().IsLevelEnabled(logrus.DebugLevel) {
		_ = router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
			path, err := route.GetPathTemplate()
			if err != nil {
				path = ""
			}
			methods, err := route.GetMethods()
			if err != nil {
				methods = []string{}
			}
			s.logger.Debug("Methods: %s Path: %s", strings.Join(methods, ", "), path)
			return nil
		})
	}

	var handler http.Handler = router
	handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(s.logger.Logrus()),
		handlers.PrintRecoveryStack(true),
	)(handler)
	handler = cors.New(corsOptions(s.cfg.HTTP.CORSOrigins)).Handler(handler)
	return handler
}

// corsOptions allows any listed origin with credentials. A "*" entry
// reflects the request origin instead of answering with a literal "*".
func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodHead, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{requestIDHeader},
	}
	for _, o := range origins {
		if o == "*" {
			opts.AllowOriginFunc = func(string) bool { return true }
			return opts
		}
	}
	opts.AllowedOrigins = origins
	return opts
}
