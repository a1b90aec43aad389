// Package web provides the plumbing for the relay's status server.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/inbucket/aliasrelay/pkg/msghub"
	"github.com/inbucket/aliasrelay/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// BacklogReporter supplies the most recent staging backlog snapshot.
type BacklogReporter interface {
	Last() storage.Backlog
}

var (
	// Router sends incoming requests to the correct handler function.
	Router = mux.NewRouter()

	webConfig config.Web
	msgHub    *msghub.Hub
	backlog   BacklogReporter
	store     storage.Store
)

// Server defines an instance of the status HTTP server.
type Server struct {
	http           *http.Server
	listener       net.Listener
	globalShutdown chan bool
	done           chan struct{}
}

// NewServer sets up things for unit tests or the Start() method.
func NewServer(
	cfg config.Web,
	shutdownChan chan bool,
	st storage.Store,
	mh *msghub.Hub,
	br BacklogReporter,
) *Server {
	webConfig = cfg
	msgHub = mh
	backlog = br
	store = st

	Router.Path("/healthz").Handler(http.HandlerFunc(healthz)).Methods("GET")
	Router.Path("/metrics").Handler(promhttp.Handler()).Methods("GET")
	Router.NotFoundHandler = noMatchHandler(http.StatusNotFound, "No route matches URI path")
	Router.MethodNotAllowedHandler = noMatchHandler(http.StatusMethodNotAllowed,
		"Method not allowed for URI path")

	s := &Server{
		http: &http.Server{
			Addr:         cfg.Addr,
			Handler:      requestLoggingWrapper(Router),
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		globalShutdown: shutdownChan,
		done:           make(chan struct{}),
	}

	return s
}

// Listen opens the TCP listener.  A bind failure is returned rather than triggering shutdown so
// that startup can report it.
func (s *Server) Listen() error {
	slog := log.With().Str("module", "web").Str("phase", "startup").Str("addr", s.http.Addr).Logger()
	// We don't use ListenAndServe because it lacks a way to close the listener.
	var err error
	s.listener, err = net.Listen("tcp4", s.http.Addr)
	if err != nil {
		slog.Error().Err(err).Msg("HTTP failed to start TCP4 listener")
		return err
	}
	slog.Info().Msg("HTTP listening on tcp4")

	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start serves HTTP requests on the listener opened by Listen, until ctx is canceled.
func (s *Server) Start(ctx context.Context) {
	defer close(s.done)
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			s.emergencyShutdown()
			return
		}
	}

	// Listener go routine.
	go s.serve(ctx)

	// Wait for shutdown.
	<-ctx.Done()
	log.Debug().Str("module", "web").Str("phase", "shutdown").Msg("HTTP server shutting down on request")

	// Closing the listener will cause the serve() go routine to exit.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		log.Error().Str("module", "web").Str("phase", "shutdown").Err(err).
			Msg("Error shutting down HTTP server")
	}
}

// serve begins serving HTTP requests.
func (s *Server) serve(ctx context.Context) {
	// server.Serve blocks until we close the listener.
	err := s.http.Serve(s.listener)

	select {
	case <-ctx.Done():
		// Nop
	default:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Str("module", "web").Err(err).Msg("HTTP server failed")
			s.emergencyShutdown()
		}
	}
}

// Drain blocks until Start has returned.
func (s *Server) Drain() {
	<-s.done
}

func (s *Server) emergencyShutdown() {
	// Shutdown the relay.
	select {
	case <-s.globalShutdown:
	default:
		close(s.globalShutdown)
	}
}

func healthz(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK\n"))
}
