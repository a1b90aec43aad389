// Package smtp is the intake listener: it stages each received message and hands it to the relay
// pipeline before acknowledging the DATA command.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/inbucket/aliasrelay/pkg/policy"
	"github.com/inbucket/aliasrelay/pkg/relay"
	"github.com/inbucket/aliasrelay/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	sessionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aliasrelay",
		Subsystem: "smtp",
		Name:      "sessions_total",
		Help:      "SMTP sessions accepted",
	})
	receivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aliasrelay",
		Subsystem: "smtp",
		Name:      "received_total",
		Help:      "Messages staged and handed to the pipeline",
	})
	rejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aliasrelay",
		Subsystem: "smtp",
		Name:      "rejected_total",
		Help:      "SMTP commands rejected, by reason",
	}, []string{"reason"})
	logEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aliasrelay",
		Subsystem: "smtp",
		Name:      "log_events_total",
		Help:      "Warnings and errors logged by SMTP sessions",
	}, []string{"level"})
)

func init() {
	prometheus.MustRegister(sessionsTotal, receivedTotal, rejectedTotal, logEventsTotal)
}

// Intake receives each staged message.  HandleIntake must return promptly.
type Intake interface {
	HandleIntake(env relay.Envelope, path string, ack func())
}

// Server holds the configuration and state of our SMTP intake server.
type Server struct {
	config         config.SMTP        // SMTP configuration.
	addrPolicy     *policy.Addressing // Address policy.
	globalShutdown chan bool          // Shuts down the relay.
	store          storage.Store      // Staging store for received messages.
	intake         Intake             // Pipeline for staged messages.
	srv            *gosmtp.Server     // Protocol implementation.
	listener       net.Listener       // Incoming network connections.
	done           chan struct{}      // Closed once shutdown has completed.
	notify         chan error         // Notify on fatal error.
}

// NewServer creates a new, unstarted, SMTP server instance with the specificed config.
func NewServer(
	smtpConfig config.SMTP,
	globalShutdown chan bool,
	store storage.Store,
	intake Intake,
	apolicy *policy.Addressing,
) *Server {
	s := &Server{
		config:         smtpConfig,
		addrPolicy:     apolicy,
		globalShutdown: globalShutdown,
		store:          store,
		intake:         intake,
		done:           make(chan struct{}),
		notify:         make(chan error, 1),
	}

	srv := gosmtp.NewServer(&backend{server: s})
	srv.Domain = smtpConfig.Domain
	srv.ReadTimeout = smtpConfig.MaxIdle
	srv.WriteTimeout = smtpConfig.MaxIdle
	srv.MaxMessageBytes = smtpConfig.MaxMessageBytes
	srv.MaxRecipients = 1
	srv.ErrorLog = errorLog{logger: log.With().Str("module", "smtp").Logger()}
	if smtpConfig.Debug {
		srv.Debug = os.Stdout
	}
	s.srv = srv

	return s
}

// Listen binds the configured address.  A failure here is a startup fault.
func (s *Server) Listen() error {
	slog := log.With().Str("module", "smtp").Str("phase", "startup").Logger()
	l, err := net.Listen("tcp4", s.config.Addr)
	if err != nil {
		return fmt.Errorf("SMTP listen on %s: %w", s.config.Addr, err)
	}
	s.listener = l
	slog.Info().Str("addr", l.Addr().String()).Msg("SMTP listening on tcp4")
	return nil
}

// Addr returns the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close releases the listener bound by Listen, for use when startup is abandoned before Start.
func (s *Server) Close() {
	if s.listener == nil {
		return
	}
	if err := s.listener.Close(); err != nil {
		log.Warn().Str("module", "smtp").Str("phase", "startup").Err(err).
			Msg("Failed to close SMTP listener")
	}
	s.listener = nil
}

// Start handles incoming connections until ctx is canceled.  Listen must have succeeded.
func (s *Server) Start(ctx context.Context) {
	defer close(s.done)

	// Listener go routine.
	go s.serve(ctx)

	// Wait for shutdown.
	<-ctx.Done()
	slog := log.With().Str("module", "smtp").Str("phase", "shutdown").Logger()
	slog.Debug().Msg("SMTP shutdown requested, connections will be drained")
	if err := s.srv.Shutdown(context.Background()); err != nil {
		slog.Error().Err(err).Msg("Failed to shut down SMTP server")
	}
}

// serve is the accept loop.
func (s *Server) serve(ctx context.Context) {
	err := s.srv.Serve(s.listener)
	if err == nil || errors.Is(err, gosmtp.ErrServerClosed) {
		return
	}
	select {
	case <-ctx.Done():
		// SMTP is shutting down.
	default:
		// Something went wrong.
		log.Error().Str("module", "smtp").Err(err).Msg("SMTP server failed")
		s.notify <- err
		close(s.notify)
		s.emergencyShutdown()
	}
}

func (s *Server) emergencyShutdown() {
	// Shutdown the relay.
	select {
	case <-s.globalShutdown:
	default:
		close(s.globalShutdown)
	}
}

// Drain causes the caller to block until all active SMTP sessions have finished.  Start must be
// running or have returned.
func (s *Server) Drain() {
	<-s.done
	log.Debug().Str("module", "smtp").Str("phase", "shutdown").Msg("SMTP connections have drained")
}

// Notify allows the running SMTP server to be monitored for a fatal error.
func (s *Server) Notify() <-chan error {
	return s.notify
}

// errorLog routes go-smtp's internal logging to zerolog.
type errorLog struct {
	logger zerolog.Logger
}

func (l errorLog) Printf(format string, v ...interface{}) {
	l.logger.Warn().Msgf(format, v...)
}

func (l errorLog) Println(v ...interface{}) {
	l.logger.Warn().Msg(fmt.Sprint(v...))
}
