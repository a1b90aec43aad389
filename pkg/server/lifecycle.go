// Package server wires the relay's components together.
package server

import (
	"context"
	"fmt"

	"github.com/inbucket/aliasrelay/pkg/autoaccept"
	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/inbucket/aliasrelay/pkg/directory"
	"github.com/inbucket/aliasrelay/pkg/extension"
	"github.com/inbucket/aliasrelay/pkg/msghub"
	"github.com/inbucket/aliasrelay/pkg/policy"
	"github.com/inbucket/aliasrelay/pkg/relay"
	"github.com/inbucket/aliasrelay/pkg/rest"
	"github.com/inbucket/aliasrelay/pkg/server/smtp"
	"github.com/inbucket/aliasrelay/pkg/server/web"
	"github.com/inbucket/aliasrelay/pkg/storage"
	"github.com/inbucket/aliasrelay/pkg/transport"
	"github.com/inbucket/aliasrelay/pkg/transport/logsink"
	"github.com/inbucket/aliasrelay/pkg/transport/ses"
	smtpsender "github.com/inbucket/aliasrelay/pkg/transport/smtp"
)

// Services holds the configured services.
type Services struct {
	ExtHost        *extension.Host
	Store          storage.Store
	Coordinator    *relay.Coordinator
	MsgHub         *msghub.Hub
	BacklogScanner *storage.BacklogScanner
	SMTPServer     *smtp.Server
	WebServer      *web.Server
}

// Pipeline holds the collaborators of a relay.Coordinator.
type Pipeline struct {
	Store       storage.Store
	Coordinator *relay.Coordinator
}

// NewPipeline builds the staging store, directory client, transport and auto-accept visitor
// described by conf, and a Coordinator joining them.
func NewPipeline(ctx context.Context, conf *config.Root, extHost *extension.Host) (*Pipeline, error) {
	store, err := storage.FromConfig(conf.Staging)
	if err != nil {
		return nil, err
	}

	resolver, err := directory.New(conf.Directory.URL,
		directory.WithTimeout(conf.Directory.Timeout),
		directory.WithToken(conf.Directory.Token))
	if err != nil {
		return nil, fmt.Errorf("directory client: %w", err)
	}

	sender, err := NewSender(ctx, conf)
	if err != nil {
		return nil, err
	}

	acceptor, err := autoaccept.New(conf.AutoAccept)
	if err != nil {
		return nil, fmt.Errorf("auto-accept: %w", err)
	}

	classifier := relay.NewClassifier(conf.AutoAccept.Phrase)
	coord := relay.NewCoordinator(store, resolver, sender, acceptor, classifier, extHost)

	return &Pipeline{Store: store, Coordinator: coord}, nil
}

// NewSender returns the outbound transport selected by conf.Transport.Kind.
func NewSender(ctx context.Context, conf *config.Root) (transport.Sender, error) {
	switch conf.Transport.Kind {
	case config.TransportSMTP:
		s, err := smtpsender.New(conf.Transport, conf.SMTP.Domain)
		if err != nil {
			return nil, fmt.Errorf("smtp transport: %w", err)
		}
		return s, nil
	case config.TransportSES:
		s, err := ses.New(ctx, conf.Transport)
		if err != nil {
			return nil, fmt.Errorf("ses transport: %w", err)
		}
		return s, nil
	case config.TransportLog:
		return logsink.New(), nil
	}

	return nil, fmt.Errorf("unknown transport kind configured: %q", conf.Transport.Kind)
}

// Prod wires up the production relay environment.  Listeners are bound before returning, so a
// port conflict is reported as an error rather than a later shutdown.
func Prod(rootCtx context.Context, shutdownChan chan bool, conf *config.Root) (*Services, error) {
	extHost := extension.NewHost()
	pipeline, err := NewPipeline(rootCtx, conf, extHost)
	if err != nil {
		return nil, err
	}

	msgHub := msghub.New(conf.Web.MonitorHistory, extHost)
	backlogScanner := storage.NewBacklogScanner(conf.Staging, pipeline.Store, shutdownChan)
	addrPolicy := &policy.Addressing{Config: &conf.SMTP}

	smtpServer := smtp.NewServer(conf.SMTP, shutdownChan, pipeline.Store, pipeline.Coordinator,
		addrPolicy)
	if err := smtpServer.Listen(); err != nil {
		return nil, err
	}

	var webServer *web.Server
	if conf.Web.Addr != "" {
		rest.SetupRoutes(web.Router)
		webServer = web.NewServer(conf.Web, shutdownChan, pipeline.Store, msgHub, backlogScanner)
		if err := webServer.Listen(); err != nil {
			smtpServer.Close()
			return nil, err
		}
	}

	return &Services{
		ExtHost:        extHost,
		Store:          pipeline.Store,
		Coordinator:    pipeline.Coordinator,
		MsgHub:         msgHub,
		BacklogScanner: backlogScanner,
		SMTPServer:     smtpServer,
		WebServer:      webServer,
	}, nil
}

// Start the services.
func (s *Services) Start(ctx context.Context) {
	go s.MsgHub.Start(ctx)
	s.BacklogScanner.Start()
	if s.WebServer != nil {
		go s.WebServer.Start(ctx)
	}
	go s.SMTPServer.Start(ctx)
}

// Drain blocks until the listeners have closed and every in-flight pipeline has finished.  ctx
// must already be canceled.
func (s *Services) Drain() {
	s.SMTPServer.Drain()
	s.Coordinator.Drain()
	s.ExtHost.Events.AfterMessageDisposed.Wait()
	if s.WebServer != nil {
		s.WebServer.Drain()
	}
	s.BacklogScanner.Join()
}
