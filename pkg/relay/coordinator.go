// Package relay drives each staged message from intake to its terminal disposition: forwarded and
// removed, auto-accepted and retained, left in place after a transport failure, or quarantined.
package relay

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/inbucket/aliasrelay/pkg/autoaccept"
	"github.com/inbucket/aliasrelay/pkg/directory"
	"github.com/inbucket/aliasrelay/pkg/extension"
	"github.com/inbucket/aliasrelay/pkg/extension/event"
	"github.com/inbucket/aliasrelay/pkg/message"
	"github.com/inbucket/aliasrelay/pkg/storage"
	"github.com/inbucket/aliasrelay/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Terminal outcomes of a pipeline run.
const (
	OutcomeForwarded    = "forwarded"
	OutcomeRetained     = "retained"
	OutcomeAccepted     = "accepted"
	OutcomeAcceptFailed = "accept-failed"
	OutcomeQuarantined  = "quarantined"
)

// Resolver maps an alias to its destination mailbox.
type Resolver interface {
	Resolve(ctx context.Context, aliasID string) (*directory.Destination, error)
}

// Result describes how a single pipeline run ended.
type Result struct {
	Outcome        string
	Stage          string
	Err            error
	ForwardAddress string
	MessageID      string
	ConfirmURL     string
	From           string
	Subject        string
}

// Coordinator runs the relay pipeline.  Each intake gets its own goroutine; pipelines share
// nothing but the staging store, and each only touches its own path.
type Coordinator struct {
	store      storage.Store
	resolver   Resolver
	sender     transport.Sender
	acceptor   autoaccept.Acceptor
	classifier *Classifier
	events     *extension.Events
	now        func() time.Time
	wg         sync.WaitGroup
}

// NewCoordinator creates a Coordinator from its collaborators.  host may be nil.
func NewCoordinator(
	store storage.Store,
	resolver Resolver,
	sender transport.Sender,
	acceptor autoaccept.Acceptor,
	classifier *Classifier,
	host *extension.Host,
) *Coordinator {
	if host == nil {
		host = extension.NewHost()
	}
	return &Coordinator{
		store:      store,
		resolver:   resolver,
		sender:     sender,
		acceptor:   acceptor,
		classifier: classifier,
		events:     host.Events,
		now:        time.Now,
	}
}

// HandleIntake acknowledges the intake, then processes the staged message in the background.  It
// never blocks on pipeline I/O and never panics.
func (c *Coordinator) HandleIntake(env Envelope, path string, ack func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "relay").Str("path", path).Interface("panic", r).
				Msg("Intake handler panicked")
		}
	}()

	if ack != nil {
		ack()
	}
	intakesTotal.Inc()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("module", "relay").Str("path", path).Str("alias", env.AliasID).
					Interface("panic", r).Msg("Pipeline panicked, staged message left in place")
			}
		}()
		c.Process(context.Background(), env, path)
	}()
}

// Drain blocks until every pipeline started by HandleIntake has finished.
func (c *Coordinator) Drain() {
	c.wg.Wait()
}

// Process runs the pipeline synchronously for the staged message at path.  Every fault is
// converted into the returned Result; running it again on a quarantined message reaches the same
// disposition given the same collaborators.
func (c *Coordinator) Process(ctx context.Context, env Envelope, path string) Result {
	logger := log.With().Str("module", "relay").Str("alias", env.AliasID).Str("path", path).Logger()

	inflight.Inc()
	defer inflight.Dec()

	res := c.process(ctx, logger, env, path)

	ev := logger.Info()
	if res.Err != nil {
		ev = logger.Warn().Err(res.Err)
	}
	ev.Str("outcome", res.Outcome).Str("stage", res.Stage).Msg("Message disposed")

	outcomesTotal.WithLabelValues(res.Outcome).Inc()
	c.events.AfterMessageDisposed.Emit(&event.Disposition{
		ID:             filepath.Base(path),
		Path:           path,
		AliasID:        env.AliasID,
		Outcome:        res.Outcome,
		Stage:          res.Stage,
		From:           res.From,
		Subject:        res.Subject,
		ForwardAddress: res.ForwardAddress,
		MessageID:      res.MessageID,
		ConfirmURL:     res.ConfirmURL,
		Error:          errString(res.Err),
		Date:           c.now(),
	})

	return res
}

func (c *Coordinator) process(ctx context.Context, logger zerolog.Logger, env Envelope, path string) Result {
	dest, err := c.resolver.Resolve(ctx, env.AliasID)
	if err != nil {
		return c.quarantine(logger, env, path, StageResolve, err)
	}

	parsed, stage, err := c.load(path)
	if err != nil {
		return c.quarantine(logger, env, path, stage, err)
	}

	res := Result{
		ForwardAddress: dest.ForwardAddress,
		From:           parsed.From,
		Subject:        parsed.Subject,
	}

	kind := c.classifier.Classify(parsed)
	logger.Debug().Str("disposition", kind.String()).Msg("Classified message")
	switch kind {
	case KindAutoAccept:
		return c.autoAccept(ctx, logger, parsed, res)
	case KindForward:
		return c.forward(ctx, logger, path, dest, parsed, res)
	default:
		return c.quarantine(logger, env, path, StageParse,
			fmt.Errorf("%w: %v", message.ErrIncomplete, parsed.Missing()))
	}
}

// load opens and parses the staged message, reporting which stage any failure belongs to.
func (c *Coordinator) load(path string) (*message.Parsed, string, error) {
	r, err := c.store.Source(path)
	if err != nil {
		return nil, StageLoad, err
	}
	defer func() {
		_ = r.Close()
	}()

	parsed, err := message.Parse(r)
	if err != nil {
		if errors.Is(err, message.ErrInvalid) {
			return nil, StageParse, err
		}
		return nil, StageLoad, err
	}

	return parsed, "", nil
}

// autoAccept hands the HTML body to the acceptor.  The staged message is retained whatever the
// acceptor returns, as evidence of the registration.
func (c *Coordinator) autoAccept(
	ctx context.Context,
	logger zerolog.Logger,
	parsed *message.Parsed,
	res Result,
) Result {
	url, err := c.acceptor.Accept(ctx, parsed.HTML)
	res.ConfirmURL = url
	if err != nil {
		logger.Warn().Err(err).Str("url", url).Msg("Auto-accept failed")
		res.Outcome, res.Stage, res.Err = OutcomeAcceptFailed, StageAccept, err
		return res
	}

	logger.Info().Str("url", url).Msg("Auto-accepted registration")
	res.Outcome = OutcomeAccepted
	return res
}

// forward sends the message to dest and removes the staged copy once the transport accepts it.
func (c *Coordinator) forward(
	ctx context.Context,
	logger zerolog.Logger,
	path string,
	dest *directory.Destination,
	parsed *message.Parsed,
	res Result,
) Result {
	out := &event.OutboundMessage{
		To:      dest.ForwardAddress,
		From:    parsed.From,
		Subject: parsed.Subject,
		Text:    parsed.Text,
		HTML:    parsed.HTML,
	}
	if replaced := c.events.BeforeMessageForwarded.Emit(out); replaced != nil {
		out = replaced
	}

	id, err := c.sender.Send(ctx, &transport.Outgoing{
		To:      out.To,
		From:    out.From,
		Subject: out.Subject,
		Text:    out.Text,
		HTML:    out.HTML,
	})
	if err != nil {
		logger.Error().Err(err).Str("transport", c.sender.Name()).
			Msg("Forward failed, staged message retained")
		res.Outcome, res.Stage, res.Err = OutcomeRetained, StageForward, err
		return res
	}

	res.Outcome, res.MessageID = OutcomeForwarded, id
	if err := c.store.Remove(path); err != nil {
		logger.Error().Err(err).Str("messageid", id).
			Msg("Forwarded but failed to remove staged message")
		res.Stage, res.Err = StageCleanup, err
	}

	return res
}

// quarantine writes the error marker beside the staged message.  The staged message itself is
// never touched.
func (c *Coordinator) quarantine(
	logger zerolog.Logger,
	env Envelope,
	path string,
	stage string,
	cause error,
) Result {
	res := Result{Outcome: OutcomeQuarantined, Stage: stage, Err: cause}

	marker := &Marker{
		Envelope: env,
		Stage:    stage,
		Reason:   errString(cause),
		Time:     c.now().UTC(),
	}
	b, err := marker.Encode()
	if err == nil {
		err = c.store.MarkError(path, b)
	}
	if err != nil {
		logger.Error().Err(err).AnErr("cause", cause).Str("stage", stage).
			Msg("Failed to write quarantine marker")
		res.Err = errors.Join(cause, err)
	}

	return res
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
