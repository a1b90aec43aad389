package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/inbucket/aliasrelay/pkg/extension"
	"github.com/inbucket/aliasrelay/pkg/relay"
	"github.com/inbucket/aliasrelay/pkg/server"
	"github.com/inbucket/aliasrelay/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type replayCmd struct {
	alias   string
	address string
}

func (*replayCmd) Name() string {
	return "replay"
}

func (*replayCmd) Synopsis() string {
	return "re-run the pipeline for a staged message"
}

func (*replayCmd) Usage() string {
	return `replay [-alias <alias>] [-address <address>] <id>:
	synchronously process the staged message id, using the relay's environment
	configuration.  The envelope is read from the quarantine marker unless given
	by flags.
`
}

func (r *replayCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.alias, "alias", "", "alias id, overrides the marker")
	f.StringVar(&r.address, "address", "", "raw recipient address, overrides the marker")
}

func (r *replayCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id := f.Arg(0)
	if id == "" {
		return usage("id required")
	}

	conf, err := config.Process()
	if err != nil {
		return fatal("Configuration error", err)
	}
	if conf.Staging.Type == "memory" {
		return usage("replay requires a persistent staging store")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	pipeline, err := server.NewPipeline(ctx, conf, extension.NewHost())
	if err != nil {
		return fatal("Couldn't build pipeline", err)
	}
	path := pipeline.Store.Path(id)
	src, err := pipeline.Store.Source(path)
	if err != nil {
		return fatal("Couldn't open staged message", err)
	}
	_ = src.Close()

	env, err := r.envelope(pipeline.Store, path)
	if err != nil {
		return fatal("Couldn't determine envelope", err)
	}
	if env.AliasID == "" {
		return usage("alias required, message has no marker")
	}

	res := pipeline.Coordinator.Process(ctx, env, path)
	fmt.Printf("outcome: %s\n", res.Outcome)
	if res.Stage != "" {
		fmt.Printf("stage: %s\n", res.Stage)
	}
	if res.MessageID != "" {
		fmt.Printf("message id: %s\n", res.MessageID)
	}
	if res.Err != nil {
		fmt.Printf("error: %v\n", res.Err)
	}
	switch res.Outcome {
	case relay.OutcomeForwarded, relay.OutcomeAccepted:
		return subcommands.ExitSuccess
	}

	return subcommands.ExitFailure
}

// envelope returns the marker's envelope, overridden by any flags given.
func (r *replayCmd) envelope(store storage.Store, path string) (relay.Envelope, error) {
	var env relay.Envelope
	b, err := store.ErrorMarker(path)
	switch {
	case err == nil:
		m, err := relay.DecodeMarker(b)
		if err != nil {
			return env, err
		}
		env = m.Envelope
	case errors.Is(err, storage.ErrNotExist):
		// Orphaned message, flags must supply the envelope.
	default:
		return env, err
	}

	if r.alias != "" {
		env.AliasID = r.alias
	}
	if r.address != "" {
		env.RawAddress = r.address
	}

	return env, nil
}
