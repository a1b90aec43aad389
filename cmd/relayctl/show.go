package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/inbucket/aliasrelay/pkg/rest/client"
)

type showCmd struct{}

func (*showCmd) Name() string {
	return "show"
}

func (*showCmd) Synopsis() string {
	return "show a staged message and its marker"
}

func (*showCmd) Usage() string {
	return `show <id>:
	print the staging entry for id as JSON, including any quarantine marker
`
}

func (s *showCmd) SetFlags(f *flag.FlagSet) {}

func (s *showCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id := f.Arg(0)
	if id == "" {
		return usage("id required")
	}
	c, err := client.New(baseURL(), *timeout)
	if err != nil {
		return fatal("Couldn't build client", err)
	}
	entry, err := c.GetStaged(ctx, id)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "No staged message %q\n", id)
			return subcommands.ExitFailure
		}
		return fatal("REST call failed", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entry); err != nil {
		return fatal("Couldn't encode entry", err)
	}

	return subcommands.ExitSuccess
}
