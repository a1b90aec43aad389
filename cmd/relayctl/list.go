package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/inbucket/aliasrelay/pkg/rest/client"
)

type listCmd struct {
	quarantined bool
}

func (*listCmd) Name() string {
	return "list"
}

func (*listCmd) Synopsis() string {
	return "list staged messages"
}

func (*listCmd) Usage() string {
	return `list [-quarantined]:
	list messages still present in the staging store
`
}

func (l *listCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&l.quarantined, "quarantined", false, "only list quarantined messages")
}

func (l *listCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c, err := client.New(baseURL(), *timeout)
	if err != nil {
		return fatal("Couldn't build client", err)
	}
	var filter *bool
	if l.quarantined {
		filter = &l.quarantined
	}
	entries, err := c.ListStaged(ctx, filter)
	if err != nil {
		return fatal("REST call failed", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGED\tID\tSIZE\tSTAGE\tREASON")
	for _, e := range entries {
		stage, reason := "", ""
		if e.Marker != nil {
			stage, reason = e.Marker.Stage, e.Marker.Reason
		} else if e.Quarantined {
			stage = "?"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", formatTime(e.Staged), e.ID, e.Size, stage, reason)
	}
	_ = tw.Flush()

	return subcommands.ExitSuccess
}
