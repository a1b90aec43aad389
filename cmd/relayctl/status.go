package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/inbucket/aliasrelay/pkg/rest/client"
)

type statusCmd struct{}

func (*statusCmd) Name() string {
	return "status"
}

func (*statusCmd) Synopsis() string {
	return "show backlog and recent dispositions"
}

func (*statusCmd) Usage() string {
	return `status:
	print the last backlog scan and the most recent dispositions
`
}

func (s *statusCmd) SetFlags(f *flag.FlagSet) {}

func (s *statusCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c, err := client.New(baseURL(), *timeout)
	if err != nil {
		return fatal("Couldn't build client", err)
	}
	status, err := c.Status(ctx)
	if err != nil {
		return fatal("REST call failed", err)
	}

	b := status.Backlog
	fmt.Printf("staged: %d  quarantined: %d  orphaned: %d  scanned: %s\n",
		b.Staged, b.Quarantined, b.Orphaned, formatTime(b.Completed))
	if len(status.Recent) == 0 {
		return subcommands.ExitSuccess
	}

	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tID\tALIAS\tOUTCOME\tSTAGE\tERROR")
	for _, d := range status.Recent {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			formatTime(d.Date), d.ID, d.AliasID, d.Outcome, d.Stage, d.Error)
	}
	_ = tw.Flush()

	return subcommands.ExitSuccess
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}
