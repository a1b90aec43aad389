// Package main implements a command line client for inspecting and recovering staged messages.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/subcommands"
	"github.com/inbucket/aliasrelay/pkg/storage"
	"github.com/inbucket/aliasrelay/pkg/storage/file"
	"github.com/inbucket/aliasrelay/pkg/storage/mem"
)

var host = flag.String("host", "localhost", "host/IP of the relay status server")
var port = flag.Uint("port", 9000, "HTTP port of the relay status server")
var timeout = flag.Duration("timeout", 30*time.Second, "status server request timeout")

func init() {
	storage.Constructors["file"] = file.New
	storage.Constructors["memory"] = mem.New
}

func main() {
	// Important top-level flags
	subcommands.ImportantFlag("host")
	subcommands.ImportantFlag("port")

	// Setup standard helpers
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	// Setup my commands
	subcommands.Register(&statusCmd{}, "status server")
	subcommands.Register(&listCmd{}, "status server")
	subcommands.Register(&showCmd{}, "status server")
	subcommands.Register(&replayCmd{}, "staging store")

	// Parse and execute
	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}

func baseURL() string {
	return "http://" + net.JoinHostPort(*host, strconv.FormatUint(uint64(*port), 10))
}

func fatal(msg string, err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	return subcommands.ExitFailure
}

func usage(msg string) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, msg)
	return subcommands.ExitUsageError
}
