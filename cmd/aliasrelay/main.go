// main is the aliasrelay daemon launcher
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/inbucket/aliasrelay/pkg/server"
	"github.com/inbucket/aliasrelay/pkg/storage"
	"github.com/inbucket/aliasrelay/pkg/storage/file"
	"github.com/inbucket/aliasrelay/pkg/storage/mem"
	"github.com/rs/zerolog/log"
)

var (
	// version contains the build version number, populated during linking.
	version = "undefined"

	// date contains the build date, populated during linking.
	date = "undefined"
)

// shutdownTimeout bounds how long in-flight pipelines may take once shutdown begins.
const shutdownTimeout = 15 * time.Second

func init() {
	// Register staging implementations.
	storage.Constructors["file"] = file.New
	storage.Constructors["memory"] = mem.New
}

func main() {
	help := flag.Bool("help", false, "Displays help on flags and env variables.")
	pidPath := flag.String("pidfile", "", "Write our PID into the specified file.")
	logfile := flag.String("logfile", "stderr", "Write log to stderr, stdout, or the named file.")
	logjson := flag.Bool("logjson", false, "Logs are written in JSON format.")
	netdebug := flag.Bool("netdebug", false, "Dump SMTP intake traffic to stdout.")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: aliasrelay [options]")
		flag.PrintDefaults()
	}
	flag.Parse()
	if *help {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "")
		config.Usage()
		return
	}

	config.Version = version
	config.BuildDate = date
	conf, err := config.Process()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	conf.SMTP.Debug = *netdebug

	closeLog, err := setupLogging(conf.LogLevel, *logfile, *logjson)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Log error: %v\n", err)
		os.Exit(1)
	}
	startupLog := log.With().Str("phase", "startup").Logger()
	startupLog.Info().Str("version", config.Version).Str("buildDate", config.BuildDate).
		Str("staging", conf.Staging.Type).Str("transport", conf.Transport.Kind).
		Msg("aliasrelay starting")

	pid := pidFile(*pidPath)
	if err := pid.write(); err != nil {
		startupLog.Fatal().Err(err).Str("path", *pidPath).Msg("Failed to write pidfile")
	}

	// Any startup fault is fatal; nothing has been accepted yet.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	shutdownChan := make(chan bool)
	services, err := server.Prod(rootCtx, shutdownChan, conf)
	if err != nil {
		pid.remove()
		startupLog.Fatal().Err(err).Msg("Fatal error during startup")
	}
	services.Start(rootCtx)

	awaitShutdown(shutdownChan)
	rootCancel()

	// Intake is closed; let accepted messages reach a disposition.
	go forceExitAfter(shutdownTimeout, pid)
	services.Drain()
	log.Info().Str("phase", "shutdown").Msg("Clean shutdown complete")
	pid.remove()
	closeLog()
}

// awaitShutdown blocks until SIGINT or SIGTERM arrives, or a service closes shutdownChan.
func awaitShutdown(shutdownChan chan bool) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info().Str("phase", "shutdown").Str("signal", sig.String()).
			Msg("Received signal, shutting down")
		close(shutdownChan)
	case <-shutdownChan:
		log.Warn().Str("phase", "shutdown").Msg("Service requested shutdown")
	}
}

// forceExitAfter is called as a goroutine during shutdown, it exits the process if draining
// takes longer than d.
func forceExitAfter(d time.Duration, pid pidFile) {
	time.Sleep(d)
	pid.remove()
	log.Error().Str("phase", "shutdown").Dur("timeout", d).
		Msg("Clean shutdown took too long, forcing exit")
	os.Exit(1)
}
