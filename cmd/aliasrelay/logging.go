package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var logLevels = map[string]zerolog.Level{
	"debug": zerolog.DebugLevel,
	"info":  zerolog.InfoLevel,
	"warn":  zerolog.WarnLevel,
	"error": zerolog.ErrorLevel,
}

// setupLogging points the global zerolog logger at logfile, returns func to flush and close it.
func setupLogging(level string, logfile string, json bool) (close func(), err error) {
	lvl, ok := logLevels[level]
	if !ok {
		return nil, fmt.Errorf("log level %q not one of: debug, info, warn, error", level)
	}
	zerolog.SetGlobalLevel(lvl)

	w, close, err := logWriter(logfile)
	if err != nil {
		return nil, err
	}
	w = zerolog.SyncWriter(w)
	if json {
		log.Logger = log.Output(w)
		return close, nil
	}
	color := runtime.GOOS != "windows" && (logfile == "stderr" || logfile == "stdout")
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, NoColor: !color})

	return close, nil
}

// logWriter opens the named log destination.
func logWriter(logfile string) (io.Writer, func(), error) {
	switch logfile {
	case "stderr":
		return os.Stderr, func() {}, nil
	case "stdout":
		return os.Stdout, func() {}, nil
	}

	f, err := os.OpenFile(logfile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
	if err != nil {
		return nil, nil, err
	}
	bw := bufio.NewWriter(f)
	return bw, func() {
		_ = bw.Flush()
		_ = f.Close()
	}, nil
}
