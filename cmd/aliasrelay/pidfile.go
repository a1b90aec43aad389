package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// pidFile is the optional path our PID is written to, empty when disabled.
type pidFile string

func (p pidFile) write() error {
	if p == "" {
		return nil
	}
	return os.WriteFile(string(p), []byte(fmt.Sprintf("%v\n", os.Getpid())), 0644)
}

func (p pidFile) remove() {
	if p == "" {
		return
	}
	if err := os.Remove(string(p)); err != nil {
		log.Error().Str("phase", "shutdown").Err(err).Str("path", string(p)).
			Msg("Failed to remove pidfile")
	}
}
