package smtp

import "github.com/rs/zerolog"

type logHook struct{}

// Run implements a zerolog hook that counts SMTP session warnings and errors.
func (h logHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	switch level {
	case zerolog.WarnLevel:
		logEventsTotal.WithLabelValues("warn").Inc()
	case zerolog.ErrorLevel:
		logEventsTotal.WithLabelValues("error").Inc()
	}
}
