package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName tags every log line so session logs can be told apart from other
// exam services shipping to the same sink.
const ServiceName = "exstem-session"

// Setup builds the process logger.
//   - level: trace, debug, info, warn, error, fatal or panic; anything else means info
//   - format: "pretty" for console output while developing, JSON otherwise
//
// Durations are logged as integer milliseconds, which is how the session
// controller reports time spent and I/O latency.
func Setup(level, format string) zerolog.Logger {
	return setup(os.Stdout, level, format)
}

func setup(out io.Writer, level, format string) zerolog.Logger {
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.DurationFieldInteger = true

	w := out
	if format == "pretty" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(w).
		With().
		Timestamp().
		Str("service", ServiceName).
		Caller().
		Logger()
}
