package paperbridge

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/paperbridge/paperbridge/schemas"
)

// DefaultLogger implements schemas.Logger on top of zerolog, writing
// human-readable console output to stderr.
type DefaultLogger struct {
	log zerolog.Logger
}

// NewDefaultLogger creates a logger filtered at the given level. Unknown
// levels fall back to info.
func NewDefaultLogger(level schemas.LogLevel) *DefaultLogger {
	var lvl zerolog.Level
	switch level {
	case schemas.LogLevelDebug:
		lvl = zerolog.DebugLevel
	case schemas.LogLevelInfo:
		lvl = zerolog.InfoLevel
	case schemas.LogLevelWarn:
		lvl = zerolog.WarnLevel
	case schemas.LogLevelError:
		lvl = zerolog.ErrorLevel
	default:
		lvl = zerolog.InfoLevel
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return &DefaultLogger{
		log: zerolog.New(writer).Level(lvl).With().Timestamp().Logger(),
	}
}

// Debug logs a debug level message.
func (l *DefaultLogger) Debug(msg string) {
	l.log.Debug().Msg(msg)
}

// Info logs an info level message.
func (l *DefaultLogger) Info(msg string) {
	l.log.Info().Msg(msg)
}

// Warn logs a warning level message.
func (l *DefaultLogger) Warn(msg string) {
	l.log.Warn().Msg(msg)
}

// Error logs an error level message.
func (l *DefaultLogger) Error(err error) {
	l.log.Error().Err(err).Msg("")
}
