package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger writes JSON log entries tagged with the service, hostname and
// the action being performed.
type Logger interface {
	Action(action string) Logger
	With(args ...any) Logger
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, err error, args ...any)
}

type logger struct {
	zl zerolog.Logger
}

func init() {
	zerolog.TimestampFieldName = "timestamp"
	zerolog.MessageFieldName = "message"
	zerolog.ErrorFieldName = "error"
	zerolog.TimeFieldFormat = time.RFC3339
}

// NewLogger creates a logger for the given service writing to stdout.
func NewLogger(service, level string) Logger {
	return New(os.Stdout, service, level)
}

func New(w io.Writer, service, level string) Logger {
	hostname, _ := os.Hostname()
	zl := zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("service", service).
		Str("hostname", hostname).
		Logger()
	return &logger{zl: zl}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &logger{zl: zerolog.Nop()}
}

func (l *logger) Action(action string) Logger {
	return &logger{zl: l.zl.With().Str("action", action).Logger()}
}

func (l *logger) With(args ...any) Logger {
	return &logger{zl: l.zl.With().Fields(fields(args)).Logger()}
}

func (l *logger) Debug(msg string, args ...any) {
	l.zl.Debug().Fields(fields(args)).Msg(msg)
}

func (l *logger) Info(msg string, args ...any) {
	l.zl.Info().Fields(fields(args)).Msg(msg)
}

func (l *logger) Warn(msg string, args ...any) {
	l.zl.Warn().Fields(fields(args)).Msg(msg)
}

func (l *logger) Error(msg string, err error, args ...any) {
	l.zl.Error().Err(err).Fields(fields(args)).Msg(msg)
}

// fields turns key/value pairs into a map, dropping a trailing key without value.
func fields(args []any) map[string]any {
	m := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		m[key] = args[i+1]
	}
	return m
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
