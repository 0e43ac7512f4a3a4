package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}

	logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
}

// SetLevel sets the global log level from its string form ("debug",
// "info", "warn", "error", ...).
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Logger returns the package logger for callers that need to derive
// their own sub-loggers.
func Logger() zerolog.Logger {
	return logger
}

func With() zerolog.Context {
	return logger.With()
}

func Debug() *zerolog.Event {
	return logger.Debug()
}

func Info() *zerolog.Event {
	return logger.Info()
}

func Warn() *zerolog.Event {
	return logger.Warn()
}

func Error() *zerolog.Event {
	return logger.Error()
}

func Err(err error) *zerolog.Event {
	return logger.Err(err)
}

// Fatal logs at fatal level; zerolog calls os.Exit(1) when the event is
// actually logged.
func Fatal() *zerolog.Event {
	return logger.Fatal()
}

func Printf(format string, args ...any) {
	logger.Info().Msgf(format, args...)
}
