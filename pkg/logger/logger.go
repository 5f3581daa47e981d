package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

//go:generate mockgen -destination=../mocks/mock_logger.go -package=pkgmocks github.com/ossdesk/ossdesk/pkg/logger Logger

type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

type zerologLogger struct {
	logger zerolog.Logger
}

func NewLogger() Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	return &zerologLogger{
		logger: logger,
	}
}

// NewLoggerWithLevel creates a logger and sets the global level from a string.
// Unknown or empty levels fall back to info.
func NewLoggerWithLevel(level string) Logger {
	zerolog.SetGlobalLevel(parseLevel(level))
	return NewLogger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func (l *zerologLogger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *zerologLogger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *zerologLogger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

func (l *zerologLogger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

func (l *zerologLogger) Fatal(msg string) {
	l.logger.Fatal().Msg(msg)
}

func (l *zerologLogger) WithField(key string, value interface{}) Logger {
	return &zerologLogger{
		logger: l.logger.With().Interface(key, value).Logger(),
	}
}

func (l *zerologLogger) WithFields(fields map[string]interface{}) Logger {
	ctx := l.logger.With()
	for key, value := range fields {
		ctx = ctx.Interface(key, value)
	}
	return &zerologLogger{logger: ctx.Logger()}
}
