package syslog

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/kardianos/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger writes structured entries to stdout via zerolog and, when the
// application runs under service management, mirrors them to the service
// logger as well.
type Logger struct {
	mu        sync.Mutex
	LogWriter service.Logger
}

// LogEntry represents a single log entry with additional context.
type LogEntry struct {
	level   string
	message string
	err     error
	fields  map[string]interface{}
	logger  *Logger
}

// Global logger instance.
var L *Logger

func init() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Caller().
		Logger()

	L = &Logger{}
}

// SetServiceLogger attaches the platform service logger so entries also reach
// the system log when running as a managed service.
func (l *Logger) SetServiceLogger(s service.Service) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	logger, err := s.Logger(nil)
	if err != nil {
		return fmt.Errorf("SetServiceLogger: failed to get service logger -> %w", err)
	}

	l.LogWriter = logger
	return nil
}

// Error starts a new log entry for an error.
func (l *Logger) Error(err error) *LogEntry {
	return &LogEntry{
		level:  "error",
		err:    err,
		fields: make(map[string]interface{}),
		logger: l,
	}
}

// Warn starts a new log entry for a warning.
func (l *Logger) Warn() *LogEntry {
	return &LogEntry{
		level:  "warn",
		fields: make(map[string]interface{}),
		logger: l,
	}
}

// Info starts a new log entry for informational messages.
func (l *Logger) Info() *LogEntry {
	return &LogEntry{
		level:  "info",
		fields: make(map[string]interface{}),
		logger: l,
	}
}

// WithMessage adds a message to the log entry.
func (e *LogEntry) WithMessage(msg string) *LogEntry {
	e.message = msg
	return e
}

// WithField adds a single key-value pair to the log entry.
func (e *LogEntry) WithField(key string, value interface{}) *LogEntry {
	e.fields[key] = value
	return e
}

// WithFields adds multiple key-value pairs to the log entry.
func (e *LogEntry) WithFields(fields map[string]interface{}) *LogEntry {
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// Write finalizes the log entry and sends it to the appropriate destination.
func (e *LogEntry) Write() {
	e.logger.mu.Lock()
	defer e.logger.mu.Unlock()

	if e.logger.LogWriter != nil {
		jsonMsg := e.formatLogAsJSON()
		switch e.level {
		case "info":
			_ = e.logger.LogWriter.Info(jsonMsg)
		case "warn":
			_ = e.logger.LogWriter.Warning(jsonMsg)
		case "error":
			_ = e.logger.LogWriter.Error(jsonMsg)
		default:
			_ = e.logger.LogWriter.Info(jsonMsg)
		}
		return
	}

	fallback := log.With().
		CallerWithSkipFrameCount(3).
		Fields(e.fields).
		Logger()

	switch e.level {
	case "info":
		fallback.Info().Err(e.err).Msg(e.message)
	case "warn":
		fallback.Warn().Err(e.err).Msg(e.message)
	case "error":
		fallback.Error().Err(e.err).Msg(e.message)
	default:
		fallback.Info().Err(e.err).Msg(e.message)
	}
}

// formatLogAsJSON formats the log entry as a JSON string.
func (e *LogEntry) formatLogAsJSON() string {
	var buf bytes.Buffer

	logger := zerolog.New(&buf).With().
		Timestamp().
		Fields(e.fields).
		Logger()

	event := logger.Log()
	if e.err != nil {
		event = event.Err(e.err)
	}
	event.Msg(e.message)

	return buf.String()
}
