// Package logger provides structured logging for the game server.
// Every economy mutation and every persistence or sync failure should be
// traceable through this.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logger provides levelled logging with context.
type Logger struct {
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
}

// NewLogger creates a new logger instance writing to stdout/stderr.
func NewLogger() *Logger {
	return &Logger{
		infoLogger:  log.New(os.Stdout, "[BASECASTER-INFO] ", log.Ldate|log.Ltime|log.Lshortfile),
		warnLogger:  log.New(os.Stdout, "[BASECASTER-WARN] ", log.Ldate|log.Ltime|log.Lshortfile),
		errorLogger: log.New(os.Stderr, "[BASECASTER-ERROR] ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

// NewWriterLogger sends every level to w. Tests pass io.Discard.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{
		infoLogger:  log.New(w, "[BASECASTER-INFO] ", log.Lmsgprefix),
		warnLogger:  log.New(w, "[BASECASTER-WARN] ", log.Lmsgprefix),
		errorLogger: log.New(w, "[BASECASTER-ERROR] ", log.Lmsgprefix),
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWriterLogger(io.Discard)
}

// Info logs informational messages.
func (l *Logger) Info(msg string) {
	l.infoLogger.Output(2, msg)
}

// Infof logs a formatted informational message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.infoLogger.Output(2, fmt.Sprintf(format, args...))
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string) {
	l.warnLogger.Output(2, msg)
}

// Warnf logs a formatted warning.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.warnLogger.Output(2, fmt.Sprintf(format, args...))
}

// Error logs error messages.
func (l *Logger) Error(msg string) {
	l.errorLogger.Output(2, msg)
}

// Errorf logs a formatted error.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.errorLogger.Output(2, fmt.Sprintf(format, args...))
}

// Event logs a specific economy event for a player.
func (l *Logger) Event(eventType string, actorID string, details string) {
	l.infoLogger.Output(2, fmt.Sprintf("[EVENT:%s] Actor:%s | %s", eventType, actorID, details))
}
