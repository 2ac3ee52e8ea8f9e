package ldfmock

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Logger interface allows to use other loggers than standard log.Logger.
type Logger interface {
	Printf(string, ...interface{})
}

// LeveledLogger is an interface that can be implemented by any logger or a
// logger wrapper to provide leveled logging. The methods accept a message
// string and a variadic number of key-value pairs. *slog.Logger satisfies it.
type LeveledLogger interface {
	Error(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// defaultLogger writes text records to stderr.
func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// checkLogger panics on a logger of an unsupported type. This should happen in
// dev when a caller sets Logger, not in prod.
func checkLogger(logger interface{}) {
	switch logger.(type) {
	case nil, Logger, LeveledLogger:
	default:
		panic(fmt.Sprintf("invalid logger type passed, must be Logger or LeveledLogger, was %T", logger))
	}
}

func logDebug(logger interface{}, msg string, kv ...interface{}) {
	switch v := logger.(type) {
	case LeveledLogger:
		v.Debug(msg, kv...)
	case Logger:
		v.Printf("[DEBUG] %s%s", msg, formatKV(kv))
	}
}

func logInfo(logger interface{}, msg string, kv ...interface{}) {
	switch v := logger.(type) {
	case LeveledLogger:
		v.Info(msg, kv...)
	case Logger:
		v.Printf("[INFO] %s%s", msg, formatKV(kv))
	}
}

func logWarn(logger interface{}, msg string, kv ...interface{}) {
	switch v := logger.(type) {
	case LeveledLogger:
		v.Warn(msg, kv...)
	case Logger:
		v.Printf("[WARN] %s%s", msg, formatKV(kv))
	}
}

func logError(logger interface{}, msg string, kv ...interface{}) {
	switch v := logger.(type) {
	case LeveledLogger:
		v.Error(msg, kv...)
	case Logger:
		v.Printf("[ERR] %s%s", msg, formatKV(kv))
	}
}

func formatKV(kv []interface{}) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}
