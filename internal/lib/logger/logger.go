// Package logger builds the process-wide slog logger from the environment
// name. Local runs get human-readable text on stdout, deployed runs get
// JSON, optionally teed into a log file under the given directory.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// SetupLogger returns a logger configured for the given environment.
func SetupLogger(env string, logPath string) *slog.Logger {
	switch env {
	case envDev:
		return slog.New(slog.NewJSONHandler(logSink(logPath, "ticketchat-dev.log"), &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(logSink(logPath, "ticketchat.log"), &slog.HandlerOptions{Level: slog.LevelInfo}))
	default: // envLocal
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

// logSink opens the log file for appending, falling back to stdout.
func logSink(dir, name string) io.Writer {
	if dir == "" {
		return os.Stdout
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, f)
}
