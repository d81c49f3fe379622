// Package logger provides structured logging initialization for the recipe
// proxy and shard store. It configures log/slog from LoggingConfig, supporting
// JSON and text output, configurable levels, and stdout, stderr or file
// destinations.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"

	"recipeproxy/internal/models"
	"recipeproxy/internal/version"
)

// Setup creates a structured logger from the provided LoggingConfig. Every
// record carries the service name and the build version fields. The returned
// io.Closer is non-nil only for file output and must be closed by the caller.
func Setup(cfg models.LoggingConfig, service string, ver version.Info) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	writer, closer, err := openWriter(cfg.Output, cfg.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log output: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	logger := slog.New(handler).With(
		slog.String("service", service),
		slog.String("version", ver.Version),
		slog.String("git_commit", ver.GitCommit),
	)

	return logger, closer, nil
}

// ExitOnPanic logs a panic that escaped request handling and terminates the
// process. Defer it at the top of main and of long-lived goroutines; in-memory
// state is not trusted after such a panic.
func ExitOnPanic() {
	if r := recover(); r != nil {
		slog.Error("Unrecoverable panic, exiting",
			"panic", fmt.Sprint(r),
			"stack", string(debug.Stack()),
		)
		os.Exit(1)
	}
}

// parseLevel converts a level string to an slog.Level.
// Supported values: debug, info, warn, error (case-insensitive).
func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level: %s", level)
	}
}

// openWriter returns the writer for the configured output. Only file output
// returns a closer.
func openWriter(output, filePath string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if filePath == "" {
			return nil, nil, fmt.Errorf("file path is required when output is file")
		}
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
		}
		return f, f, nil
	default:
		return os.Stdout, nil, nil
	}
}
