package logging

import (
	"context"
	"io"
	"log/slog"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// New returns the CLI logger. Progress narration is logged at Info, so it
// only shows up when verbose is set; warnings and errors always do.
func New(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logr.NewContextWithSlogLogger(ctx, logger)
}

// discard drops every record. Library callers that did not attach a logger
// get no output.
var discard = slog.New(logr.ToSlogHandler(logr.Discard()))

func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := logr.FromContextAsSlogLogger(ctx)
	if logger == nil {
		return discard
	}

	return logger
}

// WithRunID tags the context logger with a fresh run_id so that all lines of
// one invocation can be correlated.
func WithRunID(ctx context.Context) (context.Context, *slog.Logger, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return ctx, nil, err
	}

	logger := LoggerFromContext(ctx).With("run_id", id.String())

	return ContextWithLogger(ctx, logger), logger, nil
}
