// Package logging configures the process-wide structured logger
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	workspaceIDKey contextKey = "workspace_id"
)

// Init sets the global zerolog logger. Pretty output is meant for terminals.
func Init(level string, pretty bool, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithRequestID stores the request id in the context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithWorkspaceID stores the workspace id in the context
func WithWorkspaceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workspaceIDKey, id)
}

// RequestID returns the request id from the context, if any
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// FromContext returns a logger carrying the ids stored in ctx
func FromContext(ctx context.Context) *zerolog.Logger {
	l := log.Logger.With()
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		l = l.Str("request_id", id)
	}
	if id, ok := ctx.Value(workspaceIDKey).(string); ok && id != "" {
		l = l.Str("workspace_id", id)
	}
	logger := l.Logger()
	return &logger
}
