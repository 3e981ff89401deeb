package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.RequestID != "" {
		logger = logger.With().Str("request_id", tc.RequestID).Logger()
	}
	if tc.ConnectionID != "" {
		logger = logger.With().Str("connection_id", tc.ConnectionID).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// AttachLogger stores a logger carrying ctx's tracing fields in ctx, so code
// further down can log through zerolog.Ctx.
func AttachLogger(ctx context.Context, baseLogger zerolog.Logger) context.Context {
	logger := PropagateToLogger(ctx, baseLogger)
	return logger.WithContext(ctx)
}
