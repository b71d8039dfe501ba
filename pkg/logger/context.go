package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// With binds fields to the context logger. Pairs whose value is an empty
// string are skipped so optional ids stay out of the output.
func With(ctx context.Context, fields ...any) context.Context {
	kept := make([]any, 0, len(fields))
	for i := 0; i+1 < len(fields); i += 2 {
		if s, ok := fields[i+1].(string); ok && s == "" {
			continue
		}
		kept = append(kept, fields[i], fields[i+1])
	}
	if len(kept) == 0 {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, From(ctx).With(kept...))
}

// From returns the request logger, falling back to the process logger.
func From(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return LoggerWrapper()
}
