// Package logging defines the small structured-logging interface the rest
// of the project depends on, so packages never import a concrete logging
// backend directly.
package logging

import "context"

// Logger is a leveled, context-aware structured logger. The variadic args
// are alternating key-value pairs, slog style:
//
//	log.Info(ctx, "store opened", "users", n, "schema_version", v)
type Logger interface {
	// Debug logs fine-grained diagnostic detail.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs normal operational messages.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger carrying the given key-value pairs on
	// every record.
	With(args ...any) Logger
}
