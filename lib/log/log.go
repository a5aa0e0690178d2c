// Package log carries a slog.Logger in a context.Context for library packages.
// Command output goes through cmdlog instead, see lib/xmain.
package log

import (
	"context"
	"os"
	"runtime/debug"
	"testing"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"cdr.dev/slog/sloggers/slogtest"
	"oss.terrastruct.com/xos"

	"oss.terrastruct.com/pumlview/lib/env"
)

// fallback is used when a context was never given a logger.
var fallback = slog.Make(sloghuman.Sink(os.Stderr)).Named("fallback")

type loggerKey struct{}

func from(ctx context.Context) slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(slog.Logger); ok {
		return l
	}
	fallback.Warn(ctx, "context has no logger, see log.With", slog.F("stack", string(debug.Stack())))
	return fallback
}

// With returns ctx carrying l.
func With(ctx context.Context, l slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func leveled(l slog.Logger, debug bool) slog.Logger {
	if debug {
		return l.Leveled(slog.LevelDebug)
	}
	return l
}

// Stderr returns ctx carrying a human readable logger writing to stderr.
// debug enables debug level output.
func Stderr(ctx context.Context, debug bool) context.Context {
	return With(ctx, leveled(slog.Make(sloghuman.Sink(os.Stderr)).Named("pumlview"), debug))
}

// WithTB returns ctx carrying a logger that writes to t. Errors fail t unless
// opts.IgnoreErrors is set.
func WithTB(ctx context.Context, t testing.TB, opts *slogtest.Options) context.Context {
	return With(ctx, leveled(slogtest.Make(t, opts), env.Debug(xos.NewEnv(os.Environ()))))
}

func Debug(ctx context.Context, msg string, fields ...slog.Field) {
	slog.Helper()
	from(ctx).Debug(ctx, msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...slog.Field) {
	slog.Helper()
	from(ctx).Warn(ctx, msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...slog.Field) {
	slog.Helper()
	from(ctx).Error(ctx, msg, fields...)
}

// Sync flushes the logger in ctx.
func Sync(ctx context.Context) {
	from(ctx).Sync()
}
