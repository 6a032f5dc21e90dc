// Package logging holds the process-wide slog logger of the psalter service
// and the event helpers the lookup path reports through.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

type requestIDKey struct{}

var logger *slog.Logger

func init() {
	InitLogger(LevelInfo, FormatJSON)
}

// Level is the minimum severity written by the logger.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var slogLevels = [...]slog.Level{
	LevelDebug: slog.LevelDebug,
	LevelInfo:  slog.LevelInfo,
	LevelWarn:  slog.LevelWarn,
	LevelError: slog.LevelError,
}

func (l Level) slogLevel() slog.Level {
	if l < 0 || int(l) >= len(slogLevels) {
		return slog.LevelInfo
	}
	return slogLevels[l]
}

// Format selects the slog handler.
type Format int

const (
	FormatJSON Format = iota
	FormatText
)

// InitLogger replaces the global logger with one writing to stdout.
func InitLogger(level Level, format Format) {
	InitLoggerWithWriter(os.Stdout, level, format)
}

// InitLoggerWithWriter replaces the global logger with one writing to w.
// It also becomes the slog default.
func InitLoggerWithWriter(w io.Writer, level Level, format Format) {
	opts := &slog.HandlerOptions{Level: level.slogLevel(), ReplaceAttr: secondsTime}

	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if format == FormatText {
		handler = slog.NewTextHandler(w, opts)
	}
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// secondsTime writes timestamps as RFC 3339 without fractional seconds.
func secondsTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
	}
	return a
}

// WithRequestID stores the request id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// GetRequestID returns the request id stored on ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func fromContext(ctx context.Context) *slog.Logger {
	if id := GetRequestID(ctx); id != "" {
		return logger.With("request_id", id)
	}
	return logger
}

func Info(msg string, args ...any) { logger.Info(msg, args...) }
func Warn(msg string, args ...any) { logger.Warn(msg, args...) }

func DebugContext(ctx context.Context, msg string, args ...any) {
	fromContext(ctx).Debug(msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	fromContext(ctx).Info(msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	fromContext(ctx).Warn(msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	fromContext(ctx).Error(msg, args...)
}

// SourceFetch reports one fetch of a psalm overview page. Successes go out
// at debug, failures at warn. A zero statusCode is omitted.
func SourceFetch(ctx context.Context, psalm int, url string, statusCode int, duration time.Duration, err error, args ...any) {
	attrs := append([]any{"psalm", psalm, "url", url, "duration_ms", duration.Milliseconds()}, args...)
	if statusCode != 0 {
		attrs = append(attrs, "status_code", statusCode)
	}
	if err != nil {
		fromContext(ctx).Warn("source_fetch_failed", append(attrs, "error", err.Error())...)
		return
	}
	fromContext(ctx).Debug("source_fetch", attrs...)
}

// CacheEvent reports verse map cache activity for one psalm: hit, miss,
// stored or document_changed.
func CacheEvent(ctx context.Context, event string, psalm int, args ...any) {
	fromContext(ctx).Debug("cache_event", append([]any{"event", event, "psalm", psalm}, args...)...)
}

// ServerStartup reports a listener coming up.
func ServerStartup(serverType, protocol string, port int, args ...any) {
	logger.Info("server_startup", append([]any{"server_type", serverType, "protocol", protocol, "port", port}, args...)...)
}

// SecurityEvent reports CORS setup and rate limit rejections.
func SecurityEvent(event, component string, args ...any) {
	logger.Warn("security_event", append([]any{"event", event, "component", component}, args...)...)
}
