// Package plog is the process-wide logger of pgl-svnbackup.
//
// Records at INFO and below go to stdout, WARN and above go to stderr. The
// package keeps one logger so that backup stages can log without threading
// a logger through every call.
package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Log levels. Notice sits between Debug and Info and is used for the
// per-file chatter of long running stages.
const (
	LevelDebug  = slog.LevelDebug
	LevelNotice = slog.Level(-2)
	LevelInfo   = slog.LevelInfo
	LevelWarn   = slog.LevelWarn
	LevelError  = slog.LevelError
)

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

var (
	defaultLogger atomic.Pointer[slog.Logger]
	quietMode     atomic.Bool
	level         = new(slog.LevelVar)
)

func handlerOptions(min slog.Leveler) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: min,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelNotice {
					a.Value = slog.StringValue("NOTICE")
				}
			}
			return a
		},
	}
}

// warnFloor keeps the stderr handler at WARN unless the user asked for
// something stricter.
type warnFloor struct{}

func (warnFloor) Level() slog.Level {
	if l := level.Level(); l > slog.LevelWarn {
		return l
	}
	return slog.LevelWarn
}

func init() {
	level.Set(LevelInfo)
	defaultLogger.Store(slog.New(&LevelDispatchHandler{
		stdoutHandler: slog.NewTextHandler(os.Stdout, handlerOptions(level)),
		stderrHandler: slog.NewTextHandler(os.Stderr, handlerOptions(warnFloor{})),
	}))
}

// SetOutput redirects every level to w, primarily for testing.
func SetOutput(w io.Writer) {
	quietMode.Store(false)
	defaultLogger.Store(slog.New(slog.NewTextHandler(w, handlerOptions(level))))
}

// SetLevel sets the minimum level that is written.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// LevelFromString maps a config value to a level. Unknown values map to Info.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "notice":
		return LevelNotice
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetQuiet enables or disables quiet mode. In quiet mode everything below
// WARN is suppressed.
func SetQuiet(quiet bool) {
	quietMode.Store(quiet)
}

func log(l slog.Level, msg string, args ...any) {
	if l < slog.LevelWarn && quietMode.Load() {
		return
	}
	defaultLogger.Load().Log(context.Background(), l, msg, args...)
}

func Debug(msg string, args ...any)  { log(LevelDebug, msg, args...) }
func Notice(msg string, args ...any) { log(LevelNotice, msg, args...) }
func Info(msg string, args ...any)   { log(LevelInfo, msg, args...) }
func Warn(msg string, args ...any)   { log(LevelWarn, msg, args...) }
func Error(msg string, args ...any)  { log(LevelError, msg, args...) }
