package plog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log levels. Notice sits between debug and info for chatty progress lines;
// Critical is reserved for errors that stop the whole batch.
const (
	LevelDebug    = slog.LevelDebug
	LevelNotice   = slog.LevelInfo - 2
	LevelInfo     = slog.LevelInfo
	LevelWarn     = slog.LevelWarn
	LevelError    = slog.LevelError
	LevelCritical = slog.LevelError + 4
)

var levelNames = map[slog.Level]string{
	LevelNotice:   "NOTICE",
	LevelCritical: "CRITICAL",
}

// LevelFromString maps a level name to a slog level.
// Unknown names fall back to info.
func LevelFromString(s string) slog.Level {
	level, err := ParseLevel(s)
	if err != nil {
		return LevelInfo
	}
	return level
}

// ParseLevel maps a level name to a slog level and reports unknown names.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "notice":
		return LevelNotice, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "critical", "fatal":
		return LevelCritical, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// LevelName returns the canonical lower case name for a level.
func LevelName(l slog.Level) string {
	switch {
	case l <= LevelDebug:
		return "debug"
	case l <= LevelNotice:
		return "notice"
	case l <= LevelInfo:
		return "info"
	case l <= LevelWarn:
		return "warning"
	case l <= LevelError:
		return "error"
	}
	return "critical"
}

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and below go to stdout,
// WARNING and above go to stderr. In quiet mode records below WARNING are dropped.
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
	if r.Level >= LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	if quietMode.Load() {
		return nil
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

// fanoutHandler hands each record to every handler that accepts its level.
type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// FileOptions configures the optional log file sink.
type FileOptions struct {
	Filename   string
	Format     string // "text" or "json"
	Level      slog.Level
	MaxSizeMB  int
	MaxBackups int
}

var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
	consoleLevel  = new(slog.LevelVar)
	consoleSink   slog.Handler
	fileSink      *lumberjack.Logger
	quietMode     atomic.Bool
)

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok {
		if name, ok := levelNames[level]; ok {
			a.Value = slog.StringValue(name)
		}
	}
	return a
}

func init() {
	consoleLevel.Set(LevelInfo)
	opts := &slog.HandlerOptions{Level: consoleLevel, ReplaceAttr: replaceLevel}
	consoleSink = &LevelDispatchHandler{
		stdoutHandler: slog.NewTextHandler(os.Stdout, opts),
		stderrHandler: slog.NewTextHandler(os.Stderr, opts),
	}
	defaultLogger = slog.New(consoleSink)
}

// SetOutput redirects all console output to w, primarily for testing.
// Quiet mode is switched off and any file sink is detached.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	quietMode.Store(false)
	closeFileLocked()
	consoleSink = slog.NewTextHandler(w, &slog.HandlerOptions{Level: consoleLevel, ReplaceAttr: replaceLevel})
	defaultLogger = slog.New(consoleSink)
}

// SetLevel sets the minimum level written to the console.
func SetLevel(level slog.Level) {
	consoleLevel.Set(level)
}

// Level returns the current console level.
func Level() slog.Level {
	return consoleLevel.Level()
}

// SetQuiet enables or disables quiet mode for the console.
// In quiet mode, records below WARNING are suppressed. The file sink is unaffected.
func SetQuiet(quiet bool) {
	quietMode.Store(quiet)
}

// IsQuiet returns true if the console is in quiet mode.
func IsQuiet() bool {
	return quietMode.Load()
}

// SetFile attaches a rotating log file next to the console output.
// Calling it again replaces the previous file sink.
func SetFile(opts FileOptions) error {
	if opts.Filename == "" {
		return errors.New("log filename is empty")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Filename), 0755); err != nil {
		return fmt.Errorf("could not create log directory: %w", err)
	}
	// Open eagerly so permission problems surface at startup, not on the first record.
	f, err := os.OpenFile(opts.Filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("could not open log file: %w", err)
	}
	f.Close()

	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	writer := &lumberjack.Logger{
		Filename:   opts.Filename,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level, ReplaceAttr: replaceLevel}
	var fileHandler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		fileHandler = slog.NewTextHandler(writer, handlerOpts)
	case "json":
		fileHandler = slog.NewJSONHandler(writer, handlerOpts)
	default:
		writer.Close()
		return fmt.Errorf("unknown log format %q", opts.Format)
	}

	mu.Lock()
	defer mu.Unlock()
	closeFileLocked()
	fileSink = writer
	defaultLogger = slog.New(fanoutHandler{consoleSink, fileHandler})
	return nil
}

// Close flushes and detaches the file sink, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	return closeFileLocked()
}

func closeFileLocked() error {
	if fileSink == nil {
		return nil
	}
	err := fileSink.Close()
	fileSink = nil
	defaultLogger = slog.New(consoleSink)
	return err
}

func logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return defaultLogger
}

func log(level slog.Level, msg string, args ...any) {
	logger().Log(context.Background(), level, msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) { log(LevelDebug, msg, args...) }

// Notice logs a progress message that is more verbose than info.
func Notice(msg string, args ...any) { log(LevelNotice, msg, args...) }

// Info logs an informational message.
func Info(msg string, args ...any) { log(LevelInfo, msg, args...) }

// Warn logs a warning message.
func Warn(msg string, args ...any) { log(LevelWarn, msg, args...) }

// Error logs an error message.
func Error(msg string, args ...any) { log(LevelError, msg, args...) }

// Critical logs a message for a failure that ends the batch.
func Critical(msg string, args ...any) { log(LevelCritical, msg, args...) }
