// Package logging wraps slog with printf style helpers and optional rate
// limiting of log lines.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/time/rate"
)

// InstanceKey is the field carrying the RDS instance identifier.
const InstanceKey = "instance"

type Config struct {
	Ctx         context.Context
	RateLimiter RateLimiterConfig
	Level       slog.Level
	AddSource   bool
	Output      io.Writer
}

type RateLimiterConfig struct {
	Limit  rate.Limit
	Burst  int
	Inform bool
}

func MustParseLevel(lvlStr string) slog.Level {
	lvl, err := ParseLevel(lvlStr)
	if err != nil {
		panic(err.Error())
	}
	return lvl
}

// ParseLevel accepts slog level names such as "debug" or "WARN+1".
func ParseLevel(lvlStr string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(lvlStr)); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", lvlStr, err)
	}
	return lvl, nil
}

func New(cfg *Config) *Logger {
	ctx := cfg.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	handler := newTextHandler(cfg)
	if cfg.RateLimiter.Limit != 0 {
		handler = NewRateLimiterHandler(ctx, handler, cfg.RateLimiter)
	}
	return &Logger{log: slog.New(handler)}
}

func newTextHandler(cfg *Config) slog.Handler {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{
		AddSource: cfg.AddSource,
		Level:     cfg.Level,
	}
	if cfg.AddSource {
		opts.ReplaceAttr = trimSourceDir
	}
	return slog.NewTextHandler(out, opts)
}

func trimSourceDir(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	if source, ok := a.Value.Any().(*slog.Source); ok {
		source.File = filepath.Base(source.File)
	}
	return a
}

func NewTestLog() *Logger {
	return New(&Config{Level: slog.LevelDebug})
}

type Logger struct {
	log *slog.Logger
}

func (l *Logger) Error(msg string) {
	l.write(slog.LevelError, msg) //nolint:govet
}

func (l *Logger) Errorf(format string, a ...any) {
	l.write(slog.LevelError, format, a...)
}

func (l *Logger) Info(msg string) {
	l.write(slog.LevelInfo, msg) //nolint:govet
}

func (l *Logger) Infof(format string, a ...any) {
	l.write(slog.LevelInfo, format, a...)
}

func (l *Logger) Warnf(format string, a ...any) {
	l.write(slog.LevelWarn, format, a...)
}

func (l *Logger) Debug(msg string) {
	l.write(slog.LevelDebug, msg) //nolint:govet
}

func (l *Logger) Debugf(format string, a ...any) {
	l.write(slog.LevelDebug, format, a...)
}

func (l *Logger) write(lvl slog.Level, msg string, args ...any) {
	ctx := context.Background()
	h := l.log.Handler()
	if !h.Enabled(ctx, lvl) {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	// Skip runtime.Callers, write and the exported wrapper.
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	_ = h.Handle(ctx, slog.NewRecord(time.Now(), lvl, msg, pcs[0])) //nolint:contextcheck
}

func (l *Logger) WithField(k, v string) *Logger {
	return &Logger{log: l.log.With(slog.String(k, v))}
}

// ForInstance scopes the logger to one RDS instance.
func (l *Logger) ForInstance(id string) *Logger {
	return l.WithField(InstanceKey, id)
}
