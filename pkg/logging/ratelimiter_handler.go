package logging

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

var limitedLevels = []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

// NewRateLimiterHandler drops records above the configured per-level rate.
// Every level gets its own token bucket so a burst of debug lines cannot
// starve errors.
func NewRateLimiterHandler(ctx context.Context, next slog.Handler, cfg RateLimiterConfig) slog.Handler {
	h := &RateLimiterHandler{
		next:    next,
		limiter: make(map[slog.Level]*rate.Limiter, len(limitedLevels)),
		dropped: make(map[slog.Level]*atomic.Uint64, len(limitedLevels)),
	}
	for _, lvl := range limitedLevels {
		h.limiter[lvl] = rate.NewLimiter(cfg.Limit, cfg.Burst)
		h.dropped[lvl] = &atomic.Uint64{}
	}
	if cfg.Inform {
		go h.reportDropped(ctx, 5*time.Second)
	}
	return h
}

type RateLimiterHandler struct {
	next    slog.Handler
	limiter map[slog.Level]*rate.Limiter
	dropped map[slog.Level]*atomic.Uint64
}

func (h *RateLimiterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if !h.next.Enabled(ctx, level) {
		return false
	}
	lim, ok := h.limiter[level]
	if !ok {
		return true
	}
	if !lim.Allow() {
		h.dropped[level].Add(1)
		return false
	}
	return true
}

func (h *RateLimiterHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.next.Handle(ctx, record)
}

func (h *RateLimiterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RateLimiterHandler{
		next:    h.next.WithAttrs(attrs),
		limiter: h.limiter,
		dropped: h.dropped,
	}
}

func (h *RateLimiterHandler) WithGroup(name string) slog.Handler {
	return &RateLimiterHandler{
		next:    h.next.WithGroup(name),
		limiter: h.limiter,
		dropped: h.dropped,
	}
}

func (h *RateLimiterHandler) reportDropped(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, lvl := range limitedLevels {
				count := h.dropped[lvl].Swap(0)
				if count == 0 {
					continue
				}
				msg := fmt.Sprintf("logs rate limit, dropped %d lines for level %s", count, lvl.String())
				_ = h.next.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelWarn, msg, 0))
			}
		}
	}
}
