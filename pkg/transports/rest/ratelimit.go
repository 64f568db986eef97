package rest

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimit is the provider's advertised request budget.
//
//	Ratelimit-Limit: 3600
//	Ratelimit-Remaining: 3542
//	Ratelimit-Reset: 1706745600
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// ParseRateLimit reads the Ratelimit-* headers. It returns nil when the provider
// sent none. Malformed numbers parse as zero; a malformed reset is treated as now.
func ParseRateLimit(h http.Header) *RateLimit {
	limit := h.Get("Ratelimit-Limit")
	if limit == "" {
		return nil
	}
	info := &RateLimit{Reset: time.Now()}
	info.Limit, _ = strconv.Atoi(limit)
	info.Remaining, _ = strconv.Atoi(h.Get("Ratelimit-Remaining"))

	if reset, err := strconv.ParseInt(h.Get("Ratelimit-Reset"), 10, 64); err == nil {
		// Some providers send seconds-until-reset rather than a timestamp.
		if reset < 1_000_000_000 {
			info.Reset = time.Now().Add(time.Duration(reset) * time.Second)
		} else {
			info.Reset = time.Unix(reset, 0)
		}
	}
	return info
}

// budget holds requests back once the provider reports an exhausted window.
type budget struct {
	mu    sync.Mutex
	until time.Time
}

func (b *budget) update(info *RateLimit) {
	if info == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if info.Remaining > 0 {
		b.until = time.Time{}
		return
	}
	b.until = info.Reset
}

func (b *budget) wait(ctx context.Context, sleep func(context.Context, time.Duration) error) error {
	b.mu.Lock()
	until := b.until
	b.mu.Unlock()

	d := time.Until(until)
	if d <= 0 {
		return nil
	}
	if d > maxRateLimitWait {
		d = maxRateLimitWait
	}
	return sleep(ctx, d)
}
