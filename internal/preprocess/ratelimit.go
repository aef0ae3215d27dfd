package preprocess

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/vortex-gateway/vortex/internal/reqbuilder"
	"github.com/vortex-gateway/vortex/internal/router"
)

// RateLimitConfig mirrors gwconfig.RateLimitConfig so this package stays
// decoupled from the config package.
type RateLimitConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	BurstSize         int
}

func defaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{RequestsPerMinute: 60, RequestsPerHour: 1000, RequestsPerDay: 10000, BurstSize: 10}
}

// slidingWindow counts events in a trailing window using sub-buckets,
// ported from coreengine/kernel/rate_limiter.go's SlidingWindow.
type slidingWindow struct {
	mu            sync.Mutex
	windowSeconds int
	bucketCount   int
	buckets       map[int64]int
	totalCount    int
}

func newSlidingWindow(windowSeconds int) *slidingWindow {
	return &slidingWindow{windowSeconds: windowSeconds, bucketCount: 10, buckets: make(map[int64]int)}
}

func (w *slidingWindow) bucketSize() float64 { return float64(w.windowSeconds) / float64(w.bucketCount) }

func (w *slidingWindow) record(timestamp float64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	currentBucket := int64(timestamp / w.bucketSize())
	minBucket := currentBucket - int64(w.bucketCount)
	for b := range w.buckets {
		if b < minBucket {
			w.totalCount -= w.buckets[b]
			delete(w.buckets, b)
		}
	}
	w.buckets[currentBucket]++
	w.totalCount++
	return w.countLocked(timestamp)
}

func (w *slidingWindow) count(timestamp float64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.countLocked(timestamp)
}

func (w *slidingWindow) countLocked(timestamp float64) int {
	currentBucket := int64(timestamp / w.bucketSize())
	minBucket := currentBucket - int64(w.bucketCount)
	count := 0
	for bucket, n := range w.buckets {
		if bucket >= minBucket {
			count += n
		}
	}
	return count
}

func (w *slidingWindow) retryAfter(timestamp float64, limit int) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.countLocked(timestamp) < limit {
		return 0
	}
	bucketSize := w.bucketSize()
	currentBucket := int64(timestamp / bucketSize)
	minBucket := currentBucket - int64(w.bucketCount)

	type entry struct {
		bucket int64
		count  int
	}
	var sorted []entry
	for b, c := range w.buckets {
		if b >= minBucket {
			sorted = append(sorted, entry{b, c})
		}
	}
	for i := 0; i < len(sorted)-1; i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].bucket < sorted[i].bucket {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	excess := w.countLocked(timestamp) - limit + 1
	expired := 0
	for _, e := range sorted {
		expired += e.count
		if expired >= excess {
			bucketEnd := float64(e.bucket+1) * bucketSize
			result := bucketEnd - timestamp + float64(w.windowSeconds)
			if result < 0 {
				return 0
			}
			return result
		}
	}
	return float64(w.windowSeconds)
}

type windowKey struct {
	subject    string
	endpoint   string
	windowType string
}

// RateLimiter is a sliding-window limiter keyed by (subject, endpoint),
// ported from coreengine/kernel/rate_limiter.go's RateLimiter: same three
// trailing windows (minute/hour/day), adapted from per-user/per-endpoint
// LLM-call budgets to per-client/per-route HTTP request budgets.
// RateLimitConfig.BurstSize is not applied.
type RateLimiter struct {
	mu      sync.RWMutex
	cfg     *RateLimitConfig
	windows map[windowKey]*slidingWindow
}

func NewRateLimiter(cfg *RateLimitConfig) *RateLimiter {
	if cfg == nil {
		cfg = defaultRateLimitConfig()
	}
	return &RateLimiter{cfg: cfg, windows: make(map[windowKey]*slidingWindow)}
}

// Result reports the outcome of one rate-limit check.
type Result struct {
	Allowed    bool
	LimitType  string
	Current    int
	Limit      int
	RetryAfter float64
}

// Check evaluates subject+endpoint against the minute/hour/day windows and
// records the request if it's allowed.
func (r *RateLimiter) Check(subject, endpoint string) Result {
	now := float64(time.Now().UnixNano()) / 1e9

	checks := []struct {
		windowType    string
		windowSeconds int
		limit         int
	}{
		{"minute", 60, r.cfg.RequestsPerMinute},
		{"hour", 3600, r.cfg.RequestsPerHour},
		{"day", 86400, r.cfg.RequestsPerDay},
	}

	for _, c := range checks {
		if c.limit <= 0 {
			continue
		}
		w := r.windowFor(subject, endpoint, c.windowType, c.windowSeconds)
		current := w.count(now)
		if current >= c.limit {
			return Result{LimitType: c.windowType, Current: current, Limit: c.limit, RetryAfter: w.retryAfter(now, c.limit)}
		}
	}

	for _, c := range checks {
		if c.limit <= 0 {
			continue
		}
		r.windowFor(subject, endpoint, c.windowType, c.windowSeconds).record(now)
	}
	return Result{Allowed: true}
}

func (r *RateLimiter) windowFor(subject, endpoint, windowType string, windowSeconds int) *slidingWindow {
	key := windowKey{subject, endpoint, windowType}
	r.mu.RLock()
	w, ok := r.windows[key]
	r.mu.RUnlock()
	if ok {
		return w
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.windows[key]; ok {
		return w
	}
	w = newSlidingWindow(windowSeconds)
	r.windows[key] = w
	return w
}

// RateLimitPreprocessor is a serial preprocessor enforcing RateLimiter
// against the request's client IP and matched route, short-circuiting
// with 429 on rejection (spec.md §1's "rate-limited" purpose statement,
// undesigned elsewhere in spec.md).
type RateLimitPreprocessor struct {
	limiter *RateLimiter
}

func NewRateLimitPreprocessor(limiter *RateLimiter) *RateLimitPreprocessor {
	return &RateLimitPreprocessor{limiter: limiter}
}

func (p *RateLimitPreprocessor) Name() string { return "rate_limit" }

func (p *RateLimitPreprocessor) Process(ctx context.Context, rc *router.Context, b *reqbuilder.Builder) (*ShortCircuit, error) {
	result := p.limiter.Check(rc.ClientIP, rc.Asset.URLTemplate)
	if result.Allowed {
		return nil, nil
	}
	body, _ := json.Marshal(map[string]any{
		"error":       "rate_limit_exceeded",
		"limit_type":  result.LimitType,
		"limit":       result.Limit,
		"retry_after": result.RetryAfter,
	})
	return &ShortCircuit{Status: 429, Body: body}, nil
}
