package guard

import (
	"fmt"
	"sync"
	"time"
)

type entry struct {
	count    int
	windowAt time.Time
}

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// RateLimiter is a fixed-window counter per key. Check increments and reads
// the counter under one lock, so concurrent bursts from the same key are
// counted exactly.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Check counts one attempt for key and reports whether it is within limit
// for the current window.
func (rl *RateLimiter) Check(key string, limit int, window time.Duration) Result {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, ok := rl.entries[key]
	if !ok || !now.Before(e.windowAt) {
		e = &entry{windowAt: now.Add(window)}
		rl.entries[key] = e
	}
	e.count++

	remaining := limit - e.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: e.count <= limit, Remaining: remaining}
}

// Allow is Check without the remaining count.
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) bool {
	return rl.Check(key, limit, window).Allowed
}

// CheckRateLimit applies the reminder creation quota for a sender.
func (rl *RateLimiter) CheckRateLimit(senderID int64, maxCount int, window time.Duration) Result {
	return rl.Check(fmt.Sprintf("reminder:%d", senderID), maxCount, window)
}

// Cleanup removes expired entries.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, e := range rl.entries {
		if !now.Before(e.windowAt) {
			delete(rl.entries, key)
			removed++
		}
	}
	return removed
}
