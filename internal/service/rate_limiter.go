package service

import (
	"context"
	"sync"
	"time"
)

const nudgeWindow = time.Minute

// RateLimiter caps how often each campaign can be nudged
type RateLimiter struct {
	mu sync.Mutex

	maxNudgesPerMinute int
	nudgeWindows       map[string]*nudgeWindowState
	lastSweep          time.Time
	now                func() time.Time
}

type nudgeWindowState struct {
	count     int
	windowEnd time.Time
}

// NewRateLimiter creates a new rate limiter. A non-positive limit disables it.
func NewRateLimiter(maxNudgesPerMinute int) *RateLimiter {
	return &RateLimiter{
		maxNudgesPerMinute: maxNudgesPerMinute,
		nudgeWindows:       make(map[string]*nudgeWindowState),
		now:                time.Now,
	}
}

// CheckNudgeRate checks if a campaign can be nudged again
func (rl *RateLimiter) CheckNudgeRate(ctx context.Context, campaignID string) error {
	if rl == nil || rl.maxNudgesPerMinute <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.evictExpired(now)

	window, exists := rl.nudgeWindows[campaignID]
	if !exists || now.After(window.windowEnd) {
		rl.nudgeWindows[campaignID] = &nudgeWindowState{
			count:     1,
			windowEnd: now.Add(nudgeWindow),
		}
		return nil
	}

	if window.count >= rl.maxNudgesPerMinute {
		return ErrRateLimited
	}

	window.count++
	return nil
}

// evictExpired drops finished windows at most once per window length.
// Callers must hold rl.mu.
func (rl *RateLimiter) evictExpired(now time.Time) {
	if now.Sub(rl.lastSweep) < nudgeWindow {
		return
	}
	for id, window := range rl.nudgeWindows {
		if now.After(window.windowEnd) {
			delete(rl.nudgeWindows, id)
		}
	}
	rl.lastSweep = now
}
