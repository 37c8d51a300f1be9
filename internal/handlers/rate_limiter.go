package handlers

import (
	"strings"
	"sync"
	"time"
)

// RateLimiter decides whether the operator identified by key may proceed.
type RateLimiter interface {
	Allow(key string) bool
}

// operatorWindowLimiter allows limit calls per operator within a fixed window.
type operatorWindowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]operatorWindow
}

type operatorWindow struct {
	count int
	reset time.Time
}

// NewOperatorRateLimiter returns nil when limit or window is not positive,
// which disables throttling.
func NewOperatorRateLimiter(limit int, window time.Duration, clock func() time.Time) RateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &operatorWindowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]operatorWindow),
	}
}

func (l *operatorWindowLimiter) Allow(operator string) bool {
	if l == nil {
		return true
	}
	operator = strings.ToLower(strings.TrimSpace(operator))
	if operator == "" {
		operator = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[operator]
	if !ok || !now.Before(current.reset) {
		l.evictLocked(now)
		l.windows[operator] = operatorWindow{count: 1, reset: now.Add(l.window)}
		return true
	}
	if current.count >= l.limit {
		return false
	}
	current.count++
	l.windows[operator] = current
	return true
}

func (l *operatorWindowLimiter) evictLocked(now time.Time) {
	for operator, w := range l.windows {
		if !now.Before(w.reset) {
			delete(l.windows, operator)
		}
	}
}
