// Package ratelimit holds a per-identifier sliding-window attempt counter.
//
// The limiter is best-effort, single-process state: it defends the expensive
// email send behind magic-link issuance, not a security boundary. Deployments
// running more than one process should swap in a shared store behind the same
// Admitter interface.
package ratelimit

import (
	"sync"
	"time"
)

// Admitter is the contract the issuance engine consumes.
type Admitter interface {
	Admit(identifier string) Result
}

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

type record struct {
	attempts    int
	windowStart time.Time
}

// Limiter counts attempts per identifier inside a fixed window.
type Limiter struct {
	mu        sync.Mutex
	records   map[string]*record
	window    time.Duration
	threshold int
	now       func() time.Time
	lastSweep time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock injects a custom clock, useful for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New returns a limiter admitting up to threshold attempts per window.
func New(window time.Duration, threshold int, opts ...Option) *Limiter {
	if window <= 0 {
		window = 10 * time.Minute
	}
	if threshold <= 0 {
		threshold = 3
	}

	l := &Limiter{
		records:   make(map[string]*record),
		window:    window,
		threshold: threshold,
		now:       time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	l.lastSweep = l.now()
	return l
}

// Admit counts one attempt for the identifier. The attempt is admitted while
// the counter stays at or under the threshold; past it, Result carries the
// time until the window resets.
func (l *Limiter) Admit(identifier string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeSweep(now)

	rec, ok := l.records[identifier]
	if !ok || now.Sub(rec.windowStart) > l.window {
		rec = &record{windowStart: now}
		l.records[identifier] = rec
	}

	rec.attempts++

	if rec.attempts > l.threshold {
		return Result{
			Allowed: false,
			ResetIn: rec.windowStart.Add(l.window).Sub(now),
		}
	}

	return Result{
		Allowed:   true,
		Remaining: l.threshold - rec.attempts,
	}
}

// maybeSweep discards records whose window elapsed, bounding memory. Runs
// lazily on access at most once per window; callers hold the mutex.
func (l *Limiter) maybeSweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for id, rec := range l.records {
		if now.Sub(rec.windowStart) > l.window {
			delete(l.records, id)
		}
	}
	l.lastSweep = now
}

// Len reports the number of tracked identifiers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
