// Package admission implements partitioned fixed-window rate limiting for the
// HTTP entry points of every service.
package admission

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/config"
)

// Reservation is the outcome of asking for a permit.
type Reservation struct {
	Allowed bool
	// Wait is how long a queued request must sleep before its permit becomes
	// usable. Zero for immediate admission.
	Wait time.Duration
	// RetryAt is when a rejected caller may try again.
	RetryAt time.Time
	Limit   int
	Banned  bool

	p      *partition
	window time.Time
}

type partition struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	// next counts permits already promised to queued requests in the window
	// following windowStart.
	next          int
	violations    int
	lastViolation time.Time
	bannedUntil   time.Time
	lastSeen      time.Time
	// dead is set by Sweep once the partition has left the map.
	dead bool
}

type Limiter struct {
	cfg   config.RateLimiter
	log   *slog.Logger
	parts sync.Map // string -> *partition
	now   func() time.Time
}

func New(cfg config.RateLimiter, log *slog.Logger) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.AnonymousKey == "" {
		cfg.AnonymousKey = "anonymous"
	}
	return &Limiter{cfg: cfg, log: log, now: time.Now}
}

func (l *Limiter) limitFor(authenticated bool) int {
	if authenticated {
		return l.cfg.AuthenticatedPermitLimit
	}
	return l.cfg.UnauthenticatedPermitLimit
}

func (l *Limiter) banEnabled() bool {
	return l.cfg.BanDuration > 0 && l.cfg.MaxExceededAttempts > 0
}

// Reserve takes a permit for key. Over the limit, the request is queued for
// the next window while the queue has room, otherwise rejected.
func (l *Limiter) Reserve(key string, authenticated bool) Reservation {
	p := l.acquire(key)
	defer p.mu.Unlock()
	limit := l.limitFor(authenticated)
	now := l.now()

	p.lastSeen = now
	l.roll(p, now)

	if now.Before(p.bannedUntil) {
		return Reservation{RetryAt: p.bannedUntil, Limit: limit, Banned: true}
	}

	if p.count < limit {
		p.count++
		return Reservation{Allowed: true, Limit: limit, p: p, window: p.windowStart}
	}

	nextStart := p.windowStart.Add(l.cfg.Window)
	if p.next < l.cfg.QueueLimit && p.next < limit {
		p.next++
		return Reservation{Allowed: true, Wait: nextStart.Sub(now), Limit: limit, p: p, window: nextStart}
	}

	l.recordViolation(key, p, now)
	if now.Before(p.bannedUntil) {
		return Reservation{RetryAt: p.bannedUntil, Limit: limit, Banned: true}
	}
	return Reservation{RetryAt: nextStart, Limit: limit}
}

// acquire returns the live partition for key, locked. A partition swept
// between the load and the lock is skipped so no request counts against it.
func (l *Limiter) acquire(key string) *partition {
	for {
		v, _ := l.parts.LoadOrStore(key, &partition{})
		p := v.(*partition)
		p.mu.Lock()
		if !p.dead {
			return p
		}
		p.mu.Unlock()
	}
}

// roll advances p to the window containing now. Permits promised to queued
// requests carry over into the window they were queued for.
func (l *Limiter) roll(p *partition, now time.Time) {
	if p.windowStart.IsZero() {
		p.windowStart = now.Truncate(l.cfg.Window)
		return
	}
	end := p.windowStart.Add(l.cfg.Window)
	if now.Before(end) {
		return
	}
	if now.Before(end.Add(l.cfg.Window)) {
		p.count = p.next
	} else {
		p.count = 0
	}
	p.next = 0
	p.windowStart = now.Truncate(l.cfg.Window)
}

// recordViolation counts consecutive windows in which the partition was
// rejected and bans it once the threshold is reached.
func (l *Limiter) recordViolation(key string, p *partition, now time.Time) {
	if !l.banEnabled() || p.lastViolation.Equal(p.windowStart) {
		return
	}
	if !p.lastViolation.IsZero() && p.lastViolation.Before(p.windowStart.Add(-l.cfg.Window)) {
		p.violations = 0
	}
	p.violations++
	p.lastViolation = p.windowStart
	if p.violations >= l.cfg.MaxExceededAttempts {
		p.bannedUntil = now.Add(l.cfg.BanDuration)
		p.violations = 0
		l.log.Warn("rate limit partition banned", "partition", key, "until", p.bannedUntil)
	}
}

// Cancel returns a permit that was never used, e.g. when a queued caller gave
// up before its window opened.
func (r Reservation) Cancel() {
	if r.p == nil || !r.Allowed {
		return
	}
	r.p.mu.Lock()
	defer r.p.mu.Unlock()
	switch {
	case r.p.windowStart.Equal(r.window) && r.p.count > 0:
		r.p.count--
	case r.window.After(r.p.windowStart) && r.p.next > 0:
		r.p.next--
	}
}

// Sweep drops partitions idle for two full windows that carry no ban or
// queued permits.
func (l *Limiter) Sweep() int {
	now := l.now()
	removed := 0
	l.parts.Range(func(k, v any) bool {
		p := v.(*partition)
		p.mu.Lock()
		defer p.mu.Unlock()
		idle := now.Sub(p.lastSeen) > 2*l.cfg.Window && p.next == 0 && !now.Before(p.bannedUntil)
		if idle && l.parts.CompareAndDelete(k, p) {
			p.dead = true
			removed++
		}
		return true
	})
	return removed
}

// Run sweeps idle partitions once per window until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	t := time.NewTicker(l.cfg.Window)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.Sweep(); n > 0 {
				l.log.Debug("swept idle rate limit partitions", "count", n)
			}
		}
	}
}
