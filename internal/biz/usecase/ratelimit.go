package usecase

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCooldown is the minimum gap between two accepted commands of one user
const DefaultCooldown = 10 * time.Second

// RateLimiter enforces a per-user cooldown.
//
// Each user gets a burst-1 token bucket refilled once per cooldown, so an
// accepted command consumes the token and a rejected one leaves it untouched.
// The map lock is only held to look up the user's limiter.
type RateLimiter struct {
	cooldown time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter creates a limiter with the given cooldown
func NewRateLimiter(cooldown time.Duration) *RateLimiter {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &RateLimiter{
		cooldown: cooldown,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Cooldown returns the configured window
func (l *RateLimiter) Cooldown() time.Duration {
	return l.cooldown
}

// TryAcquire accepts the command when at least one cooldown has passed since
// the user's last accepted command, recording now on acceptance.
func (l *RateLimiter) TryAcquire(userID string, now time.Time) bool {
	return l.limiterFor(userID).AllowN(now, 1)
}

func (l *RateLimiter) limiterFor(userID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.cooldown), 1)
		l.limiters[userID] = lim
	}
	return lim
}
