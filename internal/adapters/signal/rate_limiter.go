package signal

import (
	"sync"
	"time"

	"github.com/dkeye/voicelink/internal/domain"
	"golang.org/x/time/rate"
)

// JoinRateLimiter allows `limit` joins per `interval` for each identity.
type JoinRateLimiter struct {
	mu       sync.Mutex
	limiters map[domain.Identity]*rate.Limiter
	every    rate.Limit
	burst    int
	calls    int
}

func NewJoinRateLimiter(limit int, interval time.Duration) *JoinRateLimiter {
	if limit <= 0 {
		return &JoinRateLimiter{every: rate.Inf}
	}
	return &JoinRateLimiter{
		limiters: make(map[domain.Identity]*rate.Limiter),
		every:    rate.Every(interval / time.Duration(limit)),
		burst:    limit,
	}
}

func (rl *JoinRateLimiter) Allow(id domain.Identity) bool {
	if rl.every == rate.Inf {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.calls++
	if rl.calls%256 == 0 {
		rl.pruneLocked()
	}
	l, ok := rl.limiters[id]
	if !ok {
		l = rate.NewLimiter(rl.every, rl.burst)
		rl.limiters[id] = l
	}
	return l.Allow()
}

// pruneLocked forgets identities whose bucket has refilled.
func (rl *JoinRateLimiter) pruneLocked() {
	for id, l := range rl.limiters {
		if l.Tokens() >= float64(rl.burst) {
			delete(rl.limiters, id)
		}
	}
}
