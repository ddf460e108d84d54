package api

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type signerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SignerLimiter keeps one token bucket per signing key.
type SignerLimiter struct {
	mu       sync.Mutex
	rps      float64
	burst    int
	limiters map[solana.PublicKey]*signerLimiter
	now      func() time.Time
}

// NewSignerLimiter creates a limiter allowing rps requests per second per
// signer with the given burst.
func NewSignerLimiter(rps float64, burst int) *SignerLimiter {
	return &SignerLimiter{
		rps:      rps,
		burst:    burst,
		limiters: make(map[solana.PublicKey]*signerLimiter),
		now:      time.Now,
	}
}

// Allow reports whether signer may submit now.
func (l *SignerLimiter) Allow(signer solana.PublicKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	sl, ok := l.limiters[signer]
	if !ok {
		sl = &signerLimiter{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.limiters[signer] = sl
	}
	sl.lastSeen = now
	return sl.limiter.AllowN(now, 1)
}

// Prune drops buckets idle for longer than the idle TTL.
func (l *SignerLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-limiterIdleTTL)
	n := 0
	for k, sl := range l.limiters {
		if sl.lastSeen.Before(cutoff) {
			delete(l.limiters, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked signers.
func (l *SignerLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
