package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	// DefaultRequestTTL is the lifetime SignRequest gives a request.
	DefaultRequestTTL = time.Minute

	// MaxRequestTTL bounds how far in the future expires_at may be, and so
	// how long a signature has to be remembered.
	MaxRequestTTL = 5 * time.Minute
)

var (
	ErrExpired  = errors.New("request expired")
	ErrReplayed = errors.New("request already submitted")
)

// ReplayGuard admits each signed request at most once before it expires.
type ReplayGuard struct {
	seen   *cache.Cache
	maxTTL time.Duration
	now    func() time.Time
}

// NewReplayGuard creates a guard accepting expiries up to maxTTL ahead.
func NewReplayGuard(maxTTL time.Duration) *ReplayGuard {
	return &ReplayGuard{
		seen:   cache.New(maxTTL, time.Minute),
		maxTTL: maxTTL,
		now:    time.Now,
	}
}

// CheckExpiry rejects requests that have expired or that expire too far out.
func (g *ReplayGuard) CheckExpiry(r *InstructionRequest) error {
	now := g.now()
	expires := time.Unix(r.ExpiresAt, 0)
	if !expires.After(now) {
		return fmt.Errorf("%w at %d", ErrExpired, r.ExpiresAt)
	}
	if expires.Sub(now) > g.maxTTL {
		return fmt.Errorf("%w: expires_at more than %s ahead", ErrBadRequest, g.maxTTL)
	}
	return nil
}

// Admit records the request signature. It fails if the signature was
// already admitted and has not yet expired.
func (g *ReplayGuard) Admit(r *InstructionRequest) error {
	// Kept one second past expiry so a request at its last valid second
	// cannot slip in after the entry is evicted.
	ttl := time.Unix(r.ExpiresAt, 0).Sub(g.now()) + time.Second
	if err := g.seen.Add(r.Signature, struct{}{}, ttl); err != nil {
		return ErrReplayed
	}
	return nil
}

// Len returns the number of remembered signatures.
func (g *ReplayGuard) Len() int {
	return g.seen.ItemCount()
}
